package pipeline

import (
	"context"
	"fmt"
	"log"

	"fleet-monitor/livemap/internal/domain"
	"fleet-monitor/livemap/internal/metrics"
)

type alertDeduper interface {
	CheckAlertDedup(ctx context.Context, driverID string, severity domain.AlertSeverity) (bool, error)
	SetAlertDedup(ctx context.Context, driverID string, severity domain.AlertSeverity) error
}

type AlertPublisher interface {
	PublishAlert(ctx context.Context, notice domain.AlertNotice) error
}

// AlertForwarder publishes recorded alerts to external brokers. A driver
// that keeps alerting at the same severity is only forwarded once per
// dedup window.
type AlertForwarder struct {
	ch         <-chan domain.AlertRecord
	dedup      alertDeduper
	publishers []AlertPublisher
}

func NewAlertForwarder(ch <-chan domain.AlertRecord, dedup alertDeduper, publishers ...AlertPublisher) *AlertForwarder {
	return &AlertForwarder{
		ch:         ch,
		dedup:      dedup,
		publishers: publishers,
	}
}

func (f *AlertForwarder) Run(ctx context.Context) {
	for {
		select {
		case rec, ok := <-f.ch:
			if !ok {
				return
			}
			f.forward(context.WithoutCancel(ctx), rec)

		case <-ctx.Done():
			return
		}
	}
}

func (f *AlertForwarder) forward(ctx context.Context, rec domain.AlertRecord) {
	if len(f.publishers) == 0 {
		return
	}

	if f.dedup != nil && rec.DriverID != "" {
		isDuplicate, err := f.dedup.CheckAlertDedup(ctx, rec.DriverID, rec.Severity)
		if err != nil {
			log.Printf("alert dedup check failed for %s/%s: %v", rec.DriverID, rec.Severity, err)
		} else if isDuplicate {
			metrics.AlertsForwarded.WithLabelValues("deduplicated").Inc()
			return
		}
	}

	notice := domain.AlertNotice{Alert: rec, Message: TollboothMessage(rec)}

	delivered := false
	for _, p := range f.publishers {
		if err := p.PublishAlert(ctx, notice); err != nil {
			log.Printf("alert publish failed for %s: %v", rec.DriverID, err)
			metrics.AlertsForwarded.WithLabelValues("failed").Inc()
			continue
		}
		delivered = true
		metrics.AlertsForwarded.WithLabelValues("published").Inc()
	}

	if delivered && f.dedup != nil && rec.DriverID != "" {
		if err := f.dedup.SetAlertDedup(ctx, rec.DriverID, rec.Severity); err != nil {
			log.Printf("alert dedup set failed for %s: %v", rec.DriverID, err)
		}
	}
}

// TollboothMessage renders the operator-facing text for an alert.
func TollboothMessage(rec domain.AlertRecord) string {
	if rec.NearestPOI != nil && rec.DistanceKm != nil {
		return fmt.Sprintf("Drowsiness detected for Driver %s, %.2f km away from Tollbooth %s",
			rec.DriverID, *rec.DistanceKm, rec.NearestPOI.Name)
	}
	if rec.NearestPOI != nil {
		return fmt.Sprintf("Drowsiness detected for Driver %s near Tollbooth %s", rec.DriverID, rec.NearestPOI.Name)
	}
	return fmt.Sprintf("Drowsiness detected for Driver %s, location unknown", rec.DriverID)
}
