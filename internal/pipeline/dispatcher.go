package pipeline

import (
	"context"

	"fleet-monitor/livemap/internal/domain"
	"fleet-monitor/livemap/internal/metrics"
)

// Dispatcher fans engine notifications out to the downstream workers.
// A full channel drops the notification for that worker only.
type Dispatcher struct {
	StateChan chan domain.Notification
	AlertChan chan domain.AlertRecord
	HubChan   chan domain.Notification
}

// NewDispatcher sizes the worker channels. A size of zero leaves that
// channel nil, which disables the sink instead of counting drops.
func NewDispatcher(stateSize, alertSize, hubSize int) *Dispatcher {
	d := &Dispatcher{}
	if stateSize > 0 {
		d.StateChan = make(chan domain.Notification, stateSize)
	}
	if alertSize > 0 {
		d.AlertChan = make(chan domain.AlertRecord, alertSize)
	}
	if hubSize > 0 {
		d.HubChan = make(chan domain.Notification, hubSize)
	}
	return d
}

func (d *Dispatcher) Notify(_ context.Context, n domain.Notification) {
	if d.StateChan != nil && len(n.ChangedDriverIDs) > 0 {
		select {
		case d.StateChan <- n:
		default:
			metrics.ChannelDrops.WithLabelValues("state").Inc()
		}
	}

	if d.AlertChan != nil && n.NewAlert != nil {
		select {
		case d.AlertChan <- *n.NewAlert:
		default:
			metrics.ChannelDrops.WithLabelValues("alert").Inc()
		}
	}

	if d.HubChan != nil {
		select {
		case d.HubChan <- n:
		default:
			metrics.ChannelDrops.WithLabelValues("hub").Inc()
		}
	}
}
