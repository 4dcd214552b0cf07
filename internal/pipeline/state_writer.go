package pipeline

import (
	"context"
	"log"
	"time"

	"fleet-monitor/livemap/internal/domain"
	"fleet-monitor/livemap/internal/metrics"
)

type driverReader interface {
	Driver(id string) (domain.DriverState, bool)
}

type stateMirror interface {
	PipelineStateUpdate(ctx context.Context, st domain.DriverState) error
}

// StateWriter mirrors the live state of changed drivers into Redis.
// Repeated changes to one driver within a flush window are written once.
type StateWriter struct {
	ch        <-chan domain.Notification
	drivers   driverReader
	mirror    stateMirror
	batchSize int
	flush     time.Duration
}

func NewStateWriter(ch <-chan domain.Notification, drivers driverReader, mirror stateMirror) *StateWriter {
	return &StateWriter{
		ch:        ch,
		drivers:   drivers,
		mirror:    mirror,
		batchSize: 100,
		flush:     50 * time.Millisecond,
	}
}

func (w *StateWriter) Run(ctx context.Context) {
	pending := make(map[string]struct{}, w.batchSize)
	order := make([]string, 0, w.batchSize)
	ticker := time.NewTicker(w.flush)
	defer ticker.Stop()

	flush := func() {
		if len(order) == 0 {
			return
		}
		w.flushBatch(context.WithoutCancel(ctx), order)
		clear(pending)
		order = order[:0]
	}

	for {
		select {
		case n, ok := <-w.ch:
			if !ok {
				flush()
				return
			}
			for _, id := range n.ChangedDriverIDs {
				if _, seen := pending[id]; seen {
					continue
				}
				pending[id] = struct{}{}
				order = append(order, id)
			}
			if len(order) >= w.batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-ctx.Done():
			flush()
			return
		}
	}
}

func (w *StateWriter) flushBatch(ctx context.Context, ids []string) {
	for _, id := range ids {
		st, ok := w.drivers.Driver(id)
		if !ok {
			continue
		}
		if err := w.mirror.PipelineStateUpdate(ctx, st); err != nil {
			log.Printf("redis state update failed for %s: %v", id, err)
			metrics.SinkFailures.WithLabelValues("redis_state").Inc()
		}
	}
}
