package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"fleet-monitor/livemap/internal/domain"
)

type POISource interface {
	ListTollbooths(ctx context.Context) ([]domain.PointOfInterest, error)
}

type poiSeeder interface {
	SeedPOIs(ctx context.Context, pois []domain.PointOfInterest) int
	Resyncs() <-chan struct{}
}

// Resyncer loads the tollbooth snapshot at startup and again whenever the
// engine reports a connectivity gap.
type Resyncer struct {
	engine      poiSeeder
	source      POISource
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
}

func NewResyncer(engine poiSeeder, source POISource, timeout time.Duration) *Resyncer {
	return &Resyncer{
		engine:      engine,
		source:      source,
		timeout:     timeout,
		maxAttempts: 4,
		backoff:     200 * time.Millisecond,
	}
}

func (r *Resyncer) Run(ctx context.Context) {
	if err := r.Sync(ctx); err != nil {
		log.Printf("initial tollbooth sync failed: %v", err)
	}

	for {
		select {
		case <-r.engine.Resyncs():
			if err := r.Sync(ctx); err != nil {
				log.Printf("tollbooth resync failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Sync fetches the current snapshot, retrying with exponential backoff,
// and seeds the engine with it.
func (r *Resyncer) Sync(ctx context.Context) error {
	if r.source == nil {
		return nil
	}

	backoff := r.backoff
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
		pois, err := r.source.ListTollbooths(fetchCtx)
		cancel()
		if err == nil {
			added := r.engine.SeedPOIs(ctx, pois)
			log.Printf("tollbooth sync: %d received, %d new", len(pois), added)
			return nil
		}
		lastErr = err

		if attempt == r.maxAttempts {
			break
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return fmt.Errorf("list tollbooths after %d attempts: %w", r.maxAttempts, lastErr)
}
