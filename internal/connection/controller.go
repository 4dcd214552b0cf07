package connection

import (
	"context"
	"sync"
	"time"

	"fleet-monitor/livemap/internal/domain"
)

// Transition describes one state change. Resync is set when entering
// Connected after the initial boot connection.
type Transition struct {
	From   domain.ConnectionState
	To     domain.ConnectionState
	Resync bool
}

type Controller struct {
	mu       sync.Mutex
	state    domain.ConnectionState
	window   time.Duration
	now      func() time.Time
	lastSeen time.Time
	booted   bool
}

func NewController(livenessWindow time.Duration, now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	return &Controller{
		state:  domain.StateDisconnected,
		window: livenessWindow,
		now:    now,
	}
}

func (c *Controller) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connecting is signalled when the transport starts dialing.
func (c *Controller) Connecting() (Transition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.StateDisconnected {
		return Transition{}, false
	}
	return c.move(domain.StateConnecting), true
}

// Connected is signalled by the transport once the session is up.
func (c *Controller) Connected() (Transition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == domain.StateConnected {
		c.lastSeen = c.now()
		return Transition{}, false
	}
	c.lastSeen = c.now()
	return c.enterConnected(), true
}

func (c *Controller) Disconnected() (Transition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == domain.StateDisconnected {
		return Transition{}, false
	}
	return c.move(domain.StateDisconnected), true
}

// EventObserved re-arms the liveness deadline. A stale transport that
// delivers an event is considered connected again.
func (c *Controller) EventObserved() (Transition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = c.now()
	if c.state != domain.StateStale {
		return Transition{}, false
	}
	return c.enterConnected(), true
}

// CheckLiveness moves Connected to Stale once no event has been seen
// for the liveness window.
func (c *Controller) CheckLiveness() (Transition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.StateConnected || c.window <= 0 {
		return Transition{}, false
	}
	if c.now().Sub(c.lastSeen) <= c.window {
		return Transition{}, false
	}
	return c.move(domain.StateStale), true
}

// Run checks liveness every interval until ctx is done, reporting each
// transition to onTransition.
func (c *Controller) Run(ctx context.Context, interval time.Duration, onTransition func(Transition)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if tr, ok := c.CheckLiveness(); ok && onTransition != nil {
				onTransition(tr)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) enterConnected() Transition {
	tr := c.move(domain.StateConnected)
	tr.Resync = c.booted
	c.booted = true
	return tr
}

func (c *Controller) move(to domain.ConnectionState) Transition {
	tr := Transition{From: c.state, To: to}
	c.state = to
	return tr
}
