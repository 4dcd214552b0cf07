package pipeline

import (
	"context"
	"log"
	"sync"
	"time"

	"fleet-monitor/livemap/internal/connection"
	"fleet-monitor/livemap/internal/domain"
	"fleet-monitor/livemap/internal/entity"
	"fleet-monitor/livemap/internal/geo"
	"fleet-monitor/livemap/internal/ledger"
	"fleet-monitor/livemap/internal/metrics"
	"fleet-monitor/livemap/internal/normalizer"
)

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

type NotifierFunc func(ctx context.Context, n domain.Notification)

func (f NotifierFunc) Notify(ctx context.Context, n domain.Notification) { f(ctx, n) }

type Stats struct {
	AlertCount      int                          `json:"alert_count"`
	ActiveCount     int                          `json:"active_count"`
	DriverCount     int                          `json:"driver_count"`
	POICount        int                          `json:"poi_count"`
	ConnectionState domain.ConnectionState       `json:"connection_state"`
	BySeverity      map[domain.AlertSeverity]int `json:"by_severity"`
}

// Engine applies inbound events to the entity store, the alert ledger
// and the connection controller under one lock, then emits a single
// notification after the lock is released.
type Engine struct {
	mu       sync.Mutex
	entities *entity.Store
	ledger   *ledger.Ledger
	conn     *connection.Controller
	notifier Notifier
	now      func() time.Time

	resync chan struct{}
}

func NewEngine(
	entities *entity.Store,
	alerts *ledger.Ledger,
	conn *connection.Controller,
	notifier Notifier,
	now func() time.Time,
) *Engine {
	if entities == nil || alerts == nil || conn == nil {
		panic("pipeline: engine requires entity store, ledger and connection controller")
	}
	if notifier == nil {
		notifier = NotifierFunc(func(context.Context, domain.Notification) {})
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{
		entities: entities,
		ledger:   alerts,
		conn:     conn,
		notifier: notifier,
		now:      now,
		resync:   make(chan struct{}, 1),
	}
}

// Resyncs delivers a signal each time the controller requires a resync.
// Signals coalesce while one is pending.
func (e *Engine) Resyncs() <-chan struct{} {
	return e.resync
}

// Handle applies one inbound event. Events that change nothing, such as
// dropped or duplicate ones, emit no notification unless they moved the
// connection state.
func (e *Engine) Handle(ctx context.Context, raw normalizer.WireEvent) domain.Notification {
	n, tr, changed := e.apply(raw)
	e.afterTransition(tr, changed)
	if n.Empty() && !changed {
		return n
	}
	e.notifier.Notify(ctx, n)
	return n
}

func (e *Engine) apply(raw normalizer.WireEvent) (domain.Notification, connection.Transition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	evt := normalizer.Normalize(raw, e.now())
	metrics.EventsReceived.WithLabelValues(string(evt.Kind)).Inc()

	var n domain.Notification
	dropped := false
	switch evt.Kind {
	case domain.KindLocationUpdate:
		if evt.DriverID == "" {
			log.Printf("location update without driver_id dropped")
			metrics.EventsDropped.WithLabelValues("missing_driver_id").Inc()
			dropped = true
			break
		}
		e.upsert(evt, &n)

	case domain.KindAlert:
		// redelivery of an alert still held in the ledger
		if evt.AlertID != "" && e.ledger.Has(evt.AlertID) {
			metrics.EventsDropped.WithLabelValues("duplicate_alert").Inc()
			break
		}
		if evt.DriverID != "" {
			e.upsert(evt, &n)
		}
		nearest, dist := e.alertProximity(evt)
		rec := e.ledger.Record(evt, nearest, dist)
		n.NewAlert = &rec

	case domain.KindTollboothAdded:
		if evt.POI == nil {
			log.Printf("tollbooth event without id or valid coordinate dropped")
			metrics.EventsDropped.WithLabelValues("invalid_tollbooth").Inc()
			dropped = true
			break
		}
		if e.entities.AddOrUpdatePOI(*evt.POI) {
			ref := evt.POI.Ref()
			n.NewPOI = &ref
			n.ChangedDriverIDs = e.refreshAllNearest()
		}
	}

	var tr connection.Transition
	var changed bool
	if !dropped {
		tr, changed = e.conn.EventObserved()
	}
	n.ConnectionState = e.conn.State()
	return n, tr, changed
}

func (e *Engine) upsert(evt domain.TelemetryEvent, n *domain.Notification) {
	moved := e.entities.UpsertPosition(evt.DriverID, evt.Coordinate, evt.Status, evt.Timestamp)
	n.ChangedDriverIDs = []string{evt.DriverID}
	if moved {
		e.refreshNearest(evt.DriverID)
	}
}

// refreshNearest recomputes the driver's nearest tollbooth from its last
// coordinate and reports whether the result changed.
func (e *Engine) refreshNearest(driverID string) bool {
	st, ok := e.entities.Get(driverID)
	if !ok || st.LastCoordinate == nil {
		return false
	}
	ref, dist, ok := e.entities.NearestPOI(*st.LastCoordinate)
	if !ok {
		e.entities.SetNearest(driverID, nil, nil)
		return st.NearestPOI != nil
	}
	e.entities.SetNearest(driverID, &ref, &dist)
	return st.NearestPOI == nil || *st.NearestPOI != ref ||
		st.NearestDistanceKm == nil || *st.NearestDistanceKm != dist
}

// refreshAllNearest is run after the tollbooth set grows. It returns the
// sorted ids of drivers whose nearest tollbooth changed.
func (e *Engine) refreshAllNearest() []string {
	var changed []string
	for _, id := range e.entities.LocatedDriverIDs() {
		if e.refreshNearest(id) {
			changed = append(changed, id)
		}
	}
	return changed
}

// alertProximity prefers the hint carried by the event and falls back
// to the nearest known tollbooth. Proximity is measured from the alert's
// own coordinate, or from the driver's last known one when the alert
// carries none.
func (e *Engine) alertProximity(evt domain.TelemetryEvent) (*domain.PoiRef, *float64) {
	pos := evt.Coordinate
	if pos == nil && evt.DriverID != "" {
		if st, ok := e.entities.Get(evt.DriverID); ok {
			pos = st.LastCoordinate
		}
	}

	if evt.NearestPoiHint != nil {
		hint := *evt.NearestPoiHint
		if hint.Name == "" {
			if poi, ok := e.entities.POI(hint.ID); ok {
				hint.Name = poi.Name
			}
		}
		dist := evt.DistanceKm
		if dist == nil && pos != nil {
			if poi, ok := e.entities.POI(hint.ID); ok {
				d := geo.Distance(*pos, poi.Coordinate)
				dist = &d
			}
		}
		return &hint, dist
	}
	if pos == nil {
		return nil, evt.DistanceKm
	}
	ref, d, ok := e.entities.NearestPOI(*pos)
	if !ok {
		return nil, evt.DistanceKm
	}
	return &ref, &d
}

func (e *Engine) Connecting(ctx context.Context) {
	e.lifecycle(ctx, e.conn.Connecting)
}

func (e *Engine) Connected(ctx context.Context) {
	e.lifecycle(ctx, e.conn.Connected)
}

func (e *Engine) Disconnected(ctx context.Context) {
	e.lifecycle(ctx, e.conn.Disconnected)
}

func (e *Engine) CheckLiveness(ctx context.Context) {
	e.lifecycle(ctx, e.conn.CheckLiveness)
}

// OnTransition reports a transition that was already applied to the
// controller, e.g. by connection.Controller.Run.
func (e *Engine) OnTransition(ctx context.Context, tr connection.Transition) {
	e.afterTransition(tr, true)
	e.notifier.Notify(ctx, domain.Notification{ConnectionState: tr.To})
}

// RunLiveness drives the controller's liveness checks until ctx is done.
func (e *Engine) RunLiveness(ctx context.Context, interval time.Duration) {
	e.conn.Run(ctx, interval, func(tr connection.Transition) {
		log.Printf("connection %s -> %s (no events for liveness window)", tr.From, tr.To)
		e.OnTransition(ctx, tr)
	})
}

func (e *Engine) lifecycle(ctx context.Context, signal func() (connection.Transition, bool)) {
	e.mu.Lock()
	tr, changed := signal()
	e.mu.Unlock()
	if !changed {
		return
	}
	log.Printf("connection %s -> %s", tr.From, tr.To)
	e.afterTransition(tr, true)
	e.notifier.Notify(ctx, domain.Notification{ConnectionState: tr.To})
}

func (e *Engine) afterTransition(tr connection.Transition, changed bool) {
	if !changed {
		return
	}
	metrics.SetConnectionState(string(tr.To),
		string(domain.StateDisconnected), string(domain.StateConnecting),
		string(domain.StateConnected), string(domain.StateStale))
	if !tr.Resync {
		return
	}
	metrics.Resyncs.Inc()
	select {
	case e.resync <- struct{}{}:
	default:
	}
}

// SeedPOIs applies a tollbooth snapshot fetched outside the engine and
// emits one notification per newly added tollbooth.
func (e *Engine) SeedPOIs(ctx context.Context, pois []domain.PointOfInterest) int {
	e.mu.Lock()
	var added []domain.PoiRef
	for _, p := range pois {
		if e.entities.AddOrUpdatePOI(p) {
			added = append(added, p.Ref())
		}
	}
	var moved []string
	if len(added) > 0 {
		moved = e.refreshAllNearest()
	}
	state := e.conn.State()
	e.mu.Unlock()

	for i := range added {
		e.notifier.Notify(ctx, domain.Notification{NewPOI: &added[i], ConnectionState: state})
	}
	if len(moved) > 0 {
		e.notifier.Notify(ctx, domain.Notification{ChangedDriverIDs: moved, ConnectionState: state})
	}
	return len(added)
}

// SeedTrack merges historical fixes into a driver's track.
func (e *Engine) SeedTrack(ctx context.Context, driverID string, history []domain.Coordinate) domain.DriverState {
	e.mu.Lock()
	e.entities.SeedTrack(driverID, history)
	e.refreshNearest(driverID)
	st, _ := e.entities.Get(driverID)
	state := e.conn.State()
	e.mu.Unlock()

	e.notifier.Notify(ctx, domain.Notification{ChangedDriverIDs: []string{driverID}, ConnectionState: state})
	return st
}

func (e *Engine) Driver(id string) (domain.DriverState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.entities.Get(id)
}

func (e *Engine) ActiveDrivers(window time.Duration) []domain.DriverState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.entities.AllActive(window)
}

func (e *Engine) POIs() []domain.PointOfInterest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.entities.POIs()
}

func (e *Engine) Alerts(f ledger.Filter, by ledger.SortBy) []domain.AlertRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Query(f, by)
}

func (e *Engine) ConnectionState() domain.ConnectionState {
	return e.conn.State()
}

func (e *Engine) Stats(activeWindow time.Duration) Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		AlertCount:      e.ledger.Count(),
		ActiveCount:     e.entities.ActiveCount(activeWindow),
		DriverCount:     e.entities.Count(),
		POICount:        e.entities.POICount(),
		ConnectionState: e.conn.State(),
		BySeverity:      e.ledger.CountBySeverity(),
	}
}
