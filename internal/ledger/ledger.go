package ledger

import (
	"cmp"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"fleet-monitor/livemap/internal/domain"
	"fleet-monitor/livemap/internal/metrics"
)

const DefaultCapacity = 100

type SortBy string

const (
	SortRecency  SortBy = "recency"
	SortDriver   SortBy = "driver"
	SortDistance SortBy = "distance"
)

func ParseSortBy(s string) SortBy {
	switch strings.ToLower(s) {
	case "driver":
		return SortDriver
	case "distance":
		return SortDistance
	default:
		return SortRecency
	}
}

// Filter narrows a query. Empty Search and empty Severity match
// everything.
type Filter struct {
	Search   string
	Severity domain.AlertSeverity
}

// Ledger is a fixed-capacity ring of alert records, newest first. Not
// safe for concurrent use.
type Ledger struct {
	buf   []domain.AlertRecord
	start int // index of the oldest record
	size  int
	seq   uint64
	// ids currently held in the ring
	ids map[string]int
}

func New(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{
		buf: make([]domain.AlertRecord, capacity),
		ids: make(map[string]int, capacity),
	}
}

// Record classifies evt and appends it, evicting the oldest record when
// the ring is full.
func (l *Ledger) Record(evt domain.TelemetryEvent, nearest *domain.PoiRef, distanceKm *float64) domain.AlertRecord {
	l.seq++
	rec := domain.AlertRecord{
		ID:         evt.AlertID,
		Seq:        l.seq,
		DriverID:   evt.DriverID,
		Coordinate: evt.Coordinate,
		Status:     evt.Status,
		Severity:   Classify(evt.Severity, evt.Confidence),
		Timestamp:  evt.Timestamp,
		NearestPOI: nearest,
		DistanceKm: distanceKm,
		Confidence: evt.Confidence,
		Details:    maps.Clone(evt.RawDetails),
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	capacity := len(l.buf)
	if l.size < capacity {
		l.buf[(l.start+l.size)%capacity] = rec
		l.size++
	} else {
		l.forget(l.buf[l.start].ID)
		l.buf[l.start] = rec
		l.start = (l.start + 1) % capacity
		metrics.AlertEvictions.Inc()
	}
	l.ids[rec.ID]++
	metrics.AlertsRecorded.WithLabelValues(string(rec.Severity)).Inc()
	return rec
}

// Has reports whether a record with id is still held in the ring.
func (l *Ledger) Has(id string) bool {
	return l.ids[id] > 0
}

func (l *Ledger) forget(id string) {
	if l.ids[id] <= 1 {
		delete(l.ids, id)
		return
	}
	l.ids[id]--
}

// Classify derives severity from an explicit wire value when it is
// recognised, otherwise from the drowsiness confidence.
func Classify(explicit string, confidence *float64) domain.AlertSeverity {
	switch strings.ToLower(strings.TrimSpace(explicit)) {
	case "high", "critical", "error":
		return domain.SeverityCritical
	case "medium", "warning", "warn":
		return domain.SeverityWarning
	case "low", "info":
		return domain.SeverityInfo
	}
	if confidence == nil {
		return domain.SeverityInfo
	}
	switch c := *confidence; {
	case c > 0.8:
		return domain.SeverityCritical
	case c > 0.6:
		return domain.SeverityWarning
	default:
		return domain.SeverityInfo
	}
}

// Items returns the records newest first.
func (l *Ledger) Items() []domain.AlertRecord {
	out := make([]domain.AlertRecord, l.size)
	capacity := len(l.buf)
	for i := 0; i < l.size; i++ {
		out[i] = l.buf[(l.start+l.size-1-i)%capacity]
	}
	return out
}

func (l *Ledger) Head() (domain.AlertRecord, bool) {
	if l.size == 0 {
		return domain.AlertRecord{}, false
	}
	return l.buf[(l.start+l.size-1)%len(l.buf)], true
}

func (l *Ledger) Count() int {
	return l.size
}

func (l *Ledger) Capacity() int {
	return len(l.buf)
}

func (l *Ledger) CountBySeverity() map[domain.AlertSeverity]int {
	counts := make(map[domain.AlertSeverity]int, len(domain.Severities))
	for _, s := range domain.Severities {
		counts[s] = 0
	}
	for _, r := range l.Items() {
		counts[r.Severity]++
	}
	return counts
}

// Query filters and sorts a snapshot of the ledger. Sorting is stable
// so equal keys keep ledger order.
func (l *Ledger) Query(f Filter, by SortBy) []domain.AlertRecord {
	items := l.Items()
	needle := strings.ToLower(strings.TrimSpace(f.Search))

	out := items[:0]
	for _, r := range items {
		if f.Severity != "" && r.Severity != f.Severity {
			continue
		}
		if needle != "" && !matches(r, needle) {
			continue
		}
		out = append(out, r)
	}

	switch by {
	case SortDriver:
		slices.SortStableFunc(out, func(a, b domain.AlertRecord) int {
			return strings.Compare(a.DriverID, b.DriverID)
		})
	case SortDistance:
		slices.SortStableFunc(out, func(a, b domain.AlertRecord) int {
			return cmp.Compare(distanceOrZero(a), distanceOrZero(b))
		})
	default:
		slices.SortStableFunc(out, func(a, b domain.AlertRecord) int {
			return b.Timestamp.Compare(a.Timestamp)
		})
	}
	return out
}

func matches(r domain.AlertRecord, needle string) bool {
	if strings.Contains(strings.ToLower(r.DriverID), needle) {
		return true
	}
	if r.NearestPOI != nil && strings.Contains(strings.ToLower(r.NearestPOI.Name), needle) {
		return true
	}
	if r.Coordinate != nil {
		if strings.Contains(strconv.FormatFloat(r.Coordinate.Latitude, 'f', -1, 64), needle) ||
			strings.Contains(strconv.FormatFloat(r.Coordinate.Longitude, 'f', -1, 64), needle) {
			return true
		}
	}
	return false
}

func distanceOrZero(r domain.AlertRecord) float64 {
	if r.DistanceKm == nil {
		return 0
	}
	return *r.DistanceKm
}
