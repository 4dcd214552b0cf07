package entity

import (
	"slices"
	"strings"
	"time"

	"fleet-monitor/livemap/internal/domain"
	"fleet-monitor/livemap/internal/geo"
	"fleet-monitor/livemap/internal/metrics"
)

const DefaultTrackCapacity = 50

type driver struct {
	state domain.DriverState
	// timestamp of the fix currently held in LastCoordinate
	fixAt time.Time
}

// Store holds live per-driver state and the tollbooth set. It is not
// safe for concurrent use; the reconciliation engine serializes access.
type Store struct {
	trackCap int
	now      func() time.Time

	drivers map[string]*driver
	pois    []domain.PointOfInterest
	poiIdx  map[string]int
}

func NewStore(trackCap int, now func() time.Time) *Store {
	if trackCap <= 0 {
		trackCap = DefaultTrackCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		trackCap: trackCap,
		now:      now,
		drivers:  make(map[string]*driver),
		poiIdx:   make(map[string]int),
	}
}

// UpsertPosition applies one observation for driverID. A nil or invalid
// coordinate refreshes status and last_seen only. It reports whether the
// driver's last coordinate moved.
func (s *Store) UpsertPosition(driverID string, coord *domain.Coordinate, status string, ts time.Time) bool {
	d, ok := s.drivers[driverID]
	if !ok {
		d = &driver{state: domain.DriverState{DriverID: driverID}}
		s.drivers[driverID] = d
	}

	if !ts.Before(d.state.LastSeen) {
		d.state.LastSeen = ts
		if status != "" {
			d.state.LastStatus = status
		}
	}

	if coord == nil || !geo.IsValid(*coord) {
		return false
	}
	if d.state.LastCoordinate != nil {
		if ts.Before(d.fixAt) {
			return false
		}
		if *d.state.LastCoordinate == *coord && ts.Equal(d.fixAt) {
			return false
		}
	}

	moved := d.state.LastCoordinate == nil || *d.state.LastCoordinate != *coord
	if d.state.LastCoordinate != nil && ts.After(d.fixAt) {
		v := geo.Speed(*d.state.LastCoordinate, *coord, ts.Sub(d.fixAt).Seconds())
		d.state.SpeedKmh = &v
	}
	c := *coord
	d.state.LastCoordinate = &c
	d.fixAt = ts
	s.appendTrack(d, c)
	return moved
}

func (s *Store) appendTrack(d *driver, c domain.Coordinate) {
	d.state.Track = append(d.state.Track, c)
	if over := len(d.state.Track) - s.trackCap; over > 0 {
		d.state.Track = slices.Delete(d.state.Track, 0, over)
		metrics.TrackEvictions.Add(float64(over))
	}
}

// SeedTrack prepends historical fixes to the driver's track, keeping the
// most recent trackCap points. Invalid coordinates are skipped.
func (s *Store) SeedTrack(driverID string, history []domain.Coordinate) {
	d, ok := s.drivers[driverID]
	if !ok {
		d = &driver{state: domain.DriverState{DriverID: driverID}}
		s.drivers[driverID] = d
	}

	seeded := make([]domain.Coordinate, 0, len(history)+len(d.state.Track))
	for _, c := range history {
		if geo.IsValid(c) {
			seeded = append(seeded, c)
		}
	}
	if len(seeded) == 0 {
		return
	}
	seeded = append(seeded, d.state.Track...)
	if over := len(seeded) - s.trackCap; over > 0 {
		seeded = seeded[over:]
	}
	d.state.Track = seeded

	if d.state.LastCoordinate == nil {
		last := seeded[len(seeded)-1]
		d.state.LastCoordinate = &last
	}
}

func (s *Store) SetNearest(driverID string, ref *domain.PoiRef, distanceKm *float64) {
	d, ok := s.drivers[driverID]
	if !ok {
		return
	}
	d.state.NearestPOI = ref
	d.state.NearestDistanceKm = distanceKm
}

func (s *Store) Get(driverID string) (domain.DriverState, bool) {
	d, ok := s.drivers[driverID]
	if !ok {
		return domain.DriverState{}, false
	}
	return clone(d.state), true
}

// AllActive returns drivers seen within the window, ordered by id.
func (s *Store) AllActive(since time.Duration) []domain.DriverState {
	cutoff := s.now().Add(-since)
	out := make([]domain.DriverState, 0, len(s.drivers))
	for _, d := range s.drivers {
		if !d.state.LastSeen.Before(cutoff) {
			out = append(out, clone(d.state))
		}
	}
	slices.SortFunc(out, func(a, b domain.DriverState) int {
		return strings.Compare(a.DriverID, b.DriverID)
	})
	return out
}

// LocatedDriverIDs returns, sorted, the ids of drivers with a known
// coordinate.
func (s *Store) LocatedDriverIDs() []string {
	ids := make([]string, 0, len(s.drivers))
	for id, d := range s.drivers {
		if d.state.LastCoordinate != nil {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (s *Store) ActiveCount(since time.Duration) int {
	cutoff := s.now().Add(-since)
	n := 0
	for _, d := range s.drivers {
		if !d.state.LastSeen.Before(cutoff) {
			n++
		}
	}
	return n
}

func (s *Store) Count() int {
	return len(s.drivers)
}

// AddOrUpdatePOI inserts poi unless its id is already known. Existing
// entries are never overwritten.
func (s *Store) AddOrUpdatePOI(poi domain.PointOfInterest) bool {
	if _, exists := s.poiIdx[poi.ID]; exists {
		return false
	}
	s.poiIdx[poi.ID] = len(s.pois)
	s.pois = append(s.pois, poi)
	return true
}

func (s *Store) POI(id string) (domain.PointOfInterest, bool) {
	i, ok := s.poiIdx[id]
	if !ok {
		return domain.PointOfInterest{}, false
	}
	return s.pois[i], true
}

func (s *Store) POIs() []domain.PointOfInterest {
	return slices.Clone(s.pois)
}

func (s *Store) POICount() int {
	return len(s.pois)
}

func (s *Store) NearestPOI(coord domain.Coordinate) (domain.PoiRef, float64, bool) {
	candidates := make([]geo.Candidate, len(s.pois))
	for i, p := range s.pois {
		candidates[i] = geo.Candidate{ID: p.ID, Coordinate: p.Coordinate}
	}
	best, dist, ok := geo.Nearest(coord, candidates)
	if !ok {
		return domain.PoiRef{}, 0, false
	}
	return s.pois[s.poiIdx[best.ID]].Ref(), dist, true
}

func clone(st domain.DriverState) domain.DriverState {
	out := st
	out.Track = slices.Clone(st.Track)
	if st.LastCoordinate != nil {
		c := *st.LastCoordinate
		out.LastCoordinate = &c
	}
	if st.NearestPOI != nil {
		r := *st.NearestPOI
		out.NearestPOI = &r
	}
	if st.NearestDistanceKm != nil {
		d := *st.NearestDistanceKm
		out.NearestDistanceKm = &d
	}
	if st.SpeedKmh != nil {
		v := *st.SpeedKmh
		out.SpeedKmh = &v
	}
	return out
}
