package domain

import "time"

type DriverState struct {
	DriverID          string       `json:"driver_id"`
	LastCoordinate    *Coordinate  `json:"last_coordinate"`
	LastStatus        string       `json:"last_status"`
	LastSeen          time.Time    `json:"last_seen"`
	Track             []Coordinate `json:"track"`
	NearestPOI        *PoiRef      `json:"nearest_poi,omitempty"`
	NearestDistanceKm *float64     `json:"nearest_distance_km,omitempty"`
	SpeedKmh          *float64     `json:"speed_kmh,omitempty"`
}

type PoiRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PointOfInterest is a tollbooth. Immutable once added to the store.
type PointOfInterest struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Coordinate Coordinate `json:"coordinate"`
	Address    string     `json:"address,omitempty"`
}

func (p PointOfInterest) Ref() PoiRef {
	return PoiRef{ID: p.ID, Name: p.Name}
}

type ConnectionState string

const (
	StateDisconnected ConnectionState = "DISCONNECTED"
	StateConnecting   ConnectionState = "CONNECTING"
	StateConnected    ConnectionState = "CONNECTED"
	StateStale        ConnectionState = "STALE"
)

// Notification is the single consolidated change set emitted after each
// processed event or lifecycle transition.
type Notification struct {
	ChangedDriverIDs []string        `json:"changed_driver_ids"`
	NewAlert         *AlertRecord    `json:"new_alert,omitempty"`
	NewPOI           *PoiRef         `json:"new_poi,omitempty"`
	ConnectionState  ConnectionState `json:"connection_state"`
}

func (n Notification) Empty() bool {
	return len(n.ChangedDriverIDs) == 0 && n.NewAlert == nil && n.NewPOI == nil
}
