package domain

import "time"

type Coordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

type EventKind string

const (
	KindAlert          EventKind = "drowsiness_alert"
	KindLocationUpdate EventKind = "location_update"
	KindTollboothAdded EventKind = "tollbooth_added"
)

const (
	StatusAlert     = "ALERT"
	StatusLocation  = "LOCATION"
	StatusTollbooth = "TOLLBOOTH"
)

// TelemetryEvent is the canonical shape of every inbound event after
// normalization. Coordinate is nil when the source carried no usable
// location.
type TelemetryEvent struct {
	Kind       EventKind
	DriverID   string
	Coordinate *Coordinate
	Status     string
	Timestamp  time.Time

	Confidence     *float64
	Severity       string
	NearestPoiHint *PoiRef
	DistanceKm     *float64
	RawDetails     map[string]any

	AlertID string
	POI     *PointOfInterest
}

type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "INFO"
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityCritical AlertSeverity = "CRITICAL"
)

var Severities = []AlertSeverity{SeverityInfo, SeverityWarning, SeverityCritical}

type AlertRecord struct {
	ID         string         `json:"id"`
	Seq        uint64         `json:"seq"`
	DriverID   string         `json:"driver_id"`
	Coordinate *Coordinate    `json:"coordinate"`
	Status     string         `json:"status"`
	Severity   AlertSeverity  `json:"severity"`
	Timestamp  time.Time      `json:"timestamp"`
	NearestPOI *PoiRef        `json:"nearest_poi,omitempty"`
	DistanceKm *float64       `json:"distance_km,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// AlertNotice is what gets published to brokers for an alert: the
// record plus a human-readable message for the tollbooth operator.
type AlertNotice struct {
	Alert   AlertRecord `json:"alert"`
	Message string      `json:"message"`
}
