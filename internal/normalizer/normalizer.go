package normalizer

import (
	"bytes"
	"encoding/json"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"fleet-monitor/livemap/internal/domain"
	"fleet-monitor/livemap/internal/geo"
	"fleet-monitor/livemap/internal/metrics"
)

// WireEvent is an event as delivered by a transport: the event name, the
// raw JSON body, and an optional driver id taken from the topic or path.
type WireEvent struct {
	Name       string
	Body       []byte
	DriverHint string
}

// Normalize converts a raw event into the canonical TelemetryEvent. It
// never fails: fields that cannot be parsed are dropped and a bad
// location becomes a nil Coordinate.
func Normalize(raw WireEvent, now time.Time) domain.TelemetryEvent {
	payload, ok := decode(raw.Body)
	if !ok {
		log.Printf("malformed %q event body (%d bytes), keeping best-effort event", raw.Name, len(raw.Body))
		metrics.EventsMalformed.Inc()
	}

	kind, payload := resolveKind(raw.Name, payload)

	evt := domain.TelemetryEvent{
		Kind:      kind,
		DriverID:  stringField(payload, "driver_id"),
		Status:    stringField(payload, "status"),
		Timestamp: now,
	}
	if evt.DriverID == "" {
		evt.DriverID = strings.TrimSpace(raw.DriverHint)
	}
	if evt.Status == "" {
		evt.Status = defaultStatus(kind)
	}
	if ts, ok := parseTimestamp(firstPresent(payload, "timestamp", "ts")); ok {
		evt.Timestamp = ts
	}

	if kind == domain.KindTollboothAdded {
		evt.POI = parsePOI(payload)
		return evt
	}

	evt.Coordinate = parseCoordinate(payload)

	// the detector's drowsiness_score outranks a generic confidence
	for _, key := range []string{"drowsiness_score", "confidence"} {
		if v, ok := finiteNumber(payload[key]); ok {
			evt.Confidence = &v
			break
		}
	}
	if v, ok := finiteNumber(payload["distance_km"]); ok {
		evt.DistanceKm = &v
	}
	if s, ok := payload["severity"].(string); ok {
		evt.Severity = strings.TrimSpace(s)
	}
	if d, ok := payload["details"].(map[string]any); ok {
		evt.RawDetails = d
	}
	evt.NearestPoiHint = parsePoiHint(payload)
	if kind == domain.KindAlert {
		evt.AlertID = idString(firstPresent(payload, "alert_id", "id"))
	}

	return evt
}

func decode(body []byte) (map[string]any, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil || payload == nil {
		return map[string]any{}, false
	}
	return payload, true
}

func resolveKind(name string, payload map[string]any) (domain.EventKind, map[string]any) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "drowsiness_alert", "driver_alert", "alert":
		return domain.KindAlert, payload
	case "location_update", "location":
		return domain.KindLocationUpdate, payload
	case "tollbooth_added", "tollbooth":
		return domain.KindTollboothAdded, payload
	}

	// server_event envelopes wrap alerts as {"type":"alert","alert":{...}}
	// or under "notification".
	if t, _ := payload["type"].(string); strings.EqualFold(t, "alert") {
		for _, key := range []string{"alert", "notification"} {
			if inner, ok := payload[key].(map[string]any); ok {
				return domain.KindAlert, inner
			}
		}
		return domain.KindAlert, payload
	}
	if b, _ := payload["alert"].(bool); b {
		return domain.KindAlert, payload
	}
	if t, _ := payload["type"].(string); strings.EqualFold(t, "drowsiness") {
		return domain.KindAlert, payload
	}
	if _, hasName := payload["name"]; hasName && stringField(payload, "driver_id") == "" {
		return domain.KindTollboothAdded, payload
	}
	return domain.KindLocationUpdate, payload
}

func defaultStatus(kind domain.EventKind) string {
	switch kind {
	case domain.KindAlert:
		return domain.StatusAlert
	case domain.KindTollboothAdded:
		return domain.StatusTollbooth
	default:
		return domain.StatusLocation
	}
}

func parseCoordinate(payload map[string]any) *domain.Coordinate {
	if b, _ := payload["location_unknown"].(bool); b {
		return nil
	}
	src := payload
	if _, ok := firstPresentOK(payload, "lat", "latitude"); !ok {
		for _, key := range []string{"location", "driver_location"} {
			if nested, ok := payload[key].(map[string]any); ok {
				src = nested
				break
			}
		}
	}
	lat, ok := finiteNumber(firstPresent(src, "lat", "latitude"))
	if !ok {
		return nil
	}
	lon, ok := finiteNumber(firstPresent(src, "lon", "lng", "longitude"))
	if !ok {
		return nil
	}
	c := domain.Coordinate{Latitude: lat, Longitude: lon}
	if !geo.IsValid(c) {
		return nil
	}
	return &c
}

func parsePoiHint(payload map[string]any) *domain.PoiRef {
	for _, key := range []string{"nearest_tollbooth", "nearest_toll", "nearest_poi"} {
		if m, ok := payload[key].(map[string]any); ok {
			ref := domain.PoiRef{ID: idString(m["id"]), Name: stringField(m, "name")}
			if ref.ID != "" || ref.Name != "" {
				return &ref
			}
		}
	}
	ref := domain.PoiRef{
		ID:   idString(firstPresent(payload, "tollbooth_id", "toll_id")),
		Name: stringField(payload, "tollbooth_name"),
	}
	if ref.Name == "" {
		ref.Name = stringField(payload, "toll_name")
	}
	if ref.ID == "" && ref.Name == "" {
		return nil
	}
	return &ref
}

func parsePOI(payload map[string]any) *domain.PointOfInterest {
	src := payload
	if nested, ok := payload["tollbooth"].(map[string]any); ok {
		src = nested
	}
	id := idString(src["id"])
	if id == "" {
		return nil
	}
	coord := parseCoordinate(src)
	if coord == nil {
		return nil
	}
	return &domain.PointOfInterest{
		ID:         id,
		Name:       stringField(src, "name"),
		Coordinate: *coord,
		Address:    stringField(src, "address"),
	}
}

func parseTimestamp(v any) (time.Time, bool) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, true
		}
	}
	f, ok := finiteNumber(v)
	if !ok || f <= 0 {
		return time.Time{}, false
	}
	if f > 1e12 {
		return time.UnixMilli(int64(f)), true
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)), true
}

// finiteNumber coerces JSON numbers and numeric strings. Anything else,
// including NaN and Inf, is rejected.
func finiteNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	}
	return ""
}

func idString(v any) string {
	switch n := v.(type) {
	case string:
		return strings.TrimSpace(n)
	case json.Number:
		return n.String()
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return ""
}

func firstPresent(m map[string]any, keys ...string) any {
	v, _ := firstPresentOK(m, keys...)
	return v
}

func firstPresentOK(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}
