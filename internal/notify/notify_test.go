package notify

import (
	"encoding/json"
	"testing"
	"time"

	"fleet-monitor/livemap/internal/domain"
)

func TestAlertSubject(t *testing.T) {
	tests := []struct {
		severity domain.AlertSeverity
		want     string
	}{
		{domain.SeverityCritical, "livemap.alerts.critical"},
		{domain.SeverityWarning, "livemap.alerts.warning"},
		{domain.SeverityInfo, "livemap.alerts.info"},
		{"", "livemap.alerts.unknown"},
	}
	for _, tt := range tests {
		if got := AlertSubject(tt.severity); got != tt.want {
			t.Errorf("AlertSubject(%q) = %q, want %q", tt.severity, got, tt.want)
		}
	}
}

func TestEncodeNotice(t *testing.T) {
	dist := 1.25
	notice := domain.AlertNotice{
		Alert: domain.AlertRecord{
			ID:         "a1",
			DriverID:   "driver_007",
			Severity:   domain.SeverityCritical,
			Timestamp:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
			NearestPOI: &domain.PoiRef{ID: "1", Name: "Tollbooth A - Delhi Gate"},
			DistanceKm: &dist,
		},
		Message: "Drowsiness detected for Driver driver_007, 1.25 km away from Tollbooth Tollbooth A - Delhi Gate",
	}

	body, err := encodeNotice(notice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	alert, ok := got["alert"].(map[string]any)
	if !ok {
		t.Fatalf("missing alert object: %s", body)
	}
	if alert["driver_id"] != "driver_007" || alert["severity"] != "CRITICAL" {
		t.Errorf("unexpected alert %v", alert)
	}
	if alert["coordinate"] != nil {
		t.Errorf("expected null coordinate, got %v", alert["coordinate"])
	}
	if got["message"] != notice.Message {
		t.Errorf("message = %v", got["message"])
	}
}
