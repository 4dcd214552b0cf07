package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.TrackCapacity != 50 || cfg.AlertCapacity != 100 {
		t.Errorf("capacities = %d/%d, want 50/100", cfg.TrackCapacity, cfg.AlertCapacity)
	}
	if cfg.LivenessWindow != 30*time.Second || cfg.ActiveWindow != 5*time.Minute {
		t.Errorf("windows = %v/%v", cfg.LivenessWindow, cfg.ActiveWindow)
	}
	if cfg.RabbitMQURL != "" || cfg.NATSURL != "" {
		t.Error("brokers should be disabled by default")
	}
	if cfg.AlertDedupTTL() != 5*time.Minute {
		t.Errorf("dedup ttl = %v", cfg.AlertDedupTTL())
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TRACK_CAPACITY", "3")
	t.Setenv("LIVENESS_WINDOW", "10s")
	t.Setenv("ACTIVE_WINDOW", "120")
	t.Setenv("POI_SOURCE", "Postgres")
	t.Setenv("ALERT_CAPACITY", "not-a-number")

	cfg := Load()

	if cfg.TrackCapacity != 3 {
		t.Errorf("track capacity = %d", cfg.TrackCapacity)
	}
	if cfg.LivenessWindow != 10*time.Second {
		t.Errorf("liveness = %v", cfg.LivenessWindow)
	}
	if cfg.ActiveWindow != 2*time.Minute {
		t.Errorf("active window = %v", cfg.ActiveWindow)
	}
	if cfg.POISource != "postgres" {
		t.Errorf("poi source = %q", cfg.POISource)
	}
	if cfg.AlertCapacity != 100 {
		t.Errorf("bad int should fall back, got %d", cfg.AlertCapacity)
	}
}
