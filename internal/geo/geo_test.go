package geo

import (
	"math"
	"testing"

	"fleet-monitor/livemap/internal/domain"
)

const tolerance = 1e-6

var (
	delhi   = domain.Coordinate{Latitude: 28.7041, Longitude: 77.1025}
	noida   = domain.Coordinate{Latitude: 28.4595, Longitude: 77.0266}
	mumbai  = domain.Coordinate{Latitude: 19.0760, Longitude: 72.8777}
	sydney  = domain.Coordinate{Latitude: -33.8688, Longitude: 151.2093}
	antimer = domain.Coordinate{Latitude: -28.7041, Longitude: -102.8975}
)

func TestDistance_Symmetric(t *testing.T) {
	pairs := [][2]domain.Coordinate{
		{delhi, noida},
		{delhi, mumbai},
		{mumbai, sydney},
		{sydney, antimer},
		{delhi, antimer},
	}
	for _, p := range pairs {
		ab := Distance(p[0], p[1])
		ba := Distance(p[1], p[0])
		if math.Abs(ab-ba) > tolerance {
			t.Errorf("distance not symmetric for %v: %f vs %f", p, ab, ba)
		}
	}
}

func TestDistance_ZeroForSamePoint(t *testing.T) {
	for _, c := range []domain.Coordinate{delhi, mumbai, sydney, {Latitude: 90, Longitude: 180}} {
		if d := Distance(c, c); math.Abs(d) > tolerance {
			t.Errorf("expected 0 for %v, got %f", c, d)
		}
	}
}

func TestDistance_KnownValue(t *testing.T) {
	// Delhi to Mumbai is roughly 1150 km great-circle.
	d := Distance(delhi, mumbai)
	if d < 1140 || d > 1160 {
		t.Errorf("expected ~1150 km, got %f", d)
	}
}

func TestBearing(t *testing.T) {
	tests := []struct {
		name string
		a, b domain.Coordinate
		want float64
	}{
		{"due north", domain.Coordinate{Latitude: 10, Longitude: 20}, domain.Coordinate{Latitude: 11, Longitude: 20}, 0},
		{"due east on equator", domain.Coordinate{Latitude: 0, Longitude: 10}, domain.Coordinate{Latitude: 0, Longitude: 11}, 90},
		{"due south", domain.Coordinate{Latitude: 11, Longitude: 20}, domain.Coordinate{Latitude: 10, Longitude: 20}, 180},
		{"due west on equator", domain.Coordinate{Latitude: 0, Longitude: 11}, domain.Coordinate{Latitude: 0, Longitude: 10}, 270},
		{"identical", delhi, delhi, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bearing(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Bearing() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestBearing_Range(t *testing.T) {
	points := []domain.Coordinate{delhi, noida, mumbai, sydney, antimer, {Latitude: -89.9, Longitude: -179.9}}
	for _, a := range points {
		for _, b := range points {
			got := Bearing(a, b)
			if got < 0 || got >= 360 || math.IsNaN(got) {
				t.Errorf("Bearing(%v, %v) = %f out of [0,360)", a, b, got)
			}
		}
	}
}

func TestNearest(t *testing.T) {
	if _, _, ok := Nearest(delhi, nil); ok {
		t.Fatal("expected no result for empty candidates")
	}

	c, d, ok := Nearest(delhi, []Candidate{{ID: "1", Coordinate: mumbai}})
	if !ok || c.ID != "1" {
		t.Fatalf("expected single candidate, got %+v ok=%v", c, ok)
	}
	if math.Abs(d-Distance(delhi, mumbai)) > tolerance {
		t.Errorf("expected true distance, got %f", d)
	}

	c, _, _ = Nearest(delhi, []Candidate{
		{ID: "far", Coordinate: mumbai},
		{ID: "near", Coordinate: noida},
		{ID: "far2", Coordinate: sydney},
	})
	if c.ID != "near" {
		t.Errorf("expected near, got %s", c.ID)
	}
}

func TestNearest_TieKeepsFirst(t *testing.T) {
	c, _, _ := Nearest(delhi, []Candidate{
		{ID: "a", Coordinate: noida},
		{ID: "b", Coordinate: noida},
	})
	if c.ID != "a" {
		t.Errorf("expected first-encountered candidate a, got %s", c.ID)
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		c    domain.Coordinate
		want bool
	}{
		{"delhi", delhi, true},
		{"origin sentinel", domain.Coordinate{}, false},
		{"lat zero only", domain.Coordinate{Latitude: 0, Longitude: 10}, true},
		{"lat too high", domain.Coordinate{Latitude: 90.1, Longitude: 10}, false},
		{"lon too low", domain.Coordinate{Latitude: 10, Longitude: -180.5}, false},
		{"poles ok", domain.Coordinate{Latitude: -90, Longitude: 180}, true},
		{"nan", domain.Coordinate{Latitude: math.NaN(), Longitude: 10}, false},
		{"inf", domain.Coordinate{Latitude: 10, Longitude: math.Inf(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.c); got != tt.want {
				t.Errorf("IsValid(%v) = %v, want %v", tt.c, got, tt.want)
			}
		})
	}
	if !InRange(domain.Coordinate{}) {
		t.Error("InRange should accept (0,0)")
	}
}

func TestSpeed(t *testing.T) {
	if s := Speed(delhi, noida, 0); s != 0 {
		t.Errorf("expected 0 for zero elapsed, got %f", s)
	}
	want := Distance(delhi, noida)
	if s := Speed(delhi, noida, 3600); math.Abs(s-want) > tolerance {
		t.Errorf("expected %f km/h, got %f", want, s)
	}
}

func TestBoundingBox(t *testing.T) {
	b := BoundingBox(domain.Coordinate{Latitude: 0, Longitude: 0}, 111)
	if math.Abs(b.North-1) > tolerance || math.Abs(b.South+1) > tolerance {
		t.Errorf("unexpected lat bounds %+v", b)
	}
	if math.Abs(b.East-1) > tolerance || math.Abs(b.West+1) > tolerance {
		t.Errorf("unexpected lon bounds %+v", b)
	}
}

func TestBox_Contains(t *testing.T) {
	b := BoundingBox(delhi, 10)
	if !b.Contains(delhi) {
		t.Error("box must contain its center")
	}
	if b.Contains(domain.Coordinate{Latitude: 19.076, Longitude: 72.8777}) {
		t.Error("Mumbai is not within 10km of Delhi")
	}
}

func TestFormatDistance(t *testing.T) {
	tests := []struct {
		km   float64
		want string
	}{
		{0.85, "850m"},
		{0.0004, "0m"},
		{1, "1.00km"},
		{12.346, "12.35km"},
	}
	for _, tt := range tests {
		if got := FormatDistance(tt.km); got != tt.want {
			t.Errorf("FormatDistance(%f) = %s, want %s", tt.km, got, tt.want)
		}
	}
}
