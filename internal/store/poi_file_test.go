package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tollbooths.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileSource_List(t *testing.T) {
	path := writeFile(t, `
tollbooths:
  - id: "1"
    name: Tollbooth A - Delhi Gate
    lat: 28.7041
    lon: 77.1025
  - id: "5"
    name: Tollbooth E - Ghaziabad
    lat: 28.6692
    lon: 77.4538
    address: NH-9
`)

	pois, err := NewFileSource(path).ListTollbooths(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pois) != 2 {
		t.Fatalf("got %d tollbooths", len(pois))
	}
	if pois[1].ID != "5" || pois[1].Address != "NH-9" || pois[1].Coordinate.Longitude != 77.4538 {
		t.Errorf("unexpected entry %+v", pois[1])
	}
}

func TestFileSource_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{name: "missing file", path: filepath.Join(t.TempDir(), "nope.yaml")},
		{name: "bad yaml", path: writeFile(t, "tollbooths: [")},
		{name: "zero coordinate", path: writeFile(t, "tollbooths:\n  - id: \"1\"\n    name: x\n    lat: 0\n    lon: 0\n")},
		{name: "missing id", path: writeFile(t, "tollbooths:\n  - name: x\n    lat: 28.1\n    lon: 77.1\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFileSource(tt.path).ListTollbooths(context.Background()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFileSource_NotConfigured(t *testing.T) {
	if _, err := NewFileSource("").ListTollbooths(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
