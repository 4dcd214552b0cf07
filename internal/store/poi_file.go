package store

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"fleet-monitor/livemap/internal/domain"
	"fleet-monitor/livemap/internal/geo"
)

type tollboothFile struct {
	Tollbooths []tollboothEntry `yaml:"tollbooths"`
}

type tollboothEntry struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	Latitude  float64 `yaml:"lat"`
	Longitude float64 `yaml:"lon"`
	Address   string  `yaml:"address"`
}

// FileSource serves tollbooths from a YAML file. The file is re-read on
// every call so edits are picked up by the next resync.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) ListTollbooths(_ context.Context) ([]domain.PointOfInterest, error) {
	if f.path == "" {
		return nil, ErrNotConfigured
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read tollbooth file: %w", err)
	}

	var doc tollboothFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse tollbooth file: %w", err)
	}

	out := make([]domain.PointOfInterest, 0, len(doc.Tollbooths))
	for i, e := range doc.Tollbooths {
		c := domain.Coordinate{Latitude: e.Latitude, Longitude: e.Longitude}
		if e.ID == "" || !geo.IsValid(c) {
			return nil, fmt.Errorf("tollbooth file entry %d: id and valid coordinate are required", i+1)
		}
		out = append(out, domain.PointOfInterest{ID: e.ID, Name: e.Name, Coordinate: c, Address: e.Address})
	}
	return out, nil
}
