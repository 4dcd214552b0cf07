package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite"

	"fleet-monitor/livemap/internal/domain"
)

// SQLiteStore reads the TollBooths table of the legacy operator database.
type SQLiteStore struct {
	db *sql.DB
}

// LegacyTollbooths are the rows the legacy operator database shipped with.
var LegacyTollbooths = []domain.PointOfInterest{
	{ID: "1", Name: "Ahmedabad Toll Plaza", Coordinate: domain.Coordinate{Latitude: 23.0396, Longitude: 72.5660}},
	{ID: "2", Name: "Vadodara Toll Plaza", Coordinate: domain.Coordinate{Latitude: 22.3072, Longitude: 73.1812}},
	{ID: "3", Name: "Surat Toll Plaza", Coordinate: domain.Coordinate{Latitude: 21.1702, Longitude: 72.8311}},
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, ErrNotConfigured
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verify sqlite %q: %w", path, err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListTollbooths(ctx context.Context) ([]domain.PointOfInterest, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, latitude, longitude FROM TollBooths ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list legacy tollbooths: %w", err)
	}
	defer rows.Close()

	var out []domain.PointOfInterest
	for rows.Next() {
		var (
			id  int64
			poi domain.PointOfInterest
		)
		if err := rows.Scan(&id, &poi.Name, &poi.Coordinate.Latitude, &poi.Coordinate.Longitude); err != nil {
			return nil, fmt.Errorf("list legacy tollbooths: scan: %w", err)
		}
		poi.ID = strconv.FormatInt(id, 10)
		out = append(out, poi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list legacy tollbooths: %w", err)
	}
	return out, nil
}

// InitLegacySchema creates the TollBooths table and inserts the given rows,
// replacing any with the same id.
func (s *SQLiteStore) InitLegacySchema(ctx context.Context, seed []domain.PointOfInterest) error {
	if s == nil || s.db == nil {
		return errors.New("init legacy schema: DB is nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init legacy schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createQuery := `
	CREATE TABLE IF NOT EXISTS TollBooths (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		username TEXT UNIQUE,
		password_hash TEXT
	);
	`
	if _, err := tx.ExecContext(ctx, createQuery); err != nil {
		return fmt.Errorf("init legacy schema: create table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO TollBooths (id, name, latitude, longitude) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("init legacy schema: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range seed {
		id, err := strconv.ParseInt(p.ID, 10, 64)
		if err != nil {
			return fmt.Errorf("init legacy schema: tollbooth id %q is not numeric", p.ID)
		}
		if _, err := stmt.ExecContext(ctx, id, p.Name, p.Coordinate.Latitude, p.Coordinate.Longitude); err != nil {
			return fmt.Errorf("init legacy schema: insert id=%d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init legacy schema: commit tx: %w", err)
	}
	return nil
}
