package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fleet-monitor/livemap/internal/domain"
)

var (
	ErrNoHistory     = errors.New("no location history for driver")
	ErrNotConfigured = errors.New("source not configured")
)

const defaultHistoryLimit = 50

// PostgresStore reads tollbooths and recorded driver positions. The
// service never writes to it; scripts/init_db owns the schema.
type PostgresStore struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, ErrNotConfigured
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verify postgres connection: %w", err)
	}

	return NewPostgresStore(db), nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) ListTollbooths(ctx context.Context) ([]domain.PointOfInterest, error) {
	const q = `SELECT id, name, latitude, longitude, COALESCE(address, '') FROM tollbooths ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list tollbooths: %w", err)
	}
	defer rows.Close()

	var out []domain.PointOfInterest
	for rows.Next() {
		var (
			id  int64
			poi domain.PointOfInterest
		)
		if err := rows.Scan(&id, &poi.Name, &poi.Coordinate.Latitude, &poi.Coordinate.Longitude, &poi.Address); err != nil {
			return nil, fmt.Errorf("list tollbooths: scan: %w", err)
		}
		poi.ID = strconv.FormatInt(id, 10)
		out = append(out, poi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tollbooths: %w", err)
	}
	return out, nil
}

// DriverHistory returns up to limit recorded positions, oldest first.
func (s *PostgresStore) DriverHistory(ctx context.Context, driverID string, limit int) ([]domain.Coordinate, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	const q = `SELECT latitude, longitude FROM driver_locations WHERE driver_id = $1 ORDER BY recorded_at DESC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, q, driverID, limit)
	if err != nil {
		return nil, fmt.Errorf("driver history %s: %w", driverID, err)
	}
	defer rows.Close()

	var out []domain.Coordinate
	for rows.Next() {
		var c domain.Coordinate
		if err := rows.Scan(&c.Latitude, &c.Longitude); err != nil {
			return nil, fmt.Errorf("driver history %s: scan: %w", driverID, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("driver history %s: %w", driverID, err)
	}
	if len(out) == 0 {
		return nil, ErrNoHistory
	}

	slices.Reverse(out)
	return out, nil
}
