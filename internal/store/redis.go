package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fleet-monitor/livemap/internal/config"
	"fleet-monitor/livemap/internal/domain"
)

const (
	driversGeoKey   = "drivers:geo"
	driversChannel  = "livemap:drivers"
	defaultStateTTL = 5 * time.Minute
)

type RedisStore struct {
	client   *redis.Client
	stateTTL time.Duration
	dedupTTL time.Duration
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisStore(client, cfg.ActiveWindow, cfg.AlertDedupTTL()), nil
}

func newRedisStore(client *redis.Client, stateTTL, dedupTTL time.Duration) *RedisStore {
	if stateTTL <= 0 {
		stateTTL = defaultStateTTL
	}
	if dedupTTL <= 0 {
		dedupTTL = 5 * time.Minute
	}
	return &RedisStore{client: client, stateTTL: stateTTL, dedupTTL: dedupTTL}
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// PipelineStateUpdate mirrors one driver snapshot: a hash that expires
// with the active window, a geo index entry and a pub/sub message.
func (r *RedisStore) PipelineStateUpdate(ctx context.Context, st domain.DriverState) error {
	stateData := driverStateFields(st)

	pubPayload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	stateKey := driverStateKey(st.DriverID)

	pipe := r.client.Pipeline()

	pipe.HSet(ctx, stateKey, stateData)
	pipe.Expire(ctx, stateKey, r.stateTTL)
	if st.LastCoordinate != nil {
		pipe.GeoAdd(ctx, driversGeoKey, &redis.GeoLocation{
			Name:      st.DriverID,
			Longitude: st.LastCoordinate.Longitude,
			Latitude:  st.LastCoordinate.Latitude,
		})
	}
	pipe.Publish(ctx, driversChannel, pubPayload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

func (r *RedisStore) CheckAlertDedup(ctx context.Context, driverID string, severity domain.AlertSeverity) (bool, error) {
	count, err := r.client.Exists(ctx, alertDedupKey(driverID, severity)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return count > 0, nil
}

func (r *RedisStore) SetAlertDedup(ctx context.Context, driverID string, severity domain.AlertSeverity) error {
	return r.client.Set(ctx, alertDedupKey(driverID, severity), "1", r.dedupTTL).Err()
}

func driverStateKey(driverID string) string {
	return fmt.Sprintf("driver:%s:state", driverID)
}

func alertDedupKey(driverID string, severity domain.AlertSeverity) string {
	return fmt.Sprintf("alert:%s:%s", driverID, severity)
}

func driverStateFields(st domain.DriverState) map[string]interface{} {
	fields := map[string]interface{}{
		"driver_id":  st.DriverID,
		"status":     st.LastStatus,
		"last_seen":  st.LastSeen.Unix(),
		"track_len":  len(st.Track),
		"lat":        "",
		"lng":        "",
		"nearest_id": "",
		"nearest_km": "",
		"speed_kmh":  "",
	}
	if st.LastCoordinate != nil {
		fields["lat"] = st.LastCoordinate.Latitude
		fields["lng"] = st.LastCoordinate.Longitude
	}
	if st.NearestPOI != nil {
		fields["nearest_id"] = st.NearestPOI.ID
	}
	if st.NearestDistanceKm != nil {
		fields["nearest_km"] = *st.NearestDistanceKm
	}
	if st.SpeedKmh != nil {
		fields["speed_kmh"] = *st.SpeedKmh
	}
	return fields
}
