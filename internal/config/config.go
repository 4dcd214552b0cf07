package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP
	HTTPPort string

	// MQTT
	MQTTBroker   string
	MQTTClientID string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Tollbooth and history sources
	POISource       string
	PostgresDSN     string
	SQLitePath      string
	TollboothsFile  string
	POIFetchTimeout time.Duration

	// Alert brokers, empty disables
	RabbitMQURL string
	NATSURL     string

	// Live state
	TrackCapacity  int
	AlertCapacity  int
	LivenessWindow time.Duration
	ActiveWindow   time.Duration

	// Pipeline channels
	StateChannelSize int
	AlertChannelSize int
	HubChannelSize   int

	AlertDedupTTLSeconds int
}

func Load() *Config {
	return &Config{
		HTTPPort:             getEnv("HTTP_PORT", "8000"),
		MQTTBroker:           getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID:         getEnv("MQTT_CLIENT_ID", "livemap"),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		POISource:            strings.ToLower(getEnv("POI_SOURCE", "file")),
		PostgresDSN:          getEnv("POSTGRES_DSN", ""),
		SQLitePath:           getEnv("SQLITE_PATH", "tollbooths.db"),
		TollboothsFile:       getEnv("TOLLBOOTHS_FILE", "tollbooths.yaml"),
		POIFetchTimeout:      getEnvDuration("POI_FETCH_TIMEOUT", 5*time.Second),
		RabbitMQURL:          getEnv("RABBITMQ_URL", ""),
		NATSURL:              getEnv("NATS_URL", ""),
		TrackCapacity:        getEnvInt("TRACK_CAPACITY", 50),
		AlertCapacity:        getEnvInt("ALERT_CAPACITY", 100),
		LivenessWindow:       getEnvDuration("LIVENESS_WINDOW", 30*time.Second),
		ActiveWindow:         getEnvDuration("ACTIVE_WINDOW", 5*time.Minute),
		StateChannelSize:     getEnvInt("STATE_CHANNEL_SIZE", 5000),
		AlertChannelSize:     getEnvInt("ALERT_CHANNEL_SIZE", 1000),
		HubChannelSize:       getEnvInt("HUB_CHANNEL_SIZE", 5000),
		AlertDedupTTLSeconds: getEnvInt("ALERT_DEDUP_TTL_SECONDS", 300),
	}
}

func (c *Config) AlertDedupTTL() time.Duration {
	return time.Duration(c.AlertDedupTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("30s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
