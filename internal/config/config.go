package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the adpulse services.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	ClickHouse  ClickHouseConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
	Metrics     MetricsConfig
	Geo         GeoConfig
	Aggregation AggregationConfig
	Jobs        JobsConfig
	Simulator   SimulatorConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
	// PublicURL prefixes the tracking URLs handed out for ad markup.
	PublicURL       string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// ClickHouseConfig configures the optional columnar event log. When
// enabled, events are appended to and scanned from ClickHouse instead of
// PostgreSQL.
type ClickHouseConfig struct {
	Enabled     bool
	Addrs       []string
	Database    string
	User        string
	Password    string
	DialTimeout time.Duration
}

// RateLimitConfig holds separate token buckets for the ingest endpoints
// and everything else.
type RateLimitConfig struct {
	Enabled     bool
	IngestRPS   float64
	IngestBurst int
	ReadRPS     float64
	ReadBurst   int
}

type LogConfig struct {
	Level  string
	Format string
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

// GeoConfig configures region lookup for events ingested without one.
type GeoConfig struct {
	Enabled      bool
	DatabasePath string
	CacheSize    int
	CacheTTL     time.Duration
}

type AggregationConfig struct {
	// StrictConsistency makes ingest take the same lock as resync and
	// clear, so readers never observe an ingest interleaved with a rebuild.
	StrictConsistency bool
	ResyncPageSize    int
	ResyncBatchSize   int
	LockTTL           time.Duration
	LockWait          time.Duration
}

type JobsConfig struct {
	// ResyncSchedule is a cron spec with a seconds field; empty disables
	// the scheduled resync.
	ResyncSchedule string
}

type SimulatorConfig struct {
	Enabled            bool
	// PollInterval is how often a stopped simulation checks for a start.
	PollInterval       time.Duration
	EventsPerIntensity int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("ADPULSE_HTTP_ADDR", ":8080"),
			Env:             getEnv("ADPULSE_ENV", "development"),
			ShutdownTimeout: getDurationEnv("ADPULSE_SHUTDOWN_TIMEOUT", 30*time.Second),
			PublicURL:       getEnv("ADPULSE_PUBLIC_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolEnv("ADPULSE_DB_ENABLED", true),
			Host:     getEnv("ADPULSE_DB_HOST", "localhost"),
			Port:     getIntEnv("ADPULSE_DB_PORT", 5432),
			User:     getEnv("ADPULSE_DB_USER", "adpulse"),
			Password: getEnv("ADPULSE_DB_PASSWORD", "adpulse_secret"),
			DBName:   getEnv("ADPULSE_DB_NAME", "adpulse"),
			SSLMode:  getEnv("ADPULSE_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("ADPULSE_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("ADPULSE_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("ADPULSE_REDIS_ENABLED", true),
			Addr:     getEnv("ADPULSE_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("ADPULSE_REDIS_PASSWORD", ""),
			DB:       getIntEnv("ADPULSE_REDIS_DB", 0),
			PoolSize: getIntEnv("ADPULSE_REDIS_POOL_SIZE", 10),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:     getBoolEnv("ADPULSE_CLICKHOUSE_ENABLED", false),
			Addrs:       getSliceEnv("ADPULSE_CLICKHOUSE_ADDRS", []string{"localhost:9000"}),
			Database:    getEnv("ADPULSE_CLICKHOUSE_DB", "adpulse"),
			User:        getEnv("ADPULSE_CLICKHOUSE_USER", "default"),
			Password:    getEnv("ADPULSE_CLICKHOUSE_PASSWORD", ""),
			DialTimeout: getDurationEnv("ADPULSE_CLICKHOUSE_DIAL_TIMEOUT", 5*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getBoolEnv("ADPULSE_RATE_LIMIT_ENABLED", true),
			IngestRPS:   getFloatEnv("ADPULSE_RATE_LIMIT_INGEST_RPS", 2000),
			IngestBurst: getIntEnv("ADPULSE_RATE_LIMIT_INGEST_BURST", 200),
			ReadRPS:     getFloatEnv("ADPULSE_RATE_LIMIT_READ_RPS", 200),
			ReadBurst:   getIntEnv("ADPULSE_RATE_LIMIT_READ_BURST", 50),
		},
		Log: LogConfig{
			Level:  getEnv("ADPULSE_LOG_LEVEL", "info"),
			Format: getEnv("ADPULSE_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("ADPULSE_METRICS_ENABLED", true),
			Path:    getEnv("ADPULSE_METRICS_PATH", "/metrics"),
		},
		Geo: GeoConfig{
			Enabled:      getBoolEnv("ADPULSE_GEO_ENABLED", false),
			DatabasePath: getEnv("ADPULSE_GEO_DB_PATH", "/app/data/GeoLite2-Country.mmdb"),
			CacheSize:    getIntEnv("ADPULSE_GEO_CACHE_SIZE", 10000),
			CacheTTL:     getDurationEnv("ADPULSE_GEO_CACHE_TTL", 1*time.Hour),
		},
		Aggregation: AggregationConfig{
			StrictConsistency: getBoolEnv("ADPULSE_STRICT_CONSISTENCY", false),
			ResyncPageSize:    getIntEnv("ADPULSE_RESYNC_PAGE_SIZE", 500),
			ResyncBatchSize:   getIntEnv("ADPULSE_RESYNC_BATCH_SIZE", 100),
			LockTTL:           getDurationEnv("ADPULSE_LOCK_TTL", 30*time.Second),
			LockWait:          getDurationEnv("ADPULSE_LOCK_WAIT", 10*time.Second),
		},
		Jobs: JobsConfig{
			ResyncSchedule: getEnv("ADPULSE_RESYNC_SCHEDULE", ""),
		},
		Simulator: SimulatorConfig{
			Enabled:            getBoolEnv("ADPULSE_SIMULATOR_ENABLED", true),
			PollInterval:       getDurationEnv("ADPULSE_SIMULATOR_POLL", 1*time.Second),
			EventsPerIntensity: getIntEnv("ADPULSE_SIMULATOR_EVENTS_PER_INTENSITY", 5),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Aggregation.ResyncPageSize <= 0 {
		return fmt.Errorf("ADPULSE_RESYNC_PAGE_SIZE must be positive, got %d", c.Aggregation.ResyncPageSize)
	}
	if c.Aggregation.ResyncBatchSize <= 0 {
		return fmt.Errorf("ADPULSE_RESYNC_BATCH_SIZE must be positive, got %d", c.Aggregation.ResyncBatchSize)
	}
	if c.Aggregation.LockTTL <= 0 {
		return fmt.Errorf("ADPULSE_LOCK_TTL must be positive")
	}
	if c.Redis.Enabled && c.Redis.PoolSize <= 0 {
		return fmt.Errorf("ADPULSE_REDIS_POOL_SIZE must be positive, got %d", c.Redis.PoolSize)
	}
	if c.ClickHouse.Enabled && len(c.ClickHouse.Addrs) == 0 {
		return fmt.Errorf("ADPULSE_CLICKHOUSE_ADDRS is required when ClickHouse is enabled")
	}
	if c.Simulator.Enabled {
		if c.Simulator.PollInterval <= 0 {
			return fmt.Errorf("ADPULSE_SIMULATOR_POLL must be positive")
		}
		if c.Simulator.EventsPerIntensity <= 0 {
			return fmt.Errorf("ADPULSE_SIMULATOR_EVENTS_PER_INTENSITY must be positive")
		}
	}
	if c.Jobs.ResyncSchedule != "" {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(c.Jobs.ResyncSchedule); err != nil {
			return fmt.Errorf("invalid ADPULSE_RESYNC_SCHEDULE: %w", err)
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
