package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	// Upstream stats/odds API
	StatsAPIKey     string        `envconfig:"STATS_API_KEY" required:"true"`
	StatsBaseURL    string        `envconfig:"STATS_BASE_URL" default:"https://api.courtsidedata.io/v1/nba"`
	UpstreamTimeout time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"20s"`

	// Upstream retry policy (429 handling)
	RetryMaxAttempts int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"4"`
	RetryBaseDelay   time.Duration `envconfig:"RETRY_BASE_DELAY" default:"1s"`
	RetryMaxDelay    time.Duration `envconfig:"RETRY_MAX_DELAY" default:"30s"`

	// Warehouse (Postgres)
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     int    `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"courtside"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"courtside_user"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD" required:"true"`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSL_MODE" default:"disable"`

	// Redis (schedule/result cache)
	RedisHost        string        `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort        int           `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword    string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB          int           `envconfig:"REDIS_DB" default:"0"`
	ScheduleCacheTTL time.Duration `envconfig:"SCHEDULE_CACHE_TTL" default:"6h"`
	ResultCacheTTL   time.Duration `envconfig:"RESULT_CACHE_TTL" default:"10m"`

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Orchestrator
	// OperatingTimezone scopes every day-boundary and pregame lead decision.
	OperatingTimezone  string        `envconfig:"OPERATING_TIMEZONE" default:"America/New_York"`
	PregameLeadMinutes int           `envconfig:"PREGAME_LEAD_MINUTES" default:"30"`
	TickInterval       time.Duration `envconfig:"TICK_INTERVAL" default:"30s"`
	DailyRefreshCron   string        `envconfig:"DAILY_REFRESH_CRON" default:"0 5 * * *"`

	// Ingestion cycle
	CycleInterval    time.Duration `envconfig:"CYCLE_INTERVAL" default:"45s"`
	MaxJobRuntime    time.Duration `envconfig:"MAX_JOB_RUNTIME" default:"10m"`
	SnapshotPageSize int           `envconfig:"SNAPSHOT_PAGE_SIZE" default:"10"`
	SnapshotTable    string        `envconfig:"SNAPSHOT_TABLE" default:"raw_snapshots"`

	// Monitoring
	EnableMetrics bool `envconfig:"ENABLE_METRICS" default:"true"`
	MetricsPort   int  `envconfig:"METRICS_PORT" default:"9090"`
}

// Load loads configuration from environment variables
// It first attempts to load from .env file if in development mode
func Load() (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.StatsAPIKey == "" {
		return fmt.Errorf("STATS_API_KEY is required")
	}

	if c.DatabasePassword == "" {
		return fmt.Errorf("DATABASE_PASSWORD is required")
	}

	if _, err := time.LoadLocation(c.OperatingTimezone); err != nil {
		return fmt.Errorf("invalid OPERATING_TIMEZONE %q: %w", c.OperatingTimezone, err)
	}

	if c.SnapshotPageSize < 1 {
		return fmt.Errorf("SNAPSHOT_PAGE_SIZE must be at least 1")
	}

	return nil
}

// Location returns the operating-day timezone.
// Validate already guarantees the name parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.OperatingTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PregameLead returns the pregame lead time as a duration
func (c *Config) PregameLead() time.Duration {
	return time.Duration(c.PregameLeadMinutes) * time.Minute
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DatabaseHost,
		c.DatabasePort,
		c.DatabaseUser,
		c.DatabasePassword,
		c.DatabaseName,
		c.DatabaseSSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// MustLoad loads configuration or panics on error
// Use this in main() where we want to fail fast
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
