package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/hemasoorya80-maker/stock-reservation-service/pkg/config"
)

// Config holds all configuration for the reservation service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	Host      string `env:"HOST" envDefault:"0.0.0.0"`
	Port      int    `env:"PORT" envDefault:"3000"`
	APIPrefix string `env:"API_PREFIX" envDefault:"/api/v1"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"postgres"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"reservations"`
	PostgresSSL  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	// Database pool
	DBMaxConns int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns int32 `env:"DB_MIN_CONNS" envDefault:"2"`

	// Slow query logging threshold in milliseconds; 0 disables.
	SlowQueryThresholdMs int `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`

	// Reservation lifecycle
	ReservationTimeoutMins int `env:"RESERVATION_TIMEOUT_MINUTES" envDefault:"10"`
	ExpireIntervalSecs     int `env:"EXPIRE_INTERVAL_SECONDS" envDefault:"30"`

	// Item read cache TTL in milliseconds.
	CacheTTLItemsMs int `env:"CACHE_TTL_ITEMS" envDefault:"30000"`

	// Rate limiting
	RateLimitWindowMs        int           `env:"RATE_LIMIT_WINDOW_MS" envDefault:"10000"`
	RateLimitMaxRequests     int           `env:"RATE_LIMIT_MAX_REQUESTS" envDefault:"20"`
	RateLimitReadMaxRequests int           `env:"RATE_LIMIT_READ_MAX_REQUESTS" envDefault:"100"`
	SlowDownAfter            int           `env:"SLOW_DOWN_AFTER" envDefault:"10"`
	SlowDownDelayMs          int           `env:"SLOW_DOWN_DELAY_MS" envDefault:"500"`
	SlowDownMaxDelayMs       int           `env:"SLOW_DOWN_MAX_DELAY_MS" envDefault:"2000"`
	RateLimitCleanupInterval time.Duration `env:"RATE_LIMIT_CLEANUP_INTERVAL" envDefault:"5m"`

	// Idempotency replay
	IdempotencyTTLHours   int           `env:"IDEMPOTENCY_TTL_HOURS" envDefault:"24"`
	IdempotencySweepEvery time.Duration `env:"IDEMPOTENCY_SWEEP_INTERVAL" envDefault:"1h"`

	// CORS
	CORSOrigins []string `env:"CORS_ORIGIN" envDefault:"*" envSeparator:","`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation). Empty leaves
	// the endpoints registered but unreachable.
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`
}

// Load reads configuration from environment variables. Validation runs
// inside pkgconfig.Load via the Validate hook.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load reservation config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants the env tags cannot express.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if c.ReservationTimeoutMins <= 0 {
		return fmt.Errorf("RESERVATION_TIMEOUT_MINUTES must be > 0, got %d", c.ReservationTimeoutMins)
	}
	if c.ExpireIntervalSecs <= 0 {
		return fmt.Errorf("EXPIRE_INTERVAL_SECONDS must be > 0, got %d", c.ExpireIntervalSecs)
	}
	if c.RateLimitWindowMs <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_MS must be > 0, got %d", c.RateLimitWindowMs)
	}
	if c.RateLimitMaxRequests <= 0 || c.RateLimitReadMaxRequests <= 0 {
		return fmt.Errorf("rate limit capacities must be > 0, got %d/%d",
			c.RateLimitMaxRequests, c.RateLimitReadMaxRequests)
	}
	if c.IdempotencyTTLHours <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL_HOURS must be > 0, got %d", c.IdempotencyTTLHours)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HoldTTL is how long a reservation stays confirmable.
func (c *Config) HoldTTL() time.Duration {
	return time.Duration(c.ReservationTimeoutMins) * time.Minute
}

// ExpireInterval is the expiration worker's tick period.
func (c *Config) ExpireInterval() time.Duration {
	return time.Duration(c.ExpireIntervalSecs) * time.Second
}

// ItemCacheTTL is the freshness window for cached item reads.
func (c *Config) ItemCacheTTL() time.Duration {
	return time.Duration(c.CacheTTLItemsMs) * time.Millisecond
}

// RateLimitWindow is the refill window shared by both limiter tiers.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMs) * time.Millisecond
}

// SlowDownDelay is the per-request delay step of the slow-down gate.
func (c *Config) SlowDownDelay() time.Duration {
	return time.Duration(c.SlowDownDelayMs) * time.Millisecond
}

// SlowDownMaxDelay caps the slow-down gate's delay.
func (c *Config) SlowDownMaxDelay() time.Duration {
	return time.Duration(c.SlowDownMaxDelayMs) * time.Millisecond
}

// IdempotencyTTL is how long stored mutation responses stay replayable.
func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLHours) * time.Hour
}

// SlowQueryThreshold converts the slow-query cutoff to a duration; zero
// disables slow-query logging.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryThresholdMs) * time.Millisecond
}
