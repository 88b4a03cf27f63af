package domain

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix for every environment override.
const EnvPrefix = "KESTREL"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" envconfig:"server"`

	// Tier determines which backends are used
	Tier Tier `json:"tier" envconfig:"tier"`

	// Scoring controls the perturbation applied by the rule engine
	Scoring ScoringConfig `json:"scoring" envconfig:"scoring"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" envconfig:"repository"`
	Cache      CacheConfig      `json:"cache" envconfig:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" envconfig:"eventbus"`
	Dashboard  DashboardConfig  `json:"dashboard" envconfig:"dashboard"`
	Bulk       BulkConfig       `json:"bulk" envconfig:"bulk"`
	Training   TrainingConfig   `json:"training" envconfig:"training"`

	// Observability
	Logging   LoggingConfig   `json:"logging" envconfig:"log"`
	Tracing   TracingConfig   `json:"tracing" envconfig:"tracing"`
	RateLimit RateLimitConfig `json:"rateLimit" envconfig:"ratelimit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" envconfig:"host"`
	Port         int    `json:"port" envconfig:"port"`
	ReadTimeout  int    `json:"readTimeout" envconfig:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" envconfig:"write_timeout"` // seconds
	CORSOrigins  string `json:"corsOrigins" envconfig:"cors_origins"`
}

// ScoringConfig controls randomness in the scorers.
type ScoringConfig struct {
	// Seed for the perturbation source. Zero draws a random seed at startup.
	Seed int64 `json:"seed" envconfig:"seed"`

	// PerturbationScale multiplies every table's perturbation range around
	// its identity. Zero disables perturbation.
	PerturbationScale float64 `json:"perturbationScale" envconfig:"perturbation_scale"`
}

// DashboardConfig controls generated analytics series.
type DashboardConfig struct {
	SeriesTTL time.Duration `json:"seriesTtl" envconfig:"series_ttl"`
}

// BulkConfig controls CSV bulk scoring.
type BulkConfig struct {
	MaxRows     int   `json:"maxRows" envconfig:"max_rows"`
	Concurrency int   `json:"concurrency" envconfig:"concurrency"`
	MaxBytes    int64 `json:"maxBytes" envconfig:"max_bytes"`
}

// TrainingConfig controls simulated training runs.
type TrainingConfig struct {
	Epochs     int           `json:"epochs" envconfig:"epochs"`
	EpochDelay time.Duration `json:"epochDelay" envconfig:"epoch_delay"`
	SeedDemo   bool          `json:"seedDemo" envconfig:"seed_demo"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" envconfig:"level"`   // debug, info, warn, error
	Format string `json:"format" envconfig:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" envconfig:"enabled"`
	ServiceName string  `json:"serviceName" envconfig:"service_name"`
	Endpoint    string  `json:"endpoint" envconfig:"endpoint"` // OTLP/HTTP host:port
	Insecure    bool    `json:"insecure" envconfig:"insecure"`
	SampleRatio float64 `json:"sampleRatio" envconfig:"sample_ratio"`
}

// RateLimitConfig holds per-client request limits.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requestsPerMinute" envconfig:"requests_per_minute"` // 0 disables
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-memory cache
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
			CORSOrigins:  "*",
		},
		Tier: TierCommunity,
		Scoring: ScoringConfig{
			PerturbationScale: 1,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Dashboard: DashboardConfig{
			SeriesTTL: 5 * time.Minute,
		},
		Bulk: BulkConfig{
			MaxRows:     10000,
			Concurrency: 8,
			MaxBytes:    10 << 20,
		},
		Training: TrainingConfig{
			Epochs:     50,
			EpochDelay: 200 * time.Millisecond,
			SeedDemo:   true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
			SampleRatio: 1,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 600,
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:          "postgres",
		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresDB:      "kestrel",
		PostgresSSLMode: "disable",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	cfg.Tracing.Endpoint = "localhost:4318"
	cfg.Tracing.Insecure = true
	return cfg
}

// LoadConfig picks the tier defaults from KESTREL_TIER and applies
// KESTREL_* environment overrides on top.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if Tier(os.Getenv(EnvPrefix+"_TIER")) == TierPro {
		cfg = ProConfig()
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if os.Getenv(EnvPrefix+"_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}
