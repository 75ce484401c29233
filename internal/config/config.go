package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/ledgerlab/payments/internal/domain"
)

type Config struct {
	Env string `envconfig:"ENV" default:"development"`

	// Mode selects the intake semantics for every request this process
	// accepts. Read once at start, never mutated.
	ConsistencyMode string `envconfig:"CONSISTENCY_MODE" default:"hybrid"`

	FailProfile    string `envconfig:"FAIL_PROFILE" default:"none"`
	ExperimentSeed uint64 `envconfig:"EXPERIMENT_SEED" default:"42"`

	Database DatabaseConfig
	Redis    RedisConfig
	HTTP     HTTPConfig
	Worker   WorkerConfig
}

type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" required:"true"`

	// Where golang-migrate looks for SQL files.
	MigrationsPath string `envconfig:"DATABASE_MIGRATIONS_PATH" default:"file://migrations"`

	// 1 = drop everything and re-apply migrations at startup.
	RecreateSchema bool `envconfig:"MIGRATE_RECREATE_SCHEMA" default:"false"`

	MaxConns int32 `envconfig:"DATABASE_MAX_CONNS" default:"20"`
	MinConns int32 `envconfig:"DATABASE_MIN_CONNS" default:"5"`

	MaxConnLifeTime time.Duration `envconfig:"DATABASE_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `envconfig:"DATABASE_MAX_CONN_IDLE" default:"30m"`
	HealthPeriod    time.Duration `envconfig:"DATABASE_HEALTH_PERIOD" default:"1m"`
}

type RedisConfig struct {
	// Empty disables the idempotency response cache; the database path
	// stays authoritative either way.
	Addr     string `envconfig:"REDIS_ADDR" default:""`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`

	Namespace string `envconfig:"REDIS_NAMESPACE" default:"ledgerlab"`
}

type HTTPConfig struct {
	Addr            string        `envconfig:"HTTP_ADDR" default:":8000"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

type WorkerConfig struct {
	// Interval knobs are fractional seconds on the wire, matching the
	// experiment harness contract.
	PollIntervalSeconds           float64 `envconfig:"OUTBOX_POLL_INTERVAL_SECONDS" default:"0.2"`
	ReconciliationIntervalSeconds float64 `envconfig:"RECONCILIATION_INTERVAL_SECONDS" default:"5"`
	ProcessingTimeoutSeconds      float64 `envconfig:"OUTBOX_PROCESSING_TIMEOUT_SECONDS" default:"30"`

	BatchSize   int `envconfig:"OUTBOX_BATCH_SIZE" default:"20"`
	MetricsPort int `envconfig:"LEDGER_WORKER_METRICS_PORT" default:"8001"`
}

func (w WorkerConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalSeconds * float64(time.Second))
}

func (w WorkerConfig) ReconciliationInterval() time.Duration {
	return time.Duration(w.ReconciliationIntervalSeconds * float64(time.Second))
}

// ProcessingTimeout is the outbox lease TTL: the visibility timeout for
// claimed events and the retry timer for orphaned ones.
func (w WorkerConfig) ProcessingTimeout() time.Duration {
	return time.Duration(w.ProcessingTimeoutSeconds * float64(time.Second))
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parse environment config: %w", err)
	}
	if _, err := domain.ParseConsistencyMode(cfg.ConsistencyMode); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Mode() domain.ConsistencyMode {
	mode, err := domain.ParseConsistencyMode(c.ConsistencyMode)
	if err != nil {
		// Load validated this; a bad value here means the struct was
		// built by hand.
		panic(err)
	}
	return mode
}

func (c *Config) IsProd() bool {
	return c.Env == "production"
}
