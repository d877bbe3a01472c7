package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"local"`
	Debug       bool   `env:"DEBUG" envDefault:"false"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Database settings
	Database DatabaseConfig

	// Graph settings
	Graph GraphConfig

	// Bulk loader settings
	Loader LoaderConfig

	// Metrics endpoint (empty disables it)
	MetricsAddr string `env:"AGELOAD_METRICS_ADDR" envDefault:""`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"postgres"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"postgres"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"4"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"1"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	ConnTimeout  time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"10s"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// GraphConfig names the AGE graph to load into.
type GraphConfig struct {
	Name string `env:"AGE_GRAPH" envDefault:"generated_graph"`
}

// LoaderConfig holds bulk load settings.
type LoaderConfig struct {
	// Strategy: direct, batched, staged or agload
	Strategy string `env:"AGELOAD_STRATEGY" envDefault:"batched"`

	// Fallback is used when Strategy reports its tooling as unavailable
	Fallback string `env:"AGELOAD_FALLBACK" envDefault:"batched"`

	BatchSize int `env:"AGELOAD_BATCH_SIZE" envDefault:"5000"`

	// Path or name of the age_load binary
	Binary string `env:"AGELOAD_BINARY" envDefault:"age_load"`

	// Directory for temporary CSV files (empty uses the OS temp dir)
	WorkDir string `env:"AGELOAD_WORK_DIR" envDefault:""`

	// Keep temporary CSV files after an agload run
	KeepFiles bool `env:"AGELOAD_KEEP_FILES" envDefault:"false"`

	SkipIndexes bool `env:"AGELOAD_SKIP_INDEXES" envDefault:"false"`
}

// Validate checks values env parsing cannot.
func (l *LoaderConfig) Validate() error {
	if l.BatchSize < 1 {
		return fmt.Errorf("AGELOAD_BATCH_SIZE must be at least 1, got %d", l.BatchSize)
	}
	if l.Strategy == "" {
		return fmt.Errorf("AGELOAD_STRATEGY must not be empty")
	}
	return nil
}

// Parse reads the configuration from the environment.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Loader.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewConfig creates the configuration for the fx graph.
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("db_host", cfg.Database.Host),
		slog.String("graph", cfg.Graph.Name),
		slog.String("strategy", cfg.Loader.Strategy),
		slog.Int("batch_size", cfg.Loader.BatchSize),
	)

	return cfg, nil
}
