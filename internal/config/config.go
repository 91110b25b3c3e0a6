package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leafsii/relkv/pkg/kv"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
)

type Config struct {
	Env      string `mapstructure:"KV_ENV"`
	LogLevel string `mapstructure:"KV_LOG_LEVEL"`
	Backend  string `mapstructure:"KV_BACKEND"`

	Postgres    PostgresConfig `mapstructure:",squash"`
	Redis       RedisConfig    `mapstructure:",squash"`
	Memory      MemoryConfig   `mapstructure:",squash"`
	MetricsAddr string         `mapstructure:"KV_METRICS_ADDR"`

	StartupProbeTimeout time.Duration `mapstructure:"KV_STARTUP_PROBE_TIMEOUT"`
}

type PostgresConfig struct {
	DSN              string        `mapstructure:"KV_POSTGRES_DSN"`
	Schema           string        `mapstructure:"KV_POSTGRES_SCHEMA"`
	MaxConns         int32         `mapstructure:"KV_POSTGRES_MAX_CONNS"`
	StatementTimeout time.Duration `mapstructure:"KV_STATEMENT_TIMEOUT"`
	LogLevel         string        `mapstructure:"KV_PG_LOG_LEVEL"`
}

type RedisConfig struct {
	URL string `mapstructure:"KV_REDIS_URL"`
}

type MemoryConfig struct {
	JanitorInterval time.Duration `mapstructure:"KV_JANITOR_INTERVAL"`
}

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("..", ".env"),
		filepath.Join("..", "..", ".env"),
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if !filepath.IsAbs(path) {
			if resolved, err := filepath.Abs(path); err == nil {
				abs = resolved
			}
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // ignore errors; env vars already set take precedence
		}
	}
}

func Load() (*Config, error) {
	loadDotEnvFiles()

	v := viper.New()
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("KV_ENV", "dev")
	v.SetDefault("KV_LOG_LEVEL", "")
	v.SetDefault("KV_BACKEND", string(kv.BackendPostgres))
	v.SetDefault("KV_POSTGRES_DSN", "")
	v.SetDefault("KV_POSTGRES_SCHEMA", "public")
	v.SetDefault("KV_POSTGRES_MAX_CONNS", 10)
	v.SetDefault("KV_STATEMENT_TIMEOUT", "5s")
	v.SetDefault("KV_PG_LOG_LEVEL", "warn")
	v.SetDefault("KV_REDIS_URL", "")
	v.SetDefault("KV_JANITOR_INTERVAL", "30s")
	v.SetDefault("KV_STARTUP_PROBE_TIMEOUT", "5s")
	v.SetDefault("KV_METRICS_ADDR", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch kv.Backend(c.Backend) {
	case kv.BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("KV_POSTGRES_DSN is required when KV_BACKEND is postgres")
		}
		if c.Postgres.MaxConns < 1 {
			return fmt.Errorf("KV_POSTGRES_MAX_CONNS must be positive, got %d", c.Postgres.MaxConns)
		}
		if c.Postgres.StatementTimeout < 0 {
			return fmt.Errorf("KV_STATEMENT_TIMEOUT must not be negative")
		}
	case kv.BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("KV_REDIS_URL is required when KV_BACKEND is redis")
		}
	case kv.BackendMemory:
	default:
		return fmt.Errorf("invalid KV_BACKEND %q (must be postgres, redis, or memory)", c.Backend)
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

// Store converts the configuration into backend settings. recorder may be nil.
func (c *Config) Store(logger *zap.SugaredLogger, recorder kv.Recorder) kv.Config {
	return kv.Config{
		Backend:             kv.Backend(c.Backend),
		RedisURL:            c.Redis.URL,
		PostgresDSN:         c.Postgres.DSN,
		PostgresSchema:      c.Postgres.Schema,
		MaxConns:            c.Postgres.MaxConns,
		StatementTimeout:    c.Postgres.StatementTimeout,
		PostgresLogLevel:    c.Postgres.LogLevel,
		JanitorInterval:     c.Memory.JanitorInterval,
		StartupProbeTimeout: c.StartupProbeTimeout,
		Logger:              logger,
		Metrics:             recorder,
	}
}
