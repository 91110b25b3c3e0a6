package kv

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Backend represents the storage backend type
type Backend string

const (
	// BackendMemory uses the in-memory store
	BackendMemory Backend = "memory"
	// BackendRedis uses Redis as the backend
	BackendRedis Backend = "redis"
	// BackendPostgres emulates the key space on PostgreSQL tables
	BackendPostgres Backend = "postgres"
)

// Recorder receives per-command measurements from backends that run
// commands as transactions.
type Recorder interface {
	RecordTransaction(ctx context.Context, backend Backend, op string, d time.Duration, err error)
	RecordTypeConflict(ctx context.Context, backend Backend, want Kind)
}

// Config holds configuration for creating a Store instance
type Config struct {
	// Backend specifies which storage backend to use
	Backend Backend

	// RedisURL is the connection string for Redis (required when Backend is "redis")
	// Format: redis://localhost:6379/0 or redis://:password@localhost:6379/1
	RedisURL string

	// PostgresDSN is the connection string for PostgreSQL (required when Backend is "postgres")
	PostgresDSN string

	// PostgresSchema is the schema holding the key space tables. Default: public
	PostgresSchema string

	// MaxConns bounds the PostgreSQL connection pool. Default: 10
	MaxConns int32

	// StatementTimeout is applied to every PostgreSQL session. Zero disables it.
	StatementTimeout time.Duration

	// PostgresLogLevel is the pgx trace level bridged to the logger
	// (trace, debug, info, warn, error, none). Default: warn
	PostgresLogLevel string

	// JanitorInterval controls how often the in-memory store cleans up expired keys
	// Set to 0 to disable background cleanup
	JanitorInterval time.Duration

	// StartupProbeTimeout bounds how long to wait for the backend at startup
	// Default: 5 seconds
	StartupProbeTimeout time.Duration

	// Logger is used for lifecycle and administrative events. If nil, no logging occurs.
	Logger *zap.SugaredLogger

	// Metrics receives transaction measurements. Optional.
	Metrics Recorder
}

// StoreFactory defines a function that creates a Store instance
type StoreFactory func(ctx context.Context, cfg Config) (Store, error)

// factories holds registered store factories
var factories = make(map[Backend]StoreFactory)

// RegisterBackend registers a store factory for a given backend
func RegisterBackend(backend Backend, factory StoreFactory) {
	factories[backend] = factory
}

// RegisteredBackends returns the names of all registered backends, sorted.
func RegisteredBackends() []Backend {
	out := make([]Backend, 0, len(factories))
	for b := range factories {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// WithDefaults returns cfg with unset fields filled in.
func (cfg Config) WithDefaults() Config {
	if cfg.PostgresSchema == "" {
		cfg.PostgresSchema = "public"
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 10
	}
	if cfg.PostgresLogLevel == "" {
		cfg.PostgresLogLevel = "warn"
	}
	if cfg.StartupProbeTimeout == 0 {
		cfg.StartupProbeTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return cfg
}

// NewStoreFromConfig creates a new Store instance based on the provided configuration.
// The backend package must have been imported for its registration side effect.
func NewStoreFromConfig(ctx context.Context, cfg Config) (Store, error) {
	cfg = cfg.WithDefaults()

	switch cfg.Backend {
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis URL is required when backend is 'redis'")
		}
	case BackendPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres DSN is required when backend is 'postgres'")
		}
	case BackendMemory:
	default:
		return nil, fmt.Errorf("unsupported backend: %s (supported: %s, %s, %s)",
			cfg.Backend, BackendMemory, BackendRedis, BackendPostgres)
	}

	factory, exists := factories[cfg.Backend]
	if !exists {
		return nil, fmt.Errorf("%s backend not registered", cfg.Backend)
	}

	store, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s store: %w", cfg.Backend, err)
	}
	cfg.Logger.Infow("Key-value store ready", "backend", cfg.Backend)
	return store, nil
}
