package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leafsii/relkv/pkg/kv"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Store emulates the kv key space on PostgreSQL. Every value lives in the
// table of its kind and is reachable only through a live legacy_object entry.
type Store struct {
	pool   *pgxpool.Pool
	exec   *Executor
	dir    directory
	schema string
	logger *zap.SugaredLogger
}

var _ kv.Store = (*Store)(nil)

// Open connects to cfg.PostgresDSN, waits for the server within
// cfg.StartupProbeTimeout and brings the schema up to date.
func Open(ctx context.Context, cfg kv.Config) (*Store, error) {
	cfg = cfg.WithDefaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.ConnConfig.RuntimeParams["search_path"] = cfg.PostgresSchema
	if cfg.StatementTimeout > 0 {
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}

	tracer, err := newTracer(cfg.Logger.With("component", "pgx"), cfg.PostgresLogLevel)
	if err != nil {
		return nil, err
	}
	poolCfg.ConnConfig.Tracer = tracer

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	backoff := retry.WithMaxDuration(cfg.StartupProbeTimeout, retry.NewExponential(100*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			cfg.Logger.Debugw("Postgres not ready", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: postgres ping failed: %v", kv.ErrBackendUnavailable, err)
	}

	if err := RunMigrations(ctx, pool, cfg.PostgresSchema, MigrateUp, cfg.Logger); err != nil {
		pool.Close()
		return nil, err
	}

	cfg.Logger.Infow("Postgres store opened",
		"schema", cfg.PostgresSchema,
		"max_conns", cfg.MaxConns,
		"statement_timeout", cfg.StatementTimeout,
	)

	return &Store{
		pool:   pool,
		exec:   NewExecutor(pool, cfg.Metrics),
		dir:    directory{metrics: cfg.Metrics},
		schema: cfg.PostgresSchema,
		logger: cfg.Logger,
	}, nil
}

// Key operations

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return false, err
	}
	ok, err := s.dir.existsLive(ctx, s.exec, key)
	return ok, mapError(err)
}

func (s *Store) ExistsMany(ctx context.Context, keys []string) ([]bool, error) {
	result, err := s.dir.existsLiveMany(ctx, s.exec, keys)
	return result, mapError(err)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	return mapError(s.dir.deleteEntry(ctx, s.exec, key))
}

func (s *Store) DeleteAll(ctx context.Context, keys []string) error {
	return mapError(s.dir.deleteEntries(ctx, s.exec, keys))
}

func (s *Store) Rename(ctx context.Context, oldKey, newKey string) error {
	if err := kv.CheckKey(oldKey); err != nil {
		return err
	}
	if err := kv.CheckKey(newKey); err != nil {
		return err
	}
	return s.exec.RunAtomic(ctx, "rename", func(ctx context.Context, tx pgx.Tx) error {
		return s.dir.renameEntry(ctx, tx, oldKey, newKey)
	})
}

func (s *Store) Type(ctx context.Context, key string) (kv.Kind, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return "", false, err
	}
	kind, ok, err := s.dir.liveKindOf(ctx, s.exec, key)
	return kind, ok, mapError(err)
}

// Expiration

func (s *Store) expireAt(ctx context.Context, key string, at time.Time) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	return s.exec.RunAtomic(ctx, "expire", func(ctx context.Context, tx pgx.Tx) error {
		return s.dir.setExpiry(ctx, tx, key, at)
	})
}

func (s *Store) expireIn(ctx context.Context, key string, ms int64) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	return s.exec.RunAtomic(ctx, "expire", func(ctx context.Context, tx pgx.Tx) error {
		return s.dir.setExpiryIn(ctx, tx, key, ms)
	})
}

func (s *Store) Expire(ctx context.Context, key string, seconds int64) error {
	return s.expireIn(ctx, key, kv.SecondsToMillis(seconds))
}

func (s *Store) ExpireAt(ctx context.Context, key string, unixSeconds int64) error {
	return s.expireAt(ctx, key, kv.FromUnixSeconds(unixSeconds))
}

func (s *Store) PExpire(ctx context.Context, key string, ms int64) error {
	return s.expireIn(ctx, key, ms)
}

func (s *Store) PExpireAt(ctx context.Context, key string, unixMs int64) error {
	return s.expireAt(ctx, key, kv.FromUnixMillis(unixMs))
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, false, err
	}
	ttl, ok, err := s.dir.liveExpiry(ctx, s.exec, key)
	return ttl, ok, mapError(err)
}

func (s *Store) Persist(ctx context.Context, key string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	return mapError(s.dir.clearExpiry(ctx, s.exec, key))
}

// Administrative

// FlushAll drops the schema with every table in it and re-applies the
// migrations. Cached statement plans reference the dropped types, so the pool
// is reset before the store is used again.
func (s *Store) FlushAll(ctx context.Context) error {
	s.logger.Warnw("Flushing key space", "schema", s.schema)

	err := s.exec.RunAtomic(ctx, "flushall", func(ctx context.Context, tx pgx.Tx) error {
		return recreateSchema(ctx, tx, s.schema)
	})
	if err != nil {
		return err
	}
	s.pool.Reset()

	if err := RunMigrations(ctx, s.pool, s.schema, MigrateUp, s.logger); err != nil {
		return mapError(err)
	}
	s.logger.Infow("Key space flushed", "schema", s.schema)
	return nil
}

// EmptyAll deletes every entry and, through the cascades, every value.
func (s *Store) EmptyAll(ctx context.Context) error {
	tag, err := s.exec.Exec(ctx, `DELETE FROM "legacy_object"`)
	if err != nil {
		return fmt.Errorf("failed to empty key space: %w", err)
	}
	s.logger.Infow("Key space emptied", "schema", s.schema, "keys", tag.RowsAffected())
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", kv.ErrBackendUnavailable, err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
