package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/leafsii/relkv/pkg/kv"
)

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return "", false, err
	}

	var value string
	err := s.exec.QueryRow(ctx, `
SELECT s."data"
  FROM "legacy_object_live" o
 INNER JOIN "legacy_string" s
         ON o."_key" = s."_key"
        AND o."type" = s."type"
 WHERE o."_key" = $1::TEXT
 LIMIT 1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapError(fmt.Errorf("failed to get string: %w", err))
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	return s.exec.RunAtomic(ctx, "set", func(ctx context.Context, tx pgx.Tx) error {
		if err := s.dir.ensureKind(ctx, tx, key, kv.KindString); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
INSERT INTO "legacy_string" ("_key", "data")
VALUES ($1::TEXT, $2::TEXT)
ON CONFLICT ("_key")
DO UPDATE SET "data" = $2::TEXT`, key, value)
		if err != nil {
			return fmt.Errorf("failed to set string: %w", err)
		}
		return nil
	})
}

func (s *Store) Increment(ctx context.Context, key string) (float64, error) {
	return s.IncrBy(ctx, key, 1)
}

// IncrBy adds delta in SQL so concurrent increments serialize on the row and
// none is lost. An absent value counts as zero.
func (s *Store) IncrBy(ctx context.Context, key string, delta int64) (float64, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, err
	}
	return RunAtomicValue(ctx, s.exec, "incr", func(ctx context.Context, tx pgx.Tx) (float64, error) {
		if err := s.dir.ensureKind(ctx, tx, key, kv.KindString); err != nil {
			return 0, err
		}

		var next float64
		err := tx.QueryRow(ctx, `
INSERT INTO "legacy_string" ("_key", "data")
VALUES ($1::TEXT, $2::BIGINT::TEXT)
ON CONFLICT ("_key")
DO UPDATE SET "data" = ("legacy_string"."data"::NUMERIC + $2::BIGINT)::TEXT
RETURNING "data"::FLOAT8`, key, delta).Scan(&next)
		if err != nil {
			return 0, fmt.Errorf("failed to increment: %w", err)
		}
		return next, nil
	})
}
