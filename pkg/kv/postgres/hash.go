package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/leafsii/relkv/pkg/kv"
)

const hashFrom = `
  FROM "legacy_object_live" o
 INNER JOIN "legacy_hash" h
         ON o."_key" = h."_key"
        AND o."type" = h."type"`

const hashJoin = hashFrom + `
 WHERE o."_key" = $1::TEXT`

// HSet merges fields into the hash object, replacing existing values.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode hash fields: %w", err)
	}

	return s.exec.RunAtomic(ctx, "hset", func(ctx context.Context, tx pgx.Tx) error {
		if err := s.dir.ensureKind(ctx, tx, key, kv.KindHash); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
INSERT INTO "legacy_hash" ("_key", "data")
VALUES ($1::TEXT, $2::TEXT::JSONB)
ON CONFLICT ("_key")
DO UPDATE SET "data" = "legacy_hash"."data" || $2::TEXT::JSONB`, key, string(payload))
		if err != nil {
			return fmt.Errorf("failed to write hash: %w", err)
		}
		return nil
	})
}

func (s *Store) HGet(ctx context.Context, key string, field string) (string, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return "", false, err
	}

	var value *string
	err := s.exec.QueryRow(ctx, `
SELECT h."data" ->> $2::TEXT`+hashJoin+`
 LIMIT 1`, key, field).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapError(fmt.Errorf("failed to read hash field: %w", err))
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if err := kv.CheckKey(key); err != nil {
		return nil, err
	}

	rows, err := s.exec.Query(ctx, `
SELECT f."key", f."value"`+hashFrom+`
 CROSS JOIN LATERAL jsonb_each_text(h."data") f
 WHERE o."_key" = $1::TEXT`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read hash: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, mapError(fmt.Errorf("failed to scan hash field: %w", err))
		}
		result[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(fmt.Errorf("failed to read hash: %w", err))
	}
	return result, nil
}

func (s *Store) HExists(ctx context.Context, key string, field string) (bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return false, err
	}

	var exists bool
	err := s.exec.QueryRow(ctx, `
SELECT EXISTS(SELECT 1`+hashJoin+`
                 AND h."data" ? $2::TEXT)`, key, field).Scan(&exists)
	if err != nil {
		return false, mapError(fmt.Errorf("failed to check hash field: %w", err))
	}
	return exists, nil
}

func (s *Store) HDel(ctx context.Context, key string, fields ...string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	return s.exec.RunAtomic(ctx, "hdel", func(ctx context.Context, tx pgx.Tx) error {
		ok, err := s.dir.lockLive(ctx, tx, key, kv.KindHash)
		if err != nil || !ok {
			return err
		}
		_, err = tx.Exec(ctx, `
UPDATE "legacy_hash"
   SET "data" = "data" - $2::TEXT[]
 WHERE "_key" = $1::TEXT`, key, fields)
		if err != nil {
			return fmt.Errorf("failed to delete hash fields: %w", err)
		}
		return s.dir.dropIfEmpty(ctx, tx, key, kv.KindHash)
	})
}

// HIncrBy stores the result as a JSON number; reads return its decimal text.
func (s *Store) HIncrBy(ctx context.Context, key string, field string, delta int64) (float64, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, err
	}
	return RunAtomicValue(ctx, s.exec, "hincrby", func(ctx context.Context, tx pgx.Tx) (float64, error) {
		if err := s.dir.ensureKind(ctx, tx, key, kv.KindHash); err != nil {
			return 0, err
		}

		var next float64
		err := tx.QueryRow(ctx, `
INSERT INTO "legacy_hash" ("_key", "data")
VALUES ($1::TEXT, jsonb_build_object($2::TEXT, $3::BIGINT))
ON CONFLICT ("_key")
DO UPDATE SET "data" = jsonb_set("legacy_hash"."data", ARRAY[$2::TEXT],
	to_jsonb(COALESCE(("legacy_hash"."data" ->> $2::TEXT)::NUMERIC, 0) + $3::BIGINT))
RETURNING ("data" ->> $2::TEXT)::FLOAT8`, key, field, delta).Scan(&next)
		if err != nil {
			return 0, fmt.Errorf("failed to increment hash field: %w", err)
		}
		return next, nil
	})
}
