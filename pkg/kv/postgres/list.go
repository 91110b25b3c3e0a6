package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/leafsii/relkv/pkg/kv"
)

const listJoin = `
  FROM "legacy_object_live" o
 INNER JOIN "legacy_list" l
         ON o."_key" = l."_key"
        AND o."type" = l."type"
 WHERE o."_key" = $1::TEXT`

// LPush pushes each value to the head in argument order, so the last value
// ends up first.
func (s *Store) LPush(ctx context.Context, key string, values ...string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	head := make([]string, len(values))
	for i, v := range values {
		head[len(values)-1-i] = v
	}

	return s.exec.RunAtomic(ctx, "lpush", func(ctx context.Context, tx pgx.Tx) error {
		if err := s.dir.ensureKind(ctx, tx, key, kv.KindList); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
INSERT INTO "legacy_list" ("_key", "array")
VALUES ($1::TEXT, $2::TEXT[])
ON CONFLICT ("_key")
DO UPDATE SET "array" = $2::TEXT[] || "legacy_list"."array"`, key, head)
		if err != nil {
			return fmt.Errorf("failed to push list head: %w", err)
		}
		return nil
	})
}

func (s *Store) RPush(ctx context.Context, key string, values ...string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	return s.exec.RunAtomic(ctx, "rpush", func(ctx context.Context, tx pgx.Tx) error {
		if err := s.dir.ensureKind(ctx, tx, key, kv.KindList); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
INSERT INTO "legacy_list" ("_key", "array")
VALUES ($1::TEXT, $2::TEXT[])
ON CONFLICT ("_key")
DO UPDATE SET "array" = "legacy_list"."array" || $2::TEXT[]`, key, values)
		if err != nil {
			return fmt.Errorf("failed to push list tail: %w", err)
		}
		return nil
	})
}

type popResult struct {
	value string
	ok    bool
}

// pop removes one element under the directory row lock, which every list
// writer takes first.
func (s *Store) pop(ctx context.Context, key string, head bool) (string, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return "", false, err
	}

	pick, rest := `"array"[cardinality("array")]`, `"array"[:cardinality("array") - 1]`
	op := "rpop"
	if head {
		pick, rest = `"array"[1]`, `"array"[2:]`
		op = "lpop"
	}

	res, err := RunAtomicValue(ctx, s.exec, op, func(ctx context.Context, tx pgx.Tx) (popResult, error) {
		ok, err := s.dir.lockLive(ctx, tx, key, kv.KindList)
		if err != nil || !ok {
			return popResult{}, err
		}

		var value *string
		err = tx.QueryRow(ctx, `
SELECT `+pick+`
  FROM "legacy_list"
 WHERE "_key" = $1::TEXT`, key).Scan(&value)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && value == nil) {
			return popResult{}, nil
		}
		if err != nil {
			return popResult{}, fmt.Errorf("failed to read list element: %w", err)
		}

		_, err = tx.Exec(ctx, `
UPDATE "legacy_list"
   SET "array" = `+rest+`
 WHERE "_key" = $1::TEXT`, key)
		if err != nil {
			return popResult{}, fmt.Errorf("failed to pop list element: %w", err)
		}
		if err := s.dir.dropIfEmpty(ctx, tx, key, kv.KindList); err != nil {
			return popResult{}, err
		}
		return popResult{value: *value, ok: true}, nil
	})
	return res.value, res.ok, err
}

func (s *Store) LPop(ctx context.Context, key string) (string, bool, error) {
	return s.pop(ctx, key, true)
}

func (s *Store) RPop(ctx context.Context, key string) (string, bool, error) {
	return s.pop(ctx, key, false)
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if err := kv.CheckKey(key); err != nil {
		return nil, err
	}

	result := []string{}
	var list []string
	err := s.exec.QueryRow(ctx, `
SELECT l."array"`+listJoin+`
 LIMIT 1`, key).Scan(&list)
	if errors.Is(err, pgx.ErrNoRows) {
		return result, nil
	}
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to read list: %w", err))
	}

	lo, hi, ok := kv.NormalizeRange(start, stop, int64(len(list)))
	if !ok {
		return result, nil
	}
	return append(result, list[lo:hi]...), nil
}

// LTrim keeps only the elements in [start, stop]; trimming everything away
// deletes the key.
func (s *Store) LTrim(ctx context.Context, key string, start, stop int64) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	return s.exec.RunAtomic(ctx, "ltrim", func(ctx context.Context, tx pgx.Tx) error {
		ok, err := s.dir.lockLive(ctx, tx, key, kv.KindList)
		if err != nil || !ok {
			return err
		}

		var list []string
		err = tx.QueryRow(ctx, `
SELECT "array"
  FROM "legacy_list"
 WHERE "_key" = $1::TEXT`, key).Scan(&list)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read list: %w", err)
		}

		kept := []string{}
		if lo, hi, ok := kv.NormalizeRange(start, stop, int64(len(list))); ok {
			kept = list[lo:hi]
		}

		_, err = tx.Exec(ctx, `
UPDATE "legacy_list"
   SET "array" = $2::TEXT[]
 WHERE "_key" = $1::TEXT`, key, kept)
		if err != nil {
			return fmt.Errorf("failed to trim list: %w", err)
		}
		return s.dir.dropIfEmpty(ctx, tx, key, kv.KindList)
	})
}

func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, err
	}

	var n int64
	err := s.exec.QueryRow(ctx, `
SELECT COALESCE(SUM(cardinality(l."array")), 0)::BIGINT`+listJoin, key).Scan(&n)
	if err != nil {
		return 0, mapError(fmt.Errorf("failed to read list length: %w", err))
	}
	return n, nil
}
