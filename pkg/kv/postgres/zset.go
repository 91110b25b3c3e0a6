package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/leafsii/relkv/pkg/kv"
)

const zsetJoin = `
  FROM "legacy_object_live" o
 INNER JOIN "legacy_zset" z
         ON o."_key" = z."_key"
        AND o."type" = z."type"
 WHERE o."_key" = $1::TEXT`

// Members with equal scores are ordered bytewise, as Redis does.
const (
	zsetAscending  = `ORDER BY z."score" ASC, z."value" COLLATE "C" ASC`
	zsetDescending = `ORDER BY z."score" DESC, z."value" COLLATE "C" DESC`
)

func (s *Store) ZAdd(ctx context.Context, key string, members ...kv.Z) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}

	// ON CONFLICT cannot touch the same row twice; the last score wins.
	index := make(map[string]int, len(members))
	values := make([]string, 0, len(members))
	scores := make([]float64, 0, len(members))
	for _, z := range members {
		if math.IsNaN(z.Score) {
			return kv.ErrNotNumber
		}
		if i, ok := index[z.Member]; ok {
			scores[i] = z.Score
			continue
		}
		index[z.Member] = len(values)
		values = append(values, z.Member)
		scores = append(scores, z.Score)
	}

	return s.exec.RunAtomic(ctx, "zadd", func(ctx context.Context, tx pgx.Tx) error {
		if err := s.dir.ensureKind(ctx, tx, key, kv.KindSortedSet); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
INSERT INTO "legacy_zset" ("_key", "value", "score")
SELECT $1::TEXT, v, s::NUMERIC
  FROM UNNEST($2::TEXT[], $3::FLOAT8[]) vs(v, s)
ON CONFLICT ("_key", "value")
DO UPDATE SET "score" = EXCLUDED."score"`, key, values, scores)
		if err != nil {
			return fmt.Errorf("failed to add sorted set members: %w", err)
		}
		return nil
	})
}

func (s *Store) ZRem(ctx context.Context, key string, members ...string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	return s.exec.RunAtomic(ctx, "zrem", func(ctx context.Context, tx pgx.Tx) error {
		ok, err := s.dir.lockLive(ctx, tx, key, kv.KindSortedSet)
		if err != nil || !ok {
			return err
		}
		_, err = tx.Exec(ctx, `
DELETE FROM "legacy_zset"
 WHERE "_key" = $1::TEXT
   AND "value" = ANY($2::TEXT[])`, key, members)
		if err != nil {
			return fmt.Errorf("failed to remove sorted set members: %w", err)
		}
		return s.dir.dropIfEmpty(ctx, tx, key, kv.KindSortedSet)
	})
}

func (s *Store) ZScore(ctx context.Context, key string, member string) (float64, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, false, err
	}

	var score float64
	err := s.exec.QueryRow(ctx, `
SELECT z."score"::FLOAT8`+zsetJoin+`
   AND z."value" = $2::TEXT
 LIMIT 1`, key, member).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, mapError(fmt.Errorf("failed to read score: %w", err))
	}
	return score, true, nil
}

func (s *Store) ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, err
	}
	if math.IsNaN(delta) {
		return 0, kv.ErrNotNumber
	}
	return RunAtomicValue(ctx, s.exec, "zincrby", func(ctx context.Context, tx pgx.Tx) (float64, error) {
		if err := s.dir.ensureKind(ctx, tx, key, kv.KindSortedSet); err != nil {
			return 0, err
		}

		var next float64
		err := tx.QueryRow(ctx, `
INSERT INTO "legacy_zset" ("_key", "value", "score")
VALUES ($1::TEXT, $2::TEXT, $3::FLOAT8::NUMERIC)
ON CONFLICT ("_key", "value")
DO UPDATE SET "score" = "legacy_zset"."score" + $3::FLOAT8::NUMERIC
RETURNING "score"::FLOAT8`, key, member, delta).Scan(&next)
		if err != nil {
			return 0, fmt.Errorf("failed to increment score: %w", err)
		}
		// Returning the error rolls the NaN score back.
		if math.IsNaN(next) {
			return 0, kv.ErrNotNumber
		}
		return next, nil
	})
}

func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, err
	}

	var n int64
	err := s.exec.QueryRow(ctx, `
SELECT COUNT(*)`+zsetJoin, key).Scan(&n)
	if err != nil {
		return 0, mapError(fmt.Errorf("failed to count sorted set: %w", err))
	}
	return n, nil
}

func (s *Store) ZRank(ctx context.Context, key string, member string) (int64, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, false, err
	}

	var rank int64
	err := s.exec.QueryRow(ctx, `
SELECT r."rank"
  FROM (SELECT z."value",
               ROW_NUMBER() OVER (`+zsetAscending+`) - 1 AS "rank"`+zsetJoin+`) r
 WHERE r."value" = $2::TEXT`, key, member).Scan(&rank)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, mapError(fmt.Errorf("failed to read rank: %w", err))
	}
	return rank, true, nil
}

// zrange pages in SQL when both indices count from the head; negative
// indices need the cardinality, so the ordered set is sliced here instead.
func (s *Store) zrange(ctx context.Context, key string, start, stop int64, order string) ([]string, error) {
	if err := kv.CheckKey(key); err != nil {
		return nil, err
	}

	result := []string{}
	if start >= 0 && stop >= 0 && start > stop {
		return result, nil
	}

	var (
		rows pgx.Rows
		err  error
	)
	if start >= 0 && stop >= 0 {
		count := stop - start + 1
		if count <= 0 {
			// stop near math.MaxInt64 wraps around
			count = math.MaxInt64
		}
		rows, err = s.exec.Query(ctx, `
SELECT z."value"`+zsetJoin+`
 `+order+`
 LIMIT $3::BIGINT OFFSET $2::BIGINT`, key, start, count)
	} else {
		rows, err = s.exec.Query(ctx, `
SELECT z."value"`+zsetJoin+`
 `+order, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sorted set range: %w", err)
	}
	members, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to scan sorted set range: %w", err))
	}

	if start >= 0 && stop >= 0 {
		return append(result, members...), nil
	}
	lo, hi, ok := kv.NormalizeRange(start, stop, int64(len(members)))
	if !ok {
		return result, nil
	}
	return append(result, members[lo:hi]...), nil
}

func (s *Store) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.zrange(ctx, key, start, stop, zsetAscending)
}

func (s *Store) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.zrange(ctx, key, start, stop, zsetDescending)
}

// ZRangeByScore returns members with min <= score <= max in ascending order.
func (s *Store) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]kv.Z, error) {
	if err := kv.CheckKey(key); err != nil {
		return nil, err
	}

	rows, err := s.exec.Query(ctx, `
SELECT z."value", z."score"::FLOAT8`+zsetJoin+`
   AND z."score"::FLOAT8 >= $2::FLOAT8
   AND z."score"::FLOAT8 <= $3::FLOAT8
 `+zsetAscending, key, min, max)
	if err != nil {
		return nil, fmt.Errorf("failed to read sorted set by score: %w", err)
	}
	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (kv.Z, error) {
		var z kv.Z
		err := row.Scan(&z.Member, &z.Score)
		return z, err
	})
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to scan sorted set by score: %w", err))
	}
	if members == nil {
		members = []kv.Z{}
	}
	return members, nil
}
