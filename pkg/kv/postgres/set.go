package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/leafsii/relkv/pkg/kv"
)

const setJoin = `
  FROM "legacy_object_live" o
 INNER JOIN "legacy_set" s
         ON o."_key" = s."_key"
        AND o."type" = s."type"
 WHERE o."_key" = $1::TEXT`

func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	return s.exec.RunAtomic(ctx, "sadd", func(ctx context.Context, tx pgx.Tx) error {
		if err := s.dir.ensureKind(ctx, tx, key, kv.KindSet); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
INSERT INTO "legacy_set" ("_key", "member")
SELECT $1::TEXT, m
  FROM UNNEST($2::TEXT[]) m
ON CONFLICT ("_key", "member")
DO NOTHING`, key, members)
		if err != nil {
			return fmt.Errorf("failed to add set members: %w", err)
		}
		return nil
	})
}

func (s *Store) SRem(ctx context.Context, key string, members ...string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	return s.exec.RunAtomic(ctx, "srem", func(ctx context.Context, tx pgx.Tx) error {
		ok, err := s.dir.lockLive(ctx, tx, key, kv.KindSet)
		if err != nil || !ok {
			return err
		}
		_, err = tx.Exec(ctx, `
DELETE FROM "legacy_set"
 WHERE "_key" = $1::TEXT
   AND "member" = ANY($2::TEXT[])`, key, members)
		if err != nil {
			return fmt.Errorf("failed to remove set members: %w", err)
		}
		return s.dir.dropIfEmpty(ctx, tx, key, kv.KindSet)
	})
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	if err := kv.CheckKey(key); err != nil {
		return nil, err
	}

	rows, err := s.exec.Query(ctx, `
SELECT s."member"`+setJoin, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read set: %w", err)
	}
	members, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to scan set members: %w", err))
	}
	if members == nil {
		members = []string{}
	}
	return members, nil
}

func (s *Store) SIsMember(ctx context.Context, key string, member string) (bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return false, err
	}

	var exists bool
	err := s.exec.QueryRow(ctx, `
SELECT EXISTS(SELECT 1`+setJoin+`
                 AND s."member" = $2::TEXT)`, key, member).Scan(&exists)
	if err != nil {
		return false, mapError(fmt.Errorf("failed to check set member: %w", err))
	}
	return exists, nil
}

func (s *Store) SCard(ctx context.Context, key string) (int64, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, err
	}

	var n int64
	err := s.exec.QueryRow(ctx, `
SELECT COUNT(*)`+setJoin, key).Scan(&n)
	if err != nil {
		return 0, mapError(fmt.Errorf("failed to count set: %w", err))
	}
	return n, nil
}
