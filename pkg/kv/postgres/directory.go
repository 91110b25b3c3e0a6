package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/leafsii/relkv/pkg/kv"
)

// livePredicate is the legacy_object_live filter for queries that must lock
// rows, which the view cannot do.
const livePredicate = `("expireAt" IS NULL OR "expireAt" > CURRENT_TIMESTAMP)`

// valueTable describes the store of one kind. nonEmpty selects rows (alias v)
// that still carry data; a key with no such row is an emptied collection.
type valueTable struct {
	name     string
	nonEmpty string
}

var valueTables = map[kv.Kind]valueTable{
	kv.KindString:    {name: "legacy_string", nonEmpty: "TRUE"},
	kv.KindHash:      {name: "legacy_hash", nonEmpty: `v."data" <> '{}'::JSONB`},
	kv.KindSet:       {name: "legacy_set", nonEmpty: "TRUE"},
	kv.KindSortedSet: {name: "legacy_zset", nonEmpty: "TRUE"},
	kv.KindList:      {name: "legacy_list", nonEmpty: `cardinality(v."array") > 0`},
}

// directory is the type registry over legacy_object. Every method takes the
// querier to run on, so callers compose it with value writes in one tx.
type directory struct {
	metrics kv.Recorder
}

// ensureKind makes key a live entry of kind. An expired entry is purged first
// (its values cascade away); a live entry of another kind is a conflict. The
// entry row stays locked until tx ends, serializing writers on the key.
func (d directory) ensureKind(ctx context.Context, tx pgx.Tx, key string, kind kv.Kind) error {
	_, err := tx.Exec(ctx, `
DELETE FROM "legacy_object"
 WHERE "_key" = $1::TEXT
   AND "expireAt" IS NOT NULL
   AND "expireAt" <= CURRENT_TIMESTAMP`, key)
	if err != nil {
		return fmt.Errorf("failed to purge expired key: %w", err)
	}

	var have string
	err = tx.QueryRow(ctx, `
INSERT INTO "legacy_object" ("_key", "type")
VALUES ($1::TEXT, $2::TEXT::"legacy_object_type")
ON CONFLICT ("_key")
DO UPDATE SET "type" = "legacy_object"."type"
RETURNING "type"::TEXT`, key, kind.String()).Scan(&have)
	if err != nil {
		return fmt.Errorf("failed to ensure object type: %w", err)
	}

	if kv.Kind(have) != kind {
		if d.metrics != nil {
			d.metrics.RecordTypeConflict(ctx, kv.BackendPostgres, kind)
		}
		return &kv.TypeConflictError{Key: key, Want: kind, Have: kv.Kind(have)}
	}
	return nil
}

// lockLive locks the live entry of key when it holds kind. It reports false,
// without error, when there is nothing of that kind to modify.
func (d directory) lockLive(ctx context.Context, tx pgx.Tx, key string, kind kv.Kind) (bool, error) {
	var one int
	err := tx.QueryRow(ctx, `
SELECT 1
  FROM "legacy_object"
 WHERE "_key" = $1::TEXT
   AND "type" = $2::TEXT::"legacy_object_type"
   AND `+livePredicate+`
   FOR UPDATE`, key, kind.String()).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock key: %w", err)
	}
	return true, nil
}

// liveKindOf returns the kind of the live entry for key.
func (d directory) liveKindOf(ctx context.Context, q querier, key string) (kv.Kind, bool, error) {
	var kind string
	err := q.QueryRow(ctx, `
SELECT "type"::TEXT
  FROM "legacy_object_live"
 WHERE "_key" = $1::TEXT
 LIMIT 1`, key).Scan(&kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read type: %w", err)
	}
	return kv.Kind(kind), true, nil
}

func (d directory) existsLive(ctx context.Context, q querier, key string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
SELECT EXISTS(SELECT *
                FROM "legacy_object_live"
               WHERE "_key" = $1::TEXT
               LIMIT 1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return exists, nil
}

// existsLiveMany answers for every key in input order from one snapshot.
func (d directory) existsLiveMany(ctx context.Context, q querier, keys []string) ([]bool, error) {
	result := make([]bool, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	rows, err := q.Query(ctx, `
SELECT o."_key"
  FROM "legacy_object_live" o
 WHERE o."_key" = ANY($1::TEXT[])`, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to check existence: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}

	live := make(map[string]struct{}, len(found))
	for _, k := range found {
		live[k] = struct{}{}
	}
	for i, k := range keys {
		_, result[i] = live[k]
	}
	return result, nil
}

// setExpiry is the single expiry primitive. Expired entries are not revived.
func (d directory) setExpiry(ctx context.Context, q querier, key string, at time.Time) error {
	_, err := q.Exec(ctx, `
UPDATE "legacy_object"
   SET "expireAt" = $2::TIMESTAMPTZ
 WHERE "_key" = $1::TEXT
   AND `+livePredicate, key, at)
	if err != nil {
		return fmt.Errorf("failed to set expiry: %w", err)
	}
	return nil
}

// setExpiryIn sets the expiry ms milliseconds after the server's clock, so a
// zero or negative delay expires the entry for every later read.
func (d directory) setExpiryIn(ctx context.Context, q querier, key string, ms int64) error {
	_, err := q.Exec(ctx, `
UPDATE "legacy_object"
   SET "expireAt" = CURRENT_TIMESTAMP + $2::BIGINT * INTERVAL '1 millisecond'
 WHERE "_key" = $1::TEXT
   AND `+livePredicate, key, kv.ClampMillis(ms))
	if err != nil {
		return fmt.Errorf("failed to set expiry: %w", err)
	}
	return nil
}

func (d directory) clearExpiry(ctx context.Context, q querier, key string) error {
	_, err := q.Exec(ctx, `
UPDATE "legacy_object"
   SET "expireAt" = NULL
 WHERE "_key" = $1::TEXT
   AND `+livePredicate, key)
	if err != nil {
		return fmt.Errorf("failed to clear expiry: %w", err)
	}
	return nil
}

// liveExpiry returns the TTL of key as computed by the server clock, -1 when
// the entry never expires.
func (d directory) liveExpiry(ctx context.Context, q querier, key string) (time.Duration, bool, error) {
	var ms *int64
	err := q.QueryRow(ctx, `
SELECT CEIL(EXTRACT(EPOCH FROM ("expireAt" - CURRENT_TIMESTAMP)) * 1000)::BIGINT
  FROM "legacy_object_live"
 WHERE "_key" = $1::TEXT
 LIMIT 1`, key).Scan(&ms)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read expiry: %w", err)
	}
	if ms == nil {
		return -1, true, nil
	}
	return kv.MillisToDuration(*ms), true, nil
}

func (d directory) deleteEntry(ctx context.Context, q querier, key string) error {
	_, err := q.Exec(ctx, `
DELETE FROM "legacy_object"
 WHERE "_key" = $1::TEXT`, key)
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

func (d directory) deleteEntries(ctx context.Context, q querier, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `
DELETE FROM "legacy_object"
 WHERE "_key" = ANY($1::TEXT[])`, keys)
	if err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// renameEntry moves the live entry oldKey to newKey, destroying whatever
// newKey held. Value rows follow through ON UPDATE CASCADE. A missing source
// leaves the destination untouched.
func (d directory) renameEntry(ctx context.Context, tx pgx.Tx, oldKey, newKey string) error {
	if oldKey == newKey {
		return nil
	}

	var one int
	err := tx.QueryRow(ctx, `
SELECT 1
  FROM "legacy_object"
 WHERE "_key" = $1::TEXT
   AND `+livePredicate+`
   FOR UPDATE`, oldKey).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to lock source key: %w", err)
	}

	if err := d.deleteEntry(ctx, tx, newKey); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
UPDATE "legacy_object"
   SET "_key" = $2::TEXT
 WHERE "_key" = $1::TEXT`, oldKey, newKey)
	if err != nil {
		return fmt.Errorf("failed to rename key: %w", err)
	}
	return nil
}

// dropIfEmpty removes the entry of key once its kind store holds no data,
// keeping "value rows imply a live entry" and "no live entry without values"
// true after collection removals.
func (d directory) dropIfEmpty(ctx context.Context, tx pgx.Tx, key string, kind kv.Kind) error {
	t, ok := valueTables[kind]
	if !ok {
		return fmt.Errorf("unknown kind %q", kind)
	}
	_, err := tx.Exec(ctx, fmt.Sprintf(`
DELETE FROM "legacy_object" o
 WHERE o."_key" = $1::TEXT
   AND o."type" = $2::TEXT::"legacy_object_type"
   AND NOT EXISTS (SELECT 1
                     FROM %q v
                    WHERE v."_key" = o."_key"
                      AND %s)`, t.name, t.nonEmpty), key, kind.String())
	if err != nil {
		return fmt.Errorf("failed to drop emptied key: %w", err)
	}
	return nil
}
