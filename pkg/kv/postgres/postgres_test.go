package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/leafsii/relkv/pkg/kv"
	"github.com/leafsii/relkv/pkg/kv/kvtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = "relkv_test"

func testConfig(t *testing.T) kv.Config {
	t.Helper()
	dsn := os.Getenv("KV_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("KV_TEST_POSTGRES_DSN not set, skipping Postgres tests")
	}
	return kv.Config{
		Backend:        kv.BackendPostgres,
		PostgresDSN:    dsn,
		PostgresSchema: testSchema,
		MaxConns:       8,
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), testConfig(t))
	require.NoError(t, err, "failed to open Postgres store")
	require.NoError(t, store.EmptyAll(context.Background()))
	return store
}

func TestPostgresStore(t *testing.T) {
	testConfig(t)

	factory := func(t *testing.T) kv.Store {
		return openTestStore(t)
	}

	kvtest.RunConformanceTests(t, factory)
}

func TestExpiredRowsPurgedOnWrite(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.SAdd(ctx, "purge", "a", "b"))
	_, err := store.exec.Exec(ctx, `
UPDATE "legacy_object"
   SET "expireAt" = CURRENT_TIMESTAMP - INTERVAL '1 minute'
 WHERE "_key" = 'purge'`)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "purge", "v"))

	var members int
	err = store.exec.QueryRow(ctx, `SELECT COUNT(*) FROM "legacy_set" WHERE "_key" = 'purge'`).Scan(&members)
	require.NoError(t, err)
	assert.Zero(t, members)
}

func TestRenameMovesValueRows(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.ZAdd(ctx, "src", kv.Z{Score: 1, Member: "a"}, kv.Z{Score: 2, Member: "b"}))
	require.NoError(t, store.Set(ctx, "dst", "old"))
	require.NoError(t, store.Rename(ctx, "src", "dst"))

	var moved, stale int
	require.NoError(t, store.exec.QueryRow(ctx, `SELECT COUNT(*) FROM "legacy_zset" WHERE "_key" = 'dst'`).Scan(&moved))
	require.NoError(t, store.exec.QueryRow(ctx, `SELECT COUNT(*) FROM "legacy_string" WHERE "_key" = 'dst'`).Scan(&stale))
	assert.Equal(t, 2, moved)
	assert.Zero(t, stale)
}

func TestEmptiedHashLeavesNoRows(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.HSet(ctx, "h", map[string]string{"f": "v"}))
	require.NoError(t, store.HDel(ctx, "h", "f"))

	var entries, values int
	require.NoError(t, store.exec.QueryRow(ctx, `SELECT COUNT(*) FROM "legacy_object" WHERE "_key" = 'h'`).Scan(&entries))
	require.NoError(t, store.exec.QueryRow(ctx, `SELECT COUNT(*) FROM "legacy_hash" WHERE "_key" = 'h'`).Scan(&values))
	assert.Zero(t, entries)
	assert.Zero(t, values)
}

func TestMigrationsIdempotent(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, RunMigrations(ctx, store.pool, testSchema, MigrateUp, nil))
	require.NoError(t, RunMigrations(ctx, store.pool, testSchema, MigrateStatus, nil))
	require.NoError(t, store.Ping(ctx))
}

func TestRegisteredBackend(t *testing.T) {
	cfg := testConfig(t)

	store, err := kv.NewStoreFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &Store{}, store)
}
