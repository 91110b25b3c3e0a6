// Package kvtest provides conformance tests for kv.Store implementations
package kvtest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leafsii/relkv/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// StoreFactory creates a fresh Store instance for testing
type StoreFactory func(t *testing.T) kv.Store

type storeTest struct {
	name string
	test func(t *testing.T, store kv.Store)
}

// RunConformanceTests runs all conformance tests against a Store implementation
func RunConformanceTests(t *testing.T, factory StoreFactory) {
	t.Run("StringOperations", func(t *testing.T) {
		run(t, factory, []storeTest{
			{"SetGet", testSetGet},
			{"GetNonExistent", testGetNonExistent},
			{"SetOverwrites", testSetOverwrites},
			{"EmptyKey", testEmptyKey},
		})
	})
	t.Run("CounterOperations", func(t *testing.T) {
		run(t, factory, []storeTest{
			{"IncrementAbsent", testIncrementAbsent},
			{"IncrementSequential", testIncrementSequential},
			{"IncrementRoundTrip", testIncrementRoundTrip},
			{"IncrementNotNumber", testIncrementNotNumber},
			{"IncrBy", testIncrBy},
			{"IncrementConcurrent", testIncrementConcurrent},
		})
	})
	t.Run("KeyOperations", func(t *testing.T) {
		run(t, factory, []storeTest{
			{"ExistsDelete", testExistsDelete},
			{"DeleteMissing", testDeleteMissing},
			{"ExistsMany", testExistsMany},
			{"DeleteAll", testDeleteAll},
			{"Type", testType},
			{"Rename", testRename},
			{"RenameOverwritesKind", testRenameOverwritesKind},
			{"RenameMissing", testRenameMissing},
			{"RenameSelf", testRenameSelf},
		})
	})
	t.Run("TTLOperations", func(t *testing.T) {
		run(t, factory, []storeTest{
			{"TTLWithoutExpiry", testTTLWithoutExpiry},
			{"Expire", testExpire},
			{"ExpireAtPast", testExpireAtPast},
			{"ExpireZero", testExpireZero},
			{"ExpireLongTTL", testExpireLongTTL},
			{"PExpireLazy", testPExpireLazy},
			{"Persist", testPersist},
			{"SetKeepsExpiry", testSetKeepsExpiry},
			{"ExpiredKeyReused", testExpiredKeyReused},
			{"ExpireMissing", testExpireMissing},
			{"RenameKeepsExpiry", testRenameKeepsExpiry},
		})
	})
	t.Run("TypeSafety", func(t *testing.T) {
		run(t, factory, []storeTest{
			{"WrongKindWrite", testWrongKindWrite},
			{"WrongKindRead", testWrongKindRead},
			{"WrongKindRemove", testWrongKindRemove},
		})
	})
	t.Run("HashOperations", func(t *testing.T) {
		run(t, factory, []storeTest{
			{"HSetHGet", testHSetHGet},
			{"HDelDropsKey", testHDelDropsKey},
			{"HIncrBy", testHIncrBy},
		})
	})
	t.Run("SetOperations", func(t *testing.T) {
		run(t, factory, []storeTest{
			{"SAddSMembers", testSAddSMembers},
			{"SRemDropsKey", testSRemDropsKey},
		})
	})
	t.Run("SortedSetOperations", func(t *testing.T) {
		run(t, factory, []storeTest{
			{"ZAddRange", testZAddRange},
			{"ZScoreRank", testZScoreRank},
			{"ZIncrBy", testZIncrBy},
			{"ZIncrByNaNResult", testZIncrByNaNResult},
			{"ZRangeByScore", testZRangeByScore},
			{"ZRemDropsKey", testZRemDropsKey},
			{"ZAddNaN", testZAddNaN},
		})
	})
	t.Run("ListOperations", func(t *testing.T) {
		run(t, factory, []storeTest{
			{"PushRange", testPushRange},
			{"Pop", testPop},
			{"LTrim", testLTrim},
		})
	})
	t.Run("Administrative", func(t *testing.T) {
		run(t, factory, []storeTest{
			{"EmptyAll", testEmptyAll},
			{"FlushAll", testFlushAll},
			{"HealthCheck", testHealthCheck},
		})
	})
}

func run(t *testing.T, factory StoreFactory, tests []storeTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			tt.test(t, store)
		})
	}
}

// key returns a name unique to this run so suites can share a server.
func key(name string) string {
	return "test:" + uuid.NewString() + ":" + name
}

func mustGet(t *testing.T, store kv.Store, k string) string {
	t.Helper()
	value, ok, err := store.Get(context.Background(), k)
	require.NoError(t, err)
	require.True(t, ok, "expected %s to exist", k)
	return value
}

func requireAbsent(t *testing.T, store kv.Store, k string) {
	t.Helper()
	exists, err := store.Exists(context.Background(), k)
	require.NoError(t, err)
	require.False(t, exists, "expected %s to be absent", k)
}

// String operations

func testSetGet(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("string")

	require.NoError(t, store.Set(ctx, k, "hello world"))
	assert.Equal(t, "hello world", mustGet(t, store, k))
}

func testGetNonExistent(t *testing.T, store kv.Store) {
	value, ok, err := store.Get(context.Background(), key("missing"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, value)
}

func testSetOverwrites(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("overwrite")

	require.NoError(t, store.Set(ctx, k, "first"))
	require.NoError(t, store.Set(ctx, k, "second"))
	assert.Equal(t, "second", mustGet(t, store, k))
}

func testEmptyKey(t *testing.T, store kv.Store) {
	ctx := context.Background()

	_, _, err := store.Get(ctx, "")
	assert.ErrorIs(t, err, kv.ErrEmptyKey)
	assert.ErrorIs(t, store.Set(ctx, "", "v"), kv.ErrEmptyKey)
	_, err = store.Increment(ctx, "")
	assert.ErrorIs(t, err, kv.ErrEmptyKey)
	assert.ErrorIs(t, store.Rename(ctx, key("src"), ""), kv.ErrEmptyKey)

	// Empty batches are no-ops
	result, err := store.ExistsMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.NoError(t, store.DeleteAll(ctx, nil))
}

// Counter operations

func testIncrementAbsent(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("counter")

	n, err := store.Increment(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, float64(1), n)
	assert.Equal(t, "1", mustGet(t, store, k))
}

func testIncrementSequential(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("counter")

	const n = 10
	var last float64
	for i := 0; i < n; i++ {
		v, err := store.Increment(ctx, k)
		require.NoError(t, err)
		last = v
	}
	assert.Equal(t, float64(n), last)
}

func testIncrementRoundTrip(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("counter")

	require.NoError(t, store.Set(ctx, k, "42"))
	n, err := store.Increment(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, float64(43), n)
	assert.Equal(t, "43", mustGet(t, store, k))

	require.NoError(t, store.Set(ctx, k, "1.5"))
	n, err = store.Increment(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, 2.5, n)
}

func testIncrementNotNumber(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("counter")

	require.NoError(t, store.Set(ctx, k, "abc"))
	_, err := store.Increment(ctx, k)
	require.ErrorIs(t, err, kv.ErrNotNumber)
	assert.Equal(t, "abc", mustGet(t, store, k))
}

func testIncrBy(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("counter")

	n, err := store.IncrBy(ctx, k, 10)
	require.NoError(t, err)
	assert.Equal(t, float64(10), n)

	n, err = store.IncrBy(ctx, k, -15)
	require.NoError(t, err)
	assert.Equal(t, float64(-5), n)
	assert.Equal(t, "-5", mustGet(t, store, k))
}

func testIncrementConcurrent(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("counter")

	const workers, perWorker = 20, 5
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				if _, err := store.Increment(gctx, k); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, "100", mustGet(t, store, k))
}

// Key operations

func testExistsDelete(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("exists")

	requireAbsent(t, store, k)
	require.NoError(t, store.Set(ctx, k, "v"))

	exists, err := store.Exists(ctx, k)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Delete(ctx, k))
	requireAbsent(t, store, k)
}

func testDeleteMissing(t *testing.T, store kv.Store) {
	assert.NoError(t, store.Delete(context.Background(), key("missing")))
}

func testExistsMany(t *testing.T, store kv.Store) {
	ctx := context.Background()
	a, b, c := key("a"), key("b"), key("c")

	require.NoError(t, store.Set(ctx, a, "1"))
	require.NoError(t, store.SAdd(ctx, c, "m"))

	result, err := store.ExistsMany(ctx, []string{a, b, c, a})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, true}, result)
}

func testDeleteAll(t *testing.T, store kv.Store) {
	ctx := context.Background()
	a, b, c := key("a"), key("b"), key("c")

	require.NoError(t, store.Set(ctx, a, "1"))
	require.NoError(t, store.HSet(ctx, b, map[string]string{"f": "v"}))
	require.NoError(t, store.Set(ctx, c, "3"))

	require.NoError(t, store.DeleteAll(ctx, []string{a, b, key("missing")}))
	requireAbsent(t, store, a)
	requireAbsent(t, store, b)
	assert.Equal(t, "3", mustGet(t, store, c))
}

func testType(t *testing.T, store kv.Store) {
	ctx := context.Background()
	keys := map[kv.Kind]string{
		kv.KindString:    key("string"),
		kv.KindHash:      key("hash"),
		kv.KindSet:       key("set"),
		kv.KindSortedSet: key("zset"),
		kv.KindList:      key("list"),
	}

	require.NoError(t, store.Set(ctx, keys[kv.KindString], "v"))
	require.NoError(t, store.HSet(ctx, keys[kv.KindHash], map[string]string{"f": "v"}))
	require.NoError(t, store.SAdd(ctx, keys[kv.KindSet], "m"))
	require.NoError(t, store.ZAdd(ctx, keys[kv.KindSortedSet], kv.Z{Score: 1, Member: "m"}))
	require.NoError(t, store.RPush(ctx, keys[kv.KindList], "v"))

	for want, k := range keys {
		kind, ok, err := store.Type(ctx, k)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, kind)
	}

	_, ok, err := store.Type(ctx, key("missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func testRename(t *testing.T, store kv.Store) {
	ctx := context.Background()
	src, dst := key("src"), key("dst")

	require.NoError(t, store.Set(ctx, src, "1"))
	require.NoError(t, store.Set(ctx, dst, "2"))

	require.NoError(t, store.Rename(ctx, src, dst))
	requireAbsent(t, store, src)
	assert.Equal(t, "1", mustGet(t, store, dst))
}

func testRenameOverwritesKind(t *testing.T, store kv.Store) {
	ctx := context.Background()
	src, dst := key("src"), key("dst")

	require.NoError(t, store.HSet(ctx, src, map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, store.Set(ctx, dst, "old"))

	require.NoError(t, store.Rename(ctx, src, dst))
	requireAbsent(t, store, src)

	kind, ok, err := store.Type(ctx, dst)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, kv.KindHash, kind)

	fields, err := store.HGetAll(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, fields)

	_, ok, err = store.Get(ctx, dst)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testRenameMissing(t *testing.T, store kv.Store) {
	ctx := context.Background()
	src, dst := key("src"), key("dst")

	require.NoError(t, store.Set(ctx, dst, "keep"))
	require.NoError(t, store.Rename(ctx, src, dst))
	assert.Equal(t, "keep", mustGet(t, store, dst))
}

func testRenameSelf(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("self")

	require.NoError(t, store.Set(ctx, k, "v"))
	require.NoError(t, store.Rename(ctx, k, k))
	assert.Equal(t, "v", mustGet(t, store, k))
}

// TTL operations

func testTTLWithoutExpiry(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("ttl")

	_, ok, err := store.TTL(ctx, k)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, k, "v"))
	ttl, ok, err := store.TTL(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Duration(-1), ttl)
}

func testExpire(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("ttl")

	require.NoError(t, store.Set(ctx, k, "v"))
	require.NoError(t, store.Expire(ctx, k, 100))

	ttl, ok, err := store.TTL(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, ttl, 90*time.Second)
	// Server clocks may run slightly ahead of ours
	assert.LessOrEqual(t, ttl, 101*time.Second)
}

func testExpireAtPast(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("ttl")

	require.NoError(t, store.Set(ctx, k, "v"))
	require.NoError(t, store.ExpireAt(ctx, k, time.Now().Add(-time.Minute).Unix()))

	requireAbsent(t, store, k)
	_, ok, err := store.Get(ctx, k)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = store.Type(ctx, k)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testExpireZero(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("ttl")

	require.NoError(t, store.Set(ctx, k, "v"))
	require.NoError(t, store.Expire(ctx, k, 0))

	requireAbsent(t, store, k)
	_, ok, err := store.Get(ctx, k)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testExpireLongTTL(t *testing.T, store kv.Store) {
	ctx := context.Background()
	tests := []struct {
		name   string
		expire func(k string) error
	}{
		{"seconds", func(k string) error { return store.Expire(ctx, k, 10_000_000_000) }},
		{"max seconds", func(k string) error { return store.Expire(ctx, k, math.MaxInt64) }},
		{"millis", func(k string) error { return store.PExpire(ctx, k, 10_000_000_000_000) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := key("ttl")
			require.NoError(t, store.Set(ctx, k, "v"))
			require.NoError(t, tt.expire(k))

			exists, err := store.Exists(ctx, k)
			require.NoError(t, err)
			assert.True(t, exists)

			ttl, ok, err := store.TTL(ctx, k)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Greater(t, ttl, 100*365*24*time.Hour)
		})
	}
}

func testPExpireLazy(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("ttl")

	require.NoError(t, store.RPush(ctx, k, "a", "b"))
	require.NoError(t, store.PExpire(ctx, k, 200))

	exists, err := store.Exists(ctx, k)
	require.NoError(t, err)
	assert.True(t, exists)

	time.Sleep(600 * time.Millisecond)

	requireAbsent(t, store, k)
	values, err := store.LRange(ctx, k, 0, -1)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func testPersist(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("ttl")

	require.NoError(t, store.Set(ctx, k, "v"))
	require.NoError(t, store.PExpireAt(ctx, k, time.Now().Add(time.Hour).UnixMilli()))
	require.NoError(t, store.Persist(ctx, k))

	ttl, ok, err := store.TTL(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Duration(-1), ttl)
}

func testSetKeepsExpiry(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("ttl")

	require.NoError(t, store.Set(ctx, k, "a"))
	require.NoError(t, store.Expire(ctx, k, 100))
	require.NoError(t, store.Set(ctx, k, "b"))

	ttl, ok, err := store.TTL(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, ttl, time.Duration(0))
	assert.Equal(t, "b", mustGet(t, store, k))
}

func testExpiredKeyReused(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("ttl")

	require.NoError(t, store.HSet(ctx, k, map[string]string{"f": "v"}))
	require.NoError(t, store.PExpireAt(ctx, k, time.Now().Add(-time.Second).UnixMilli()))

	// An expired entry never blocks a write of another kind
	require.NoError(t, store.Set(ctx, k, "fresh"))
	assert.Equal(t, "fresh", mustGet(t, store, k))

	ttl, ok, err := store.TTL(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Duration(-1), ttl)
}

func testExpireMissing(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("ttl")

	require.NoError(t, store.Expire(ctx, k, 100))
	requireAbsent(t, store, k)
	require.NoError(t, store.Persist(ctx, k))
	requireAbsent(t, store, k)
}

func testRenameKeepsExpiry(t *testing.T, store kv.Store) {
	ctx := context.Background()
	src, dst := key("src"), key("dst")

	require.NoError(t, store.Set(ctx, src, "v"))
	require.NoError(t, store.Expire(ctx, src, 100))
	require.NoError(t, store.Rename(ctx, src, dst))

	ttl, ok, err := store.TTL(ctx, dst)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, ttl, time.Duration(0))
}

// Type safety

func testWrongKindWrite(t *testing.T, store kv.Store) {
	ctx := context.Background()
	s, h := key("string"), key("hash")

	require.NoError(t, store.Set(ctx, s, "v"))
	require.NoError(t, store.HSet(ctx, h, map[string]string{"f": "1"}))

	assert.ErrorIs(t, store.HSet(ctx, s, map[string]string{"f": "v"}), kv.ErrWrongType)
	assert.ErrorIs(t, store.SAdd(ctx, s, "m"), kv.ErrWrongType)
	assert.ErrorIs(t, store.ZAdd(ctx, s, kv.Z{Score: 1, Member: "m"}), kv.ErrWrongType)
	assert.ErrorIs(t, store.LPush(ctx, s, "v"), kv.ErrWrongType)
	assert.ErrorIs(t, store.Set(ctx, h, "v"), kv.ErrWrongType)
	_, err := store.Increment(ctx, h)
	assert.ErrorIs(t, err, kv.ErrWrongType)
	_, err = store.HIncrBy(ctx, s, "f", 1)
	assert.ErrorIs(t, err, kv.ErrWrongType)

	var conflict *kv.TypeConflictError
	require.ErrorAs(t, store.SAdd(ctx, h, "m"), &conflict)
	assert.Equal(t, h, conflict.Key)
	assert.Equal(t, kv.KindSet, conflict.Want)
	assert.Equal(t, kv.KindHash, conflict.Have)

	// The original values are untouched
	assert.Equal(t, "v", mustGet(t, store, s))
	value, ok, err := store.HGet(ctx, h, "f")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", value)
}

func testWrongKindRead(t *testing.T, store kv.Store) {
	ctx := context.Background()
	s, h := key("string"), key("hash")

	require.NoError(t, store.Set(ctx, s, "v"))
	require.NoError(t, store.HSet(ctx, h, map[string]string{"f": "1"}))

	_, ok, err := store.Get(ctx, h)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.HGet(ctx, s, "f")
	require.NoError(t, err)
	assert.False(t, ok)

	members, err := store.SMembers(ctx, s)
	require.NoError(t, err)
	assert.Empty(t, members)

	n, err := store.ZCard(ctx, s)
	require.NoError(t, err)
	assert.Zero(t, n)

	values, err := store.LRange(ctx, s, 0, -1)
	require.NoError(t, err)
	assert.Empty(t, values)

	_, ok, err = store.LPop(ctx, s)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testWrongKindRemove(t *testing.T, store kv.Store) {
	ctx := context.Background()
	s := key("string")

	require.NoError(t, store.Set(ctx, s, "v"))
	require.NoError(t, store.HDel(ctx, s, "f"))
	require.NoError(t, store.SRem(ctx, s, "m"))
	require.NoError(t, store.ZRem(ctx, s, "m"))
	require.NoError(t, store.LTrim(ctx, s, 0, 0))
	assert.Equal(t, "v", mustGet(t, store, s))
}

// Hash operations

func testHSetHGet(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("hash")

	require.NoError(t, store.HSet(ctx, k, map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, store.HSet(ctx, k, map[string]string{"b": "3", "c": "4"}))

	value, ok, err := store.HGet(ctx, k, "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3", value)

	_, ok, err = store.HGet(ctx, k, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	exists, err := store.HExists(ctx, k, "c")
	require.NoError(t, err)
	assert.True(t, exists)

	all, err := store.HGetAll(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "3", "c": "4"}, all)

	all, err = store.HGetAll(ctx, key("missing"))
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testHDelDropsKey(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("hash")

	require.NoError(t, store.HSet(ctx, k, map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, store.HDel(ctx, k, "a"))

	exists, err := store.Exists(ctx, k)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.HDel(ctx, k, "b", "missing"))
	requireAbsent(t, store, k)
}

func testHIncrBy(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("hash")

	n, err := store.HIncrBy(ctx, k, "count", 5)
	require.NoError(t, err)
	assert.Equal(t, float64(5), n)

	n, err = store.HIncrBy(ctx, k, "count", -2)
	require.NoError(t, err)
	assert.Equal(t, float64(3), n)

	value, ok, err := store.HGet(ctx, k, "count")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3", value)

	require.NoError(t, store.HSet(ctx, k, map[string]string{"name": "abc"}))
	_, err = store.HIncrBy(ctx, k, "name", 1)
	assert.ErrorIs(t, err, kv.ErrNotNumber)
}

// Set operations

func testSAddSMembers(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("set")

	require.NoError(t, store.SAdd(ctx, k, "a", "b", "a"))
	require.NoError(t, store.SAdd(ctx, k, "c"))

	members, err := store.SMembers(ctx, k)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, members)

	n, err := store.SCard(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	ok, err := store.SIsMember(ctx, k, "b")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SIsMember(ctx, k, "z")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testSRemDropsKey(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("set")

	require.NoError(t, store.SAdd(ctx, k, "a", "b"))
	require.NoError(t, store.SRem(ctx, k, "a"))

	members, err := store.SMembers(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, members)

	require.NoError(t, store.SRem(ctx, k, "b"))
	requireAbsent(t, store, k)
}

// Sorted set operations

func seedZSet(t *testing.T, store kv.Store, k string) {
	t.Helper()
	require.NoError(t, store.ZAdd(context.Background(), k,
		kv.Z{Score: 1, Member: "a"},
		kv.Z{Score: 2, Member: "c"},
		kv.Z{Score: 2, Member: "b"},
		kv.Z{Score: 3, Member: "d"},
	))
}

func testZAddRange(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("zset")
	seedZSet(t, store, k)

	tests := []struct {
		start, stop int64
		reverse     bool
		want        []string
	}{
		{0, -1, false, []string{"a", "b", "c", "d"}},
		{1, 2, false, []string{"b", "c"}},
		{-2, -1, false, []string{"c", "d"}},
		{0, 100, false, []string{"a", "b", "c", "d"}},
		{3, 1, false, []string{}},
		{10, 20, false, []string{}},
		{0, -1, true, []string{"d", "c", "b", "a"}},
		{0, 0, true, []string{"d"}},
		{-3, -2, true, []string{"c", "b"}},
		{0, math.MaxInt64, false, []string{"a", "b", "c", "d"}},
		{2, math.MaxInt64, true, []string{"b", "a"}},
		{math.MinInt64, 1, false, []string{"a", "b"}},
	}
	for _, tt := range tests {
		var got []string
		var err error
		if tt.reverse {
			got, err = store.ZRevRange(ctx, k, tt.start, tt.stop)
		} else {
			got, err = store.ZRange(ctx, k, tt.start, tt.stop)
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "range %d..%d reverse=%v", tt.start, tt.stop, tt.reverse)
	}

	n, err := store.ZCard(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	// Re-adding a member updates its score
	require.NoError(t, store.ZAdd(ctx, k, kv.Z{Score: 10, Member: "a"}, kv.Z{Score: 0, Member: "a"}))
	got, err := store.ZRange(ctx, k, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
}

func testZScoreRank(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("zset")
	seedZSet(t, store, k)

	score, ok, err := store.ZScore(ctx, k, "d")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(3), score)

	_, ok, err = store.ZScore(ctx, k, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	rank, ok, err := store.ZRank(ctx, k, "c")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), rank)

	_, ok, err = store.ZRank(ctx, k, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testZIncrBy(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("zset")

	n, err := store.ZIncrBy(ctx, k, 1.5, "m")
	require.NoError(t, err)
	assert.Equal(t, 1.5, n)

	n, err = store.ZIncrBy(ctx, k, 2, "m")
	require.NoError(t, err)
	assert.Equal(t, 3.5, n)

	_, err = store.ZIncrBy(ctx, k, math.NaN(), "m")
	assert.ErrorIs(t, err, kv.ErrNotNumber)
}

func testZIncrByNaNResult(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("zset")

	require.NoError(t, store.ZAdd(ctx, k, kv.Z{Score: math.Inf(1), Member: "m"}))

	_, err := store.ZIncrBy(ctx, k, math.Inf(-1), "m")
	assert.ErrorIs(t, err, kv.ErrNotNumber)

	score, ok, err := store.ZScore(ctx, k, "m")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, math.IsInf(score, 1), "score should stay +Inf, got %v", score)
}

func testZRangeByScore(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("zset")
	seedZSet(t, store, k)

	got, err := store.ZRangeByScore(ctx, k, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []kv.Z{
		{Score: 2, Member: "b"},
		{Score: 2, Member: "c"},
		{Score: 3, Member: "d"},
	}, got)

	got, err = store.ZRangeByScore(ctx, k, math.Inf(-1), 1)
	require.NoError(t, err)
	assert.Equal(t, []kv.Z{{Score: 1, Member: "a"}}, got)

	got, err = store.ZRangeByScore(ctx, k, 5, math.Inf(1))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testZRemDropsKey(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("zset")
	seedZSet(t, store, k)

	require.NoError(t, store.ZRem(ctx, k, "a", "b"))
	n, err := store.ZCard(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, store.ZRem(ctx, k, "c", "d"))
	requireAbsent(t, store, k)
}

func testZAddNaN(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("zset")

	err := store.ZAdd(ctx, k, kv.Z{Score: math.NaN(), Member: "m"})
	assert.ErrorIs(t, err, kv.ErrNotNumber)
	requireAbsent(t, store, k)
}

// List operations

func testPushRange(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("list")

	require.NoError(t, store.RPush(ctx, k, "a", "b", "c"))
	require.NoError(t, store.LPush(ctx, k, "x", "y"))

	values, err := store.LRange(ctx, k, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x", "a", "b", "c"}, values)

	values, err = store.LRange(ctx, k, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "a"}, values)

	values, err = store.LRange(ctx, k, -2, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, values)

	n, err := store.LLen(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = store.LLen(ctx, key("missing"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testPop(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("list")

	require.NoError(t, store.RPush(ctx, k, "a", "b", "c"))

	value, ok, err := store.LPop(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", value)

	value, ok, err = store.RPop(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c", value)

	value, ok, err = store.LPop(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", value)

	requireAbsent(t, store, k)
	_, ok, err = store.RPop(ctx, k)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testLTrim(t *testing.T, store kv.Store) {
	ctx := context.Background()
	k := key("list")

	require.NoError(t, store.RPush(ctx, k, "a", "b", "c", "d"))
	require.NoError(t, store.LTrim(ctx, k, 1, -2))

	values, err := store.LRange(ctx, k, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, values)

	require.NoError(t, store.LTrim(ctx, k, 5, 10))
	requireAbsent(t, store, k)
}

// Administrative

func testEmptyAll(t *testing.T, store kv.Store) {
	ctx := context.Background()
	a, b := key("a"), key("b")

	require.NoError(t, store.Set(ctx, a, "1"))
	require.NoError(t, store.ZAdd(ctx, b, kv.Z{Score: 1, Member: "m"}))

	require.NoError(t, store.EmptyAll(ctx))
	requireAbsent(t, store, a)
	requireAbsent(t, store, b)

	require.NoError(t, store.Set(ctx, a, "again"))
	assert.Equal(t, "again", mustGet(t, store, a))
}

func testFlushAll(t *testing.T, store kv.Store) {
	ctx := context.Background()
	a := key("a")

	require.NoError(t, store.HSet(ctx, a, map[string]string{"f": "v"}))
	require.NoError(t, store.FlushAll(ctx))
	requireAbsent(t, store, a)

	// The store stays usable
	n, err := store.Increment(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, float64(1), n)
}

func testHealthCheck(t *testing.T, store kv.Store) {
	assert.NoError(t, store.Ping(context.Background()))
}
