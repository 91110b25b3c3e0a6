package memory

import (
	"context"
	"testing"
	"time"

	"github.com/leafsii/relkv/pkg/kv"
	"github.com/leafsii/relkv/pkg/kv/kvtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	factory := func(t *testing.T) kv.Store {
		return New(0) // Disable janitor for deterministic tests
	}

	kvtest.RunConformanceTests(t, factory)
}

func TestMemoryStoreWithJanitor(t *testing.T) {
	// Test with a short janitor interval for faster cleanup testing
	store := New(10 * time.Millisecond)
	defer store.Close()

	ctx := context.Background()
	key := "test:janitor"

	require.NoError(t, store.Set(ctx, key, "test"))
	require.NoError(t, store.PExpire(ctx, key, 20))

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists, "expected key to exist initially")

	// Wait for janitor to clean up
	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		_, ok := store.entries[key]
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestCloseTwice(t *testing.T) {
	for _, interval := range []time.Duration{0, 10 * time.Millisecond} {
		store := New(interval)
		require.NoError(t, store.Close())
		assert.NotPanics(t, func() {
			assert.NoError(t, store.Close())
		}, "janitor interval %s", interval)
	}
}

func TestTypeConflictError(t *testing.T) {
	store := New(0)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.RPush(ctx, "list", "a"))

	err := store.SAdd(ctx, "list", "m")
	var conflict *kv.TypeConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "list", conflict.Key)
	assert.Equal(t, kv.KindSet, conflict.Want)
	assert.Equal(t, kv.KindList, conflict.Have)
}

func TestIncrementKeepsDecimalText(t *testing.T) {
	store := New(0)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "n", "0.1"))

	n, err := store.IncrBy(ctx, "n", 2)
	require.NoError(t, err)
	assert.Equal(t, 2.1, n)

	value, _, err := store.Get(ctx, "n")
	require.NoError(t, err)
	assert.Equal(t, "2.1", value)
}

func TestRegisteredBackend(t *testing.T) {
	store, err := kv.NewStoreFromConfig(context.Background(), kv.Config{Backend: kv.BackendMemory})
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &Store{}, store)
}
