package redis

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"github.com/leafsii/relkv/pkg/kv"
	"github.com/leafsii/relkv/pkg/kv/kvtest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set, skipping Redis tests")
	}

	factory := func(t *testing.T) kv.Store {
		store, err := New(context.Background(), kv.Config{Backend: kv.BackendRedis, RedisURL: redisURL})
		require.NoError(t, err, "failed to create Redis store")
		return store
	}

	kvtest.RunConformanceTests(t, factory)
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		in       string
		addr     string
		db       int
		password string
	}{
		{"redis://localhost:6379/0", "localhost:6379", 0, ""},
		{"redis://:secret@cache:6380/2", "cache:6380", 2, "secret"},
		{"localhost:6379/3", "localhost:6379", 3, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			opt, err := ParseURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.addr, opt.Addr)
			assert.Equal(t, tt.db, opt.DB)
			assert.Equal(t, tt.password, opt.Password)
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, IsConnectionError(nil))
	assert.False(t, IsConnectionError(context.Canceled))
	assert.True(t, IsConnectionError(errors.New("dial tcp: connection refused")))
	assert.True(t, IsConnectionError(errors.New("unexpected EOF")))
	assert.False(t, IsConnectionError(errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")))
}

func TestWrapError(t *testing.T) {
	// Nothing listens on port 1, so kind lookups fail fast.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer client.Close()
	s := &Store{client: client}
	ctx := context.Background()

	err := s.wrapError(ctx, "k", kv.KindHash, errors.New("WRONGTYPE Operation against a key holding the wrong kind of value"))
	assert.ErrorIs(t, err, kv.ErrWrongType)
	var conflict *kv.TypeConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "k", conflict.Key)
	assert.Equal(t, kv.KindHash, conflict.Want)

	err = s.wrapError(ctx, "k", kv.KindString, errors.New("ERR value is not a valid float"))
	assert.ErrorIs(t, err, kv.ErrNotNumber)

	err = s.wrapError(ctx, "k", kv.KindString, errors.New("read tcp: connection reset by peer"))
	assert.ErrorIs(t, err, kv.ErrBackendUnavailable)

	assert.NoError(t, s.readError(errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")))
}

func TestScoreBound(t *testing.T) {
	assert.Equal(t, "1.5", scoreBound(1.5))
	assert.Equal(t, "-inf", scoreBound(math.Inf(-1)))
	assert.Equal(t, "+inf", scoreBound(math.Inf(1)))
}
