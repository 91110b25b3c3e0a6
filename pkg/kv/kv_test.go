package kv

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRange(t *testing.T) {
	tests := []struct {
		name        string
		start, stop int64
		n           int64
		lo, hi      int64
		ok          bool
	}{
		{"whole", 0, -1, 5, 0, 5, true},
		{"prefix", 0, 1, 5, 0, 2, true},
		{"tail", -2, -1, 5, 3, 5, true},
		{"stop past end", 2, 100, 5, 2, 5, true},
		{"start before head", -100, 0, 5, 0, 1, true},
		{"start after stop", 3, 1, 5, 0, 0, false},
		{"start past end", 5, 10, 5, 0, 0, false},
		{"empty", 0, -1, 0, 0, 0, false},
		{"both before head", -10, -8, 5, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi, ok := NormalizeRange(tt.start, tt.stop, tt.n)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.lo, lo)
				assert.Equal(t, tt.hi, hi)
			}
		})
	}
}

func TestExpiryHelpers(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	now = func() time.Time { return fixed }
	defer func() { now = time.Now }()

	assert.True(t, fixed.Add(10*time.Second).Equal(SecondsFromNow(10)))
	assert.True(t, fixed.Add(-time.Second).Equal(SecondsFromNow(-1)))
	assert.True(t, fixed.Add(250*time.Millisecond).Equal(MillisFromNow(250)))
	assert.True(t, fixed.Equal(SecondsFromNow(0)))
	assert.True(t, FromUnixSeconds(fixed.Unix()).Equal(fixed))
	assert.True(t, FromUnixMillis(fixed.UnixMilli()).Equal(fixed))
}

func TestExpiryHelpersClampLongTTLs(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	now = func() time.Time { return fixed }
	defer func() { now = time.Now }()

	far := fixed.AddDate(300, 0, 0)
	tests := []struct {
		name   string
		at     time.Time
		future bool
	}{
		{"ten billion seconds", SecondsFromNow(10_000_000_000), true},
		{"max seconds", SecondsFromNow(math.MaxInt64), true},
		{"max millis", MillisFromNow(math.MaxInt64), true},
		{"min seconds", SecondsFromNow(math.MinInt64), false},
		{"min millis", MillisFromNow(math.MinInt64), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.future {
				assert.True(t, tt.at.After(far), "expiry %s should be far in the future", tt.at)
			} else {
				assert.True(t, tt.at.Before(fixed), "expiry %s should be in the past", tt.at)
			}
		})
	}

	assert.Equal(t, int64(10_000_000_000_000), SecondsToMillis(10_000_000_000))
	assert.Equal(t, MaxRelativeMillis, SecondsToMillis(math.MaxInt64))
	assert.Equal(t, -MaxRelativeMillis, ClampMillis(math.MinInt64))
	assert.Equal(t, int64(250), ClampMillis(250))

	assert.Equal(t, 1500*time.Millisecond, MillisToDuration(1500))
	assert.Equal(t, time.Duration(math.MaxInt64), MillisToDuration(MaxRelativeMillis))
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, time.Duration(-1), Remaining(time.Time{}))
	assert.Equal(t, time.Duration(0), Remaining(time.Now().Add(-time.Minute)))

	d := Remaining(time.Now().Add(time.Minute))
	assert.Greater(t, d, 59*time.Second)
	assert.LessOrEqual(t, d, time.Minute)
}

func TestTypeConflictError(t *testing.T) {
	err := fmt.Errorf("failed to set: %w", &TypeConflictError{Key: "k", Want: KindString, Have: KindHash})

	assert.ErrorIs(t, err, ErrWrongType)
	assert.NotErrorIs(t, err, ErrNotNumber)

	var conflict *TypeConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, KindHash, conflict.Have)
	assert.Contains(t, err.Error(), `cannot use "k" as string because it already exists as hash`)
}

func TestCheckKey(t *testing.T) {
	assert.ErrorIs(t, CheckKey(""), ErrEmptyKey)
	assert.NoError(t, CheckKey("k"))
}

func TestKindValid(t *testing.T) {
	for _, k := range Kinds {
		assert.True(t, k.Valid(), k.String())
	}
	assert.False(t, Kind("none").Valid())
	assert.Equal(t, "zset", KindSortedSet.String())
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{Backend: BackendPostgres}.WithDefaults()

	assert.Equal(t, "public", cfg.PostgresSchema)
	assert.Equal(t, int32(10), cfg.MaxConns)
	assert.Equal(t, "warn", cfg.PostgresLogLevel)
	assert.Equal(t, 5*time.Second, cfg.StartupProbeTimeout)
	assert.NotNil(t, cfg.Logger)

	cfg = Config{PostgresSchema: "kv", MaxConns: 3}.WithDefaults()
	assert.Equal(t, "kv", cfg.PostgresSchema)
	assert.Equal(t, int32(3), cfg.MaxConns)
}

func TestNewStoreFromConfigValidation(t *testing.T) {
	ctx := context.Background()

	_, err := NewStoreFromConfig(ctx, Config{Backend: BackendRedis})
	assert.ErrorContains(t, err, "redis URL is required")

	_, err = NewStoreFromConfig(ctx, Config{Backend: BackendPostgres})
	assert.ErrorContains(t, err, "postgres DSN is required")

	_, err = NewStoreFromConfig(ctx, Config{Backend: "etcd"})
	assert.ErrorContains(t, err, "unsupported backend")
}

func TestRegisterBackend(t *testing.T) {
	saved := factories[BackendMemory]
	defer func() {
		if saved == nil {
			delete(factories, BackendMemory)
		} else {
			factories[BackendMemory] = saved
		}
	}()

	delete(factories, BackendMemory)
	_, err := NewStoreFromConfig(context.Background(), Config{Backend: BackendMemory})
	assert.ErrorContains(t, err, "memory backend not registered")

	boom := errors.New("boom")
	RegisterBackend(BackendMemory, func(context.Context, Config) (Store, error) {
		return nil, boom
	})
	_, err = NewStoreFromConfig(context.Background(), Config{Backend: BackendMemory})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, RegisteredBackends(), BackendMemory)
}
