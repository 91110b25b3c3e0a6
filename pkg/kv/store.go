package kv

import (
	"context"
	"time"
)

// Kind is the value shape a key holds. The string form matches the
// legacy_object_type enum and the Redis TYPE reply.
type Kind string

const (
	KindString    Kind = "string"
	KindHash      Kind = "hash"
	KindSet       Kind = "set"
	KindSortedSet Kind = "zset"
	KindList      Kind = "list"
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindString, KindHash, KindSet, KindSortedSet, KindList}

func (k Kind) String() string {
	return string(k)
}

// Valid reports whether k is one of Kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindString, KindHash, KindSet, KindSortedSet, KindList:
		return true
	}
	return false
}

// Z is a sorted set member with its score.
type Z struct {
	Score  float64
	Member string
}

// Store defines the interface for a Redis-like key-value store.
//
// Reads never fail because a key is missing, expired or holds a different
// kind: they report ok == false or an empty collection. Writes against a key
// of a different kind fail with ErrWrongType.
type Store interface {
	// Key operations
	Exists(ctx context.Context, key string) (bool, error)
	ExistsMany(ctx context.Context, keys []string) ([]bool, error)
	Delete(ctx context.Context, key string) error
	DeleteAll(ctx context.Context, keys []string) error
	Rename(ctx context.Context, oldKey, newKey string) error
	Type(ctx context.Context, key string) (Kind, bool, error)

	// Expiration
	Expire(ctx context.Context, key string, seconds int64) error
	ExpireAt(ctx context.Context, key string, unixSeconds int64) error
	PExpire(ctx context.Context, key string, ms int64) error
	PExpireAt(ctx context.Context, key string, unixMs int64) error
	// TTL returns -1 for a live key without expiry.
	TTL(ctx context.Context, key string) (time.Duration, bool, error)
	Persist(ctx context.Context, key string) error

	// String operations
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Increment(ctx context.Context, key string) (float64, error)
	IncrBy(ctx context.Context, key string, delta int64) (float64, error)

	// Hash operations
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGet(ctx context.Context, key string, field string) (string, bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HExists(ctx context.Context, key string, field string) (bool, error)
	HDel(ctx context.Context, key string, fields ...string) error
	HIncrBy(ctx context.Context, key string, field string, delta int64) (float64, error)

	// Set operations
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key string, member string) (bool, error)
	SCard(ctx context.Context, key string) (int64, error)

	// Sorted set operations
	ZAdd(ctx context.Context, key string, members ...Z) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZScore(ctx context.Context, key string, member string) (float64, bool, error)
	ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error)
	ZCard(ctx context.Context, key string) (int64, error)
	ZRank(ctx context.Context, key string, member string) (int64, bool, error)
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]Z, error)

	// List operations
	LPush(ctx context.Context, key string, values ...string) error
	RPush(ctx context.Context, key string, values ...string) error
	LPop(ctx context.Context, key string) (string, bool, error)
	RPop(ctx context.Context, key string) (string, bool, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	LLen(ctx context.Context, key string) (int64, error)

	// Administrative
	FlushAll(ctx context.Context) error
	EmptyAll(ctx context.Context) error

	// Health check
	Ping(ctx context.Context) error

	// Cleanup
	Close() error
}
