package redis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/leafsii/relkv/pkg/kv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is a Redis-backed implementation of the kv.Store interface
type Store struct {
	client  *redis.Client
	logger  *zap.SugaredLogger
	metrics kv.Recorder
}

var _ kv.Store = (*Store)(nil)

// setKeepTTL refuses to overwrite a key of another kind, which plain SET does.
var setKeepTTL = redis.NewScript(`
local t = redis.call('TYPE', KEYS[1]).ok
if t ~= 'none' and t ~= 'string' then
  return redis.error_reply('WRONGTYPE Operation against a key holding the wrong kind of value')
end
return redis.call('SET', KEYS[1], ARGV[1], 'KEEPTTL')
`)

// IsConnectionError checks if an error is a connection-related error
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	// Don't treat redis.Nil as a connection error (it means "key not found")
	if errors.Is(err, redis.Nil) {
		return false
	}

	// Context cancellation by caller is not a backend failure
	if errors.Is(err, context.Canceled) {
		return false
	}

	// Check for various network/connection errors
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Check for syscall connection errors
	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		switch sysErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED, syscall.ETIMEDOUT:
			return true
		}
	}

	// Check error message for common connection issues
	errStr := err.Error()
	connectionErrors := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"network is unreachable",
		"timeout",
		"connection closed",
		"EOF",
	}

	for _, connErr := range connectionErrors {
		if strings.Contains(errStr, connErr) {
			return true
		}
	}

	return false
}

func isWrongType(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "WRONGTYPE")
}

func isNotNumber(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "not a valid float") ||
		strings.Contains(msg, "not a float") ||
		strings.Contains(msg, "not an integer") ||
		strings.Contains(msg, "not a number")
}

// wrapError maps Redis replies onto the kv error taxonomy
func (s *Store) wrapError(ctx context.Context, key string, want kv.Kind, err error) error {
	switch {
	case err == nil:
		return nil
	case isWrongType(err):
		if s.metrics != nil {
			s.metrics.RecordTypeConflict(ctx, kv.BackendRedis, want)
		}
		// WRONGTYPE does not name the held kind; a failed lookup leaves Have empty.
		have, _ := s.client.Type(ctx, key).Result()
		return &kv.TypeConflictError{Key: key, Want: want, Have: kv.Kind(have)}
	case isNotNumber(err):
		return fmt.Errorf("%w: %v", kv.ErrNotNumber, err)
	case IsConnectionError(err):
		return fmt.Errorf("%w: %v", kv.ErrBackendUnavailable, err)
	}
	return err
}

// readError treats a missing or wrong-kind key as absent
func (s *Store) readError(err error) error {
	if err == nil || errors.Is(err, redis.Nil) || isWrongType(err) {
		return nil
	}
	if IsConnectionError(err) {
		return fmt.Errorf("%w: %v", kv.ErrBackendUnavailable, err)
	}
	return err
}

// ParseURL accepts redis:// URLs as well as bare host:port/db addresses.
func ParseURL(redisURL string) (*redis.Options, error) {
	opt, err := redis.ParseURL(redisURL)
	if err == nil {
		return opt, nil
	}

	// Fallback for simple address format
	u, parseErr := url.Parse("redis://" + redisURL)
	if parseErr != nil {
		return nil, err // Return original error
	}

	db := 0
	if u.Path != "" && u.Path != "/" {
		if dbNum, dbErr := strconv.Atoi(u.Path[1:]); dbErr == nil {
			db = dbNum
		}
	}

	opt = &redis.Options{
		Addr:     u.Host,
		Password: "",
		DB:       db,
	}

	if u.User != nil {
		if password, hasPassword := u.User.Password(); hasPassword {
			opt.Password = password
		}
	}
	return opt, nil
}

// New creates a new Redis-backed store and checks that the server answers
// within cfg.StartupProbeTimeout.
func New(ctx context.Context, cfg kv.Config) (*Store, error) {
	cfg = cfg.WithDefaults()

	opt, err := ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.StartupProbeTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: redis ping failed: %v", kv.ErrBackendUnavailable, err)
	}

	cfg.Logger.Infow("Redis store opened", "addr", opt.Addr, "db", opt.DB)
	return &Store{client: client, logger: cfg.Logger, metrics: cfg.Metrics}, nil
}

// timed records one command the way the relational backend records a
// transaction.
func (s *Store) timed(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	if s.metrics != nil {
		s.metrics.RecordTransaction(ctx, kv.BackendRedis, op, time.Since(start), err)
	}
	return err
}

// Key operations

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return false, err
	}
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, s.wrapError(ctx, key, "", err)
	}
	return n > 0, nil
}

func (s *Store) ExistsMany(ctx context.Context, keys []string) ([]bool, error) {
	result := make([]bool, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Exists(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, s.wrapError(ctx, "", "", err)
	}
	for i, cmd := range cmds {
		result[i] = cmd.Val() > 0
	}
	return result, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	return s.wrapError(ctx, key, "", s.client.Del(ctx, key).Err())
}

func (s *Store) DeleteAll(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.wrapError(ctx, "", "", s.client.Del(ctx, keys...).Err())
}

func (s *Store) Rename(ctx context.Context, oldKey, newKey string) error {
	if err := kv.CheckKey(oldKey); err != nil {
		return err
	}
	if err := kv.CheckKey(newKey); err != nil {
		return err
	}
	return s.timed(ctx, "rename", func() error {
		err := s.client.Rename(ctx, oldKey, newKey).Err()
		if err != nil && strings.Contains(err.Error(), "no such key") {
			return nil
		}
		return s.wrapError(ctx, oldKey, "", err)
	})
}

func (s *Store) Type(ctx context.Context, key string) (kv.Kind, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return "", false, err
	}
	t, err := s.client.Type(ctx, key).Result()
	if err != nil {
		return "", false, s.wrapError(ctx, key, "", err)
	}
	kind := kv.Kind(t)
	if !kind.Valid() {
		return "", false, nil
	}
	return kind, true, nil
}

// Expiration

// pexpire sends the delay as an integer, since time.Duration cannot hold
// delays beyond about 292 years.
func (s *Store) pexpire(ctx context.Context, key string, ms int64) error {
	return s.wrapError(ctx, key, "", s.client.Do(ctx, "pexpire", key, kv.ClampMillis(ms)).Err())
}

func (s *Store) Expire(ctx context.Context, key string, seconds int64) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	return s.pexpire(ctx, key, kv.SecondsToMillis(seconds))
}

func (s *Store) ExpireAt(ctx context.Context, key string, unixSeconds int64) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	return s.wrapError(ctx, key, "", s.client.ExpireAt(ctx, key, kv.FromUnixSeconds(unixSeconds)).Err())
}

func (s *Store) PExpire(ctx context.Context, key string, ms int64) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	return s.pexpire(ctx, key, ms)
}

func (s *Store) PExpireAt(ctx context.Context, key string, unixMs int64) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	return s.wrapError(ctx, key, "", s.client.PExpireAt(ctx, key, kv.FromUnixMillis(unixMs)).Err())
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, false, err
	}
	ms, err := s.client.Do(ctx, "pttl", key).Int64()
	if err != nil {
		return 0, false, s.wrapError(ctx, key, "", err)
	}

	// Redis returns -2 for non-existent keys and -1 for keys without expiry
	switch ms {
	case -2:
		return 0, false, nil
	case -1:
		return -1, true, nil
	}
	return kv.MillisToDuration(ms), true, nil
}

func (s *Store) Persist(ctx context.Context, key string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	return s.wrapError(ctx, key, "", s.client.Persist(ctx, key).Err())
}

// String operations

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return "", false, err
	}
	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return "", false, s.readError(err)
	}
	return value, true, nil
}

// Set keeps an existing expiry, the same way the relational backend does.
func (s *Store) Set(ctx context.Context, key string, value string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	return s.timed(ctx, "set", func() error {
		return s.wrapError(ctx, key, kv.KindString, setKeepTTL.Run(ctx, s.client, []string{key}, value).Err())
	})
}

func (s *Store) Increment(ctx context.Context, key string) (float64, error) {
	return s.IncrBy(ctx, key, 1)
}

// IncrBy uses INCRBYFLOAT so decimal payloads increment the way a NUMERIC
// column does.
func (s *Store) IncrBy(ctx context.Context, key string, delta int64) (float64, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, err
	}
	var next float64
	err := s.timed(ctx, "incr", func() error {
		var err error
		next, err = s.client.IncrByFloat(ctx, key, float64(delta)).Result()
		return s.wrapError(ctx, key, kv.KindString, err)
	})
	return next, err
}

// Hash operations

func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	return s.timed(ctx, "hset", func() error {
		return s.wrapError(ctx, key, kv.KindHash, s.client.HSet(ctx, key, fields).Err())
	})
}

func (s *Store) HGet(ctx context.Context, key string, field string) (string, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return "", false, err
	}
	value, err := s.client.HGet(ctx, key, field).Result()
	if err != nil {
		return "", false, s.readError(err)
	}
	return value, true, nil
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if err := kv.CheckKey(key); err != nil {
		return nil, err
	}
	result, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		if err := s.readError(err); err != nil {
			return nil, err
		}
		return map[string]string{}, nil
	}
	return result, nil
}

func (s *Store) HExists(ctx context.Context, key string, field string) (bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return false, err
	}
	ok, err := s.client.HExists(ctx, key, field).Result()
	if err != nil {
		return false, s.readError(err)
	}
	return ok, nil
}

// HDel on a key of another kind is a no-op, like every removal.
func (s *Store) HDel(ctx context.Context, key string, fields ...string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	return s.readError(s.client.HDel(ctx, key, fields...).Err())
}

func (s *Store) HIncrBy(ctx context.Context, key string, field string, delta int64) (float64, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, err
	}
	var next float64
	err := s.timed(ctx, "hincrby", func() error {
		var err error
		next, err = s.client.HIncrByFloat(ctx, key, field, float64(delta)).Result()
		return s.wrapError(ctx, key, kv.KindHash, err)
	})
	return next, err
}

// Set operations

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	return s.timed(ctx, "sadd", func() error {
		return s.wrapError(ctx, key, kv.KindSet, s.client.SAdd(ctx, key, toArgs(members)...).Err())
	})
}

func (s *Store) SRem(ctx context.Context, key string, members ...string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	return s.readError(s.client.SRem(ctx, key, toArgs(members)...).Err())
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	if err := kv.CheckKey(key); err != nil {
		return nil, err
	}
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		if err := s.readError(err); err != nil {
			return nil, err
		}
		return []string{}, nil
	}
	return members, nil
}

func (s *Store) SIsMember(ctx context.Context, key string, member string) (bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return false, err
	}
	ok, err := s.client.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, s.readError(err)
	}
	return ok, nil
}

func (s *Store) SCard(ctx context.Context, key string) (int64, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, err
	}
	n, err := s.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, s.readError(err)
	}
	return n, nil
}

// Sorted set operations

func (s *Store) ZAdd(ctx context.Context, key string, members ...kv.Z) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	zs := make([]redis.Z, len(members))
	for i, z := range members {
		if math.IsNaN(z.Score) {
			return kv.ErrNotNumber
		}
		zs[i] = redis.Z{Score: z.Score, Member: z.Member}
	}
	return s.timed(ctx, "zadd", func() error {
		return s.wrapError(ctx, key, kv.KindSortedSet, s.client.ZAdd(ctx, key, zs...).Err())
	})
}

func (s *Store) ZRem(ctx context.Context, key string, members ...string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	return s.readError(s.client.ZRem(ctx, key, toArgs(members)...).Err())
}

func (s *Store) ZScore(ctx context.Context, key string, member string) (float64, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, false, err
	}
	score, err := s.client.ZScore(ctx, key, member).Result()
	if err != nil {
		return 0, false, s.readError(err)
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
	var next float64
	err := s.timed(ctx, "zincrby", func() error {
		var err error
		next, err = s.client.ZIncrBy(ctx, key, delta, member).Result()
		return s.wrapError(ctx, key, kv.KindSortedSet, err)
	})
	return next, err
}

func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, err
	}
	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, s.readError(err)
	}
	return n, nil
}

func (s *Store) ZRank(ctx context.Context, key string, member string) (int64, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, false, err
	}
	rank, err := s.client.ZRank(ctx, key, member).Result()
	if err != nil {
		return 0, false, s.readError(err)
	}
	return rank, true, nil
}

func (s *Store) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if err := kv.CheckKey(key); err != nil {
		return nil, err
	}
	return s.members(s.client.ZRange(ctx, key, start, stop).Result())
}

func (s *Store) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if err := kv.CheckKey(key); err != nil {
		return nil, err
	}
	return s.members(s.client.ZRevRange(ctx, key, start, stop).Result())
}

// scoreBound formats a score the way ZRANGEBYSCORE parses it.
func scoreBound(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func (s *Store) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]kv.Z, error) {
	if err := kv.CheckKey(key); err != nil {
		return nil, err
	}
	zs, err := s.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min: scoreBound(min),
		Max: scoreBound(max),
	}).Result()
	if err != nil {
		if err := s.readError(err); err != nil {
			return nil, err
		}
		return []kv.Z{}, nil
	}

	result := make([]kv.Z, len(zs))
	for i, z := range zs {
		member, _ := z.Member.(string)
		result[i] = kv.Z{Score: z.Score, Member: member}
	}
	return result, nil
}

// List operations

func (s *Store) LPush(ctx context.Context, key string, values ...string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	return s.timed(ctx, "lpush", func() error {
		return s.wrapError(ctx, key, kv.KindList, s.client.LPush(ctx, key, toArgs(values)...).Err())
	})
}

func (s *Store) RPush(ctx context.Context, key string, values ...string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	return s.timed(ctx, "rpush", func() error {
		return s.wrapError(ctx, key, kv.KindList, s.client.RPush(ctx, key, toArgs(values)...).Err())
	})
}

func (s *Store) LPop(ctx context.Context, key string) (string, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return "", false, err
	}
	value, err := s.client.LPop(ctx, key).Result()
	if err != nil {
		return "", false, s.readError(err)
	}
	return value, true, nil
}

func (s *Store) RPop(ctx context.Context, key string) (string, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return "", false, err
	}
	value, err := s.client.RPop(ctx, key).Result()
	if err != nil {
		return "", false, s.readError(err)
	}
	return value, true, nil
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if err := kv.CheckKey(key); err != nil {
		return nil, err
	}
	return s.members(s.client.LRange(ctx, key, start, stop).Result())
}

func (s *Store) LTrim(ctx context.Context, key string, start, stop int64) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	return s.readError(s.client.LTrim(ctx, key, start, stop).Err())
}

func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, err
	}
	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, s.readError(err)
	}
	return n, nil
}

// members normalizes a range reply: absent and wrong-kind keys read as empty
func (s *Store) members(values []string, err error) ([]string, error) {
	if err != nil {
		if err := s.readError(err); err != nil {
			return nil, err
		}
		return []string{}, nil
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}

// Administrative

// FlushAll and EmptyAll both clear the selected database; Redis has no
// schema to recreate.
func (s *Store) FlushAll(ctx context.Context) error {
	s.logger.Warnw("Flushing key space")
	return s.wrapError(ctx, "", "", s.client.FlushDB(ctx).Err())
}

func (s *Store) EmptyAll(ctx context.Context) error {
	return s.wrapError(ctx, "", "", s.client.FlushDB(ctx).Err())
}

// Ping checks if Redis is reachable
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", kv.ErrBackendUnavailable, err)
	}
	return nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}
