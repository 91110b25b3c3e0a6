package memory

import (
	"context"
	"math"
	"sort"

	"github.com/leafsii/relkv/pkg/kv"
	"github.com/shopspring/decimal"
)

// Hash operations

func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, _, err := s.ensure(key, kv.KindHash)
	if err != nil {
		return err
	}
	for field, value := range fields {
		e.hash[field] = value
	}
	return nil
}

func (s *Store) HGet(ctx context.Context, key string, field string) (string, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.liveOf(key, kv.KindHash)
	if e == nil {
		return "", false, nil
	}
	value, ok := e.hash[field]
	return value, ok, nil
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if err := kv.CheckKey(key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[string]string)
	if e := s.liveOf(key, kv.KindHash); e != nil {
		for field, value := range e.hash {
			result[field] = value
		}
	}
	return result, nil
}

func (s *Store) HExists(ctx context.Context, key string, field string) (bool, error) {
	_, ok, err := s.HGet(ctx, key, field)
	return ok, err
}

func (s *Store) HDel(ctx context.Context, key string, fields ...string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.liveOf(key, kv.KindHash)
	if e == nil {
		return nil
	}
	for _, field := range fields {
		delete(e.hash, field)
	}
	s.dropIfEmpty(key, e)
	return nil
}

func (s *Store) HIncrBy(ctx context.Context, key string, field string, delta int64) (float64, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, _, err := s.ensure(key, kv.KindHash)
	if err != nil {
		return 0, err
	}

	current := decimal.Zero
	if raw, ok := e.hash[field]; ok {
		current, err = parseNumber(raw)
		if err != nil {
			return 0, err
		}
	}

	next := current.Add(decimal.NewFromInt(delta))
	e.hash[field] = next.String()
	f, _ := next.Float64()
	return f, nil
}

// Set operations

func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, _, err := s.ensure(key, kv.KindSet)
	if err != nil {
		return err
	}
	for _, m := range members {
		e.set[m] = struct{}{}
	}
	return nil
}

func (s *Store) SRem(ctx context.Context, key string, members ...string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.liveOf(key, kv.KindSet)
	if e == nil {
		return nil
	}
	for _, m := range members {
		delete(e.set, m)
	}
	s.dropIfEmpty(key, e)
	return nil
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	if err := kv.CheckKey(key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	result := []string{}
	if e := s.liveOf(key, kv.KindSet); e != nil {
		for m := range e.set {
			result = append(result, m)
		}
	}
	return result, nil
}

func (s *Store) SIsMember(ctx context.Context, key string, member string) (bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.liveOf(key, kv.KindSet)
	if e == nil {
		return false, nil
	}
	_, ok := e.set[member]
	return ok, nil
}

func (s *Store) SCard(ctx context.Context, key string) (int64, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.liveOf(key, kv.KindSet); e != nil {
		return int64(len(e.set)), nil
	}
	return 0, nil
}

// Sorted set operations

// sorted returns the members ordered by score, ties broken by member
func (e *entry) sorted() []kv.Z {
	out := make([]kv.Z, 0, len(e.zset))
	for m, score := range e.zset {
		out = append(out, kv.Z{Score: score, Member: m})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	return out
}

func (s *Store) ZAdd(ctx context.Context, key string, members ...kv.Z) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	for _, z := range members {
		if math.IsNaN(z.Score) {
			return kv.ErrNotNumber
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, _, err := s.ensure(key, kv.KindSortedSet)
	if err != nil {
		return err
	}
	for _, z := range members {
		e.zset[z.Member] = z.Score
	}
	return nil
}

func (s *Store) ZRem(ctx context.Context, key string, members ...string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.liveOf(key, kv.KindSortedSet)
	if e == nil {
		return nil
	}
	for _, m := range members {
		delete(e.zset, m)
	}
	s.dropIfEmpty(key, e)
	return nil
}

func (s *Store) ZScore(ctx context.Context, key string, member string) (float64, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.liveOf(key, kv.KindSortedSet)
	if e == nil {
		return 0, false, nil
	}
	score, ok := e.zset[member]
	return score, ok, nil
}

func (s *Store) ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, err
	}
	if math.IsNaN(delta) {
		return 0, kv.ErrNotNumber
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, _, err := s.ensure(key, kv.KindSortedSet)
	if err != nil {
		return 0, err
	}
	next := e.zset[member] + delta
	if math.IsNaN(next) {
		return 0, kv.ErrNotNumber
	}
	e.zset[member] = next
	return next, nil
}

func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.liveOf(key, kv.KindSortedSet); e != nil {
		return int64(len(e.zset)), nil
	}
	return 0, nil
}

func (s *Store) ZRank(ctx context.Context, key string, member string) (int64, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.liveOf(key, kv.KindSortedSet)
	if e == nil {
		return 0, false, nil
	}
	if _, ok := e.zset[member]; !ok {
		return 0, false, nil
	}
	for i, z := range e.sorted() {
		if z.Member == member {
			return int64(i), true, nil
		}
	}
	return 0, false, nil
}

func (s *Store) zrange(key string, start, stop int64, reverse bool) ([]string, error) {
	if err := kv.CheckKey(key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	result := []string{}
	e := s.liveOf(key, kv.KindSortedSet)
	if e == nil {
		return result, nil
	}
	ordered := e.sorted()
	if reverse {
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	}
	lo, hi, ok := kv.NormalizeRange(start, stop, int64(len(ordered)))
	if !ok {
		return result, nil
	}
	for _, z := range ordered[lo:hi] {
		result = append(result, z.Member)
	}
	return result, nil
}

func (s *Store) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.zrange(key, start, stop, false)
}

func (s *Store) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.zrange(key, start, stop, true)
}

func (s *Store) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]kv.Z, error) {
	if err := kv.CheckKey(key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	result := []kv.Z{}
	e := s.liveOf(key, kv.KindSortedSet)
	if e == nil {
		return result, nil
	}
	for _, z := range e.sorted() {
		if z.Score >= min && z.Score <= max {
			result = append(result, z)
		}
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
	s.mu.Lock()
	defer s.mu.Unlock()

	e, _, err := s.ensure(key, kv.KindList)
	if err != nil {
		return err
	}
	head := make([]string, 0, len(values)+len(e.list))
	for i := len(values) - 1; i >= 0; i-- {
		head = append(head, values[i])
	}
	e.list = append(head, e.list...)
	return nil
}

func (s *Store) RPush(ctx context.Context, key string, values ...string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, _, err := s.ensure(key, kv.KindList)
	if err != nil {
		return err
	}
	e.list = append(e.list, values...)
	return nil
}

func (s *Store) pop(key string, head bool) (string, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.liveOf(key, kv.KindList)
	if e == nil || len(e.list) == 0 {
		return "", false, nil
	}

	var value string
	if head {
		value = e.list[0]
		e.list = e.list[1:]
	} else {
		value = e.list[len(e.list)-1]
		e.list = e.list[:len(e.list)-1]
	}
	s.dropIfEmpty(key, e)
	return value, true, nil
}

func (s *Store) LPop(ctx context.Context, key string) (string, bool, error) {
	return s.pop(key, true)
}

func (s *Store) RPop(ctx context.Context, key string) (string, bool, error) {
	return s.pop(key, false)
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if err := kv.CheckKey(key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	result := []string{}
	e := s.liveOf(key, kv.KindList)
	if e == nil {
		return result, nil
	}
	lo, hi, ok := kv.NormalizeRange(start, stop, int64(len(e.list)))
	if !ok {
		return result, nil
	}
	return append(result, e.list[lo:hi]...), nil
}

func (s *Store) LTrim(ctx context.Context, key string, start, stop int64) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.liveOf(key, kv.KindList)
	if e == nil {
		return nil
	}
	lo, hi, ok := kv.NormalizeRange(start, stop, int64(len(e.list)))
	if !ok {
		e.list = nil
	} else {
		e.list = append([]string(nil), e.list[lo:hi]...)
	}
	s.dropIfEmpty(key, e)
	return nil
}

func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.liveOf(key, kv.KindList); e != nil {
		return int64(len(e.list)), nil
	}
	return 0, nil
}
