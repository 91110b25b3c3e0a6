package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/leafsii/relkv/pkg/kv"
	"github.com/shopspring/decimal"
)

// entry is one directory entry together with the payload of its kind.
// Only the field matching kind is populated.
type entry struct {
	kind      kv.Kind
	expiresAt time.Time // zero means never

	str  string
	hash map[string]string
	set  map[string]struct{}
	zset map[string]float64
	list []string
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

func (e *entry) empty() bool {
	switch e.kind {
	case kv.KindHash:
		return len(e.hash) == 0
	case kv.KindSet:
		return len(e.set) == 0
	case kv.KindSortedSet:
		return len(e.zset) == 0
	case kv.KindList:
		return len(e.list) == 0
	}
	return false
}

// Store is an in-memory implementation of the kv.Store interface.
// A single mutex makes every command atomic.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry

	janitorInterval time.Duration
	janitorStop     chan struct{}
	janitorDone     chan struct{}
	closeOnce       sync.Once
}

var _ kv.Store = (*Store)(nil)

// New creates a new in-memory store with optional janitor for TTL cleanup
func New(janitorInterval time.Duration) *Store {
	s := &Store{
		entries:         make(map[string]*entry),
		janitorInterval: janitorInterval,
		janitorStop:     make(chan struct{}),
		janitorDone:     make(chan struct{}),
	}

	if janitorInterval > 0 {
		go s.janitor()
	} else {
		close(s.janitorDone)
	}

	return s
}

// janitor runs background expiration cleanup
func (s *Store) janitor() {
	defer close(s.janitorDone)
	ticker := time.NewTicker(s.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.janitorStop:
			return
		}
	}
}

// evictExpired removes all expired keys. Reads already ignore them, so this
// only reclaims memory.
func (s *Store) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
		}
	}
}

// live returns the non-expired entry for key, purging it when expired (must hold lock)
func (s *Store) live(key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if e.expired(time.Now()) {
		delete(s.entries, key)
		return nil
	}
	return e
}

// liveOf returns the live entry only when it holds kind (must hold lock)
func (s *Store) liveOf(key string, kind kv.Kind) *entry {
	e := s.live(key)
	if e == nil || e.kind != kind {
		return nil
	}
	return e
}

// ensure returns the entry for key, creating it with kind when absent.
// A live entry of another kind is a type conflict (must hold lock).
func (s *Store) ensure(key string, kind kv.Kind) (*entry, bool, error) {
	if e := s.live(key); e != nil {
		if e.kind != kind {
			return nil, false, &kv.TypeConflictError{Key: key, Want: kind, Have: e.kind}
		}
		return e, false, nil
	}

	e := &entry{kind: kind}
	switch kind {
	case kv.KindHash:
		e.hash = make(map[string]string)
	case kv.KindSet:
		e.set = make(map[string]struct{})
	case kv.KindSortedSet:
		e.zset = make(map[string]float64)
	}
	s.entries[key] = e
	return e, true, nil
}

// dropIfEmpty deletes the directory entry of an emptied collection (must hold lock)
func (s *Store) dropIfEmpty(key string, e *entry) {
	if e.empty() {
		delete(s.entries, key)
	}
}

// parseNumber reads a stored payload the way a NUMERIC cast would.
func parseNumber(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", kv.ErrNotNumber, raw)
	}
	return d, nil
}

// Key operations

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.live(key) != nil, nil
}

func (s *Store) ExistsMany(ctx context.Context, keys []string) ([]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]bool, len(keys))
	for i, key := range keys {
		result[i] = s.live(key) != nil
	}
	return result, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

func (s *Store) Rename(ctx context.Context, oldKey, newKey string) error {
	if err := kv.CheckKey(oldKey); err != nil {
		return err
	}
	if err := kv.CheckKey(newKey); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(oldKey)
	if e == nil || oldKey == newKey {
		return nil
	}
	delete(s.entries, oldKey)
	s.entries[newKey] = e
	return nil
}

func (s *Store) Type(ctx context.Context, key string) (kv.Kind, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		return "", false, nil
	}
	return e.kind, true, nil
}

// Expiration

// expireAt is the single expiry primitive behind the four public variants
func (s *Store) expireAt(key string, at time.Time) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.live(key); e != nil {
		e.expiresAt = at
	}
	return nil
}

func (s *Store) Expire(ctx context.Context, key string, seconds int64) error {
	return s.expireAt(key, kv.SecondsFromNow(seconds))
}

func (s *Store) ExpireAt(ctx context.Context, key string, unixSeconds int64) error {
	return s.expireAt(key, kv.FromUnixSeconds(unixSeconds))
}

func (s *Store) PExpire(ctx context.Context, key string, ms int64) error {
	return s.expireAt(key, kv.MillisFromNow(ms))
}

func (s *Store) PExpireAt(ctx context.Context, key string, unixMs int64) error {
	return s.expireAt(key, kv.FromUnixMillis(unixMs))
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		return 0, false, nil
	}
	return kv.Remaining(e.expiresAt), true, nil
}

func (s *Store) Persist(ctx context.Context, key string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.live(key); e != nil {
		e.expiresAt = time.Time{}
	}
	return nil
}

// String operations

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := kv.CheckKey(key); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.liveOf(key, kv.KindString)
	if e == nil {
		return "", false, nil
	}
	return e.str, true, nil
}

// Set keeps an existing expiry, the same way the relational backend does.
func (s *Store) Set(ctx context.Context, key string, value string) error {
	if err := kv.CheckKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, _, err := s.ensure(key, kv.KindString)
	if err != nil {
		return err
	}
	e.str = value
	return nil
}

func (s *Store) Increment(ctx context.Context, key string) (float64, error) {
	return s.IncrBy(ctx, key, 1)
}

func (s *Store) IncrBy(ctx context.Context, key string, delta int64) (float64, error) {
	if err := kv.CheckKey(key); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, created, err := s.ensure(key, kv.KindString)
	if err != nil {
		return 0, err
	}

	current := decimal.Zero
	if !created {
		current, err = parseNumber(e.str)
		if err != nil {
			return 0, err
		}
	}

	next := current.Add(decimal.NewFromInt(delta))
	e.str = next.String()
	f, _ := next.Float64()
	return f, nil
}

// Administrative

func (s *Store) FlushAll(ctx context.Context) error {
	return s.EmptyAll(ctx)
}

func (s *Store) EmptyAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*entry)
	return nil
}

// Ping always returns nil for the in-memory store (always available)
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close stops the background janitor and cleans up resources
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.janitorStop)
	})
	<-s.janitorDone

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*entry)
	return nil
}
