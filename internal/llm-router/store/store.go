// Package store provides the counter abstraction shared by the rate limiter:
// atomic increment with expiry, read and set. RedisStore is the clustered
// implementation; MemoryStore only serializes within one process.
package store

import (
	"context"
	"sync"
	"time"
)

type CounterStore interface {
	// Incr atomically adds one to key, starting the ttl when the key is new.
	// It returns the new value and the time left before the key expires.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error)
	// Get returns 0 and no ttl for a missing key.
	Get(ctx context.Context, key string) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value int64, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type entry struct {
	value     int64
	expiresAt time.Time
}

type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// live returns the entry for key, dropping it when expired. Callers hold mu.
func (s *MemoryStore) live(key string, now time.Time) *entry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return e
}

func ttlOf(e *entry, now time.Time) time.Duration {
	if e == nil || e.expiresAt.IsZero() {
		return 0
	}
	return e.expiresAt.Sub(now)
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := s.live(key, now)
	if e == nil {
		e = &entry{}
		if ttl > 0 {
			e.expiresAt = now.Add(ttl)
		}
		s.entries[key] = e
	}
	e.value++
	return e.value, ttlOf(e, now), nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := s.live(key, now)
	if e == nil {
		return 0, 0, nil
	}
	return e.value, ttlOf(e, now), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Purge drops expired keys and reports how many were removed.
func (s *MemoryStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key := range s.entries {
		if s.live(key, now) == nil {
			removed++
		}
	}
	return removed
}
