package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const memoryStripes = 64

// MemoryStore keeps entries in process memory.
// Counters are not shared between instances; use RedisStore for that.
type MemoryStore struct {
	cache *ttlcache.Cache[string, Entry]

	// stripes serialize updates per key without a store-wide lock.
	stripes [memoryStripes]sync.Mutex
}

// NewMemoryStore creates an in-memory store. Each entry expires on its own
// once both its window and its lock have elapsed.
func NewMemoryStore() *MemoryStore {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, Entry](),
	)

	go cache.Start()

	return &MemoryStore{cache: cache}
}

func (s *MemoryStore) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.stripes[h.Sum32()%memoryStripes]
}

func (s *MemoryStore) get(key string) *Entry {
	item := s.cache.Get(key)
	if item == nil {
		return nil
	}

	entry := item.Value()
	return &entry
}

func (s *MemoryStore) put(key string, entry *Entry, now time.Time) {
	if entry == nil {
		s.cache.Delete(key)
		return
	}

	ttl := entry.ttl(now)
	if ttl <= 0 {
		s.cache.Delete(key)
		return
	}
	s.cache.Set(key, *entry, ttl)
}

// Get implements Store.Get.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	return s.get(key), nil
}

// Update implements Store.Update.
func (s *MemoryStore) Update(_ context.Context, key string, now time.Time, fn UpdateFunc) error {
	mu := s.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	s.put(key, fn(s.get(key)), now)
	return nil
}

// Set stores entry under key, replacing what was there.
func (s *MemoryStore) Set(_ context.Context, key string, entry *Entry, now time.Time) error {
	mu := s.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	s.put(key, entry, now)
	return nil
}

// Delete implements Store.Delete.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	mu := s.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	s.cache.Delete(key)
	return nil
}

// Sweep implements Sweeper.Sweep.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.cache.DeleteExpired()

	removed := 0
	for _, key := range s.cache.Keys() {
		mu := s.stripe(key)
		mu.Lock()
		if entry := s.get(key); entry != nil && entry.StaleAt(now) {
			s.cache.Delete(key)
			removed++
		}
		mu.Unlock()
	}
	return removed, nil
}

// Len implements Sweeper.Len.
func (s *MemoryStore) Len(_ context.Context) int {
	return s.cache.Len()
}

// Close stops the expiry goroutine.
func (s *MemoryStore) Close() error {
	s.cache.Stop()
	return nil
}
