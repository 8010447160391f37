package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryBackend implements Backend using ttlcache. It is meant for single
// instance deployments and tests.
type MemoryBackend struct {
	cache     *ttlcache.Cache[string, []byte]
	closeOnce sync.Once
}

// NewMemoryBackend creates an in-memory backend with automatic cleanup of
// expired entries.
func NewMemoryBackend() *MemoryBackend {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []byte](ttlcache.NoTTL),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)

	// Start the cleanup process
	go cache.Start()

	return &MemoryBackend{
		cache: cache,
	}
}

// Get implements Backend.Get.
func (s *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	item := s.cache.Get(key)
	if item == nil || item.IsExpired() {
		return nil, ErrNotFound
	}

	return cloneBytes(item.Value()), nil
}

// Set implements Backend.Set.
func (s *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= NoTTL {
		ttl = ttlcache.NoTTL
	}

	s.cache.Set(key, cloneBytes(value), ttl)

	return nil
}

// Delete implements Backend.Delete.
func (s *MemoryBackend) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)

	return nil
}

// Take implements Backend.Take.
func (s *MemoryBackend) Take(_ context.Context, key string) ([]byte, error) {
	item, present := s.cache.GetAndDelete(key)
	if !present || item == nil || item.IsExpired() {
		return nil, ErrNotFound
	}

	return item.Value(), nil
}

// Keys implements Backend.Keys.
func (s *MemoryBackend) Keys(_ context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	for key, item := range s.cache.Items() {
		if item.IsExpired() || !strings.HasPrefix(key, prefix) {
			continue
		}
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys, nil
}

// Close stops the cleanup goroutine. The backend stays usable.
func (s *MemoryBackend) Close() error {
	s.closeOnce.Do(s.cache.Stop)

	return nil
}

func cloneBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}
