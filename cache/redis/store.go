package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Sakib25800/framer-salesforce-api/cache"
	goredis "github.com/redis/go-redis/v9"
)

const scanBatchSize = 100

// Backend implements cache.Backend using Redis.
type Backend struct {
	client goredis.UniversalClient
	prefix string // Optional prefix for keys
}

var (
	_ cache.Backend = (*Backend)(nil)
	_ cache.Pinger  = (*Backend)(nil)
)

// NewBackend creates a new [Backend] on top of an existing client.
func NewBackend(client goredis.UniversalClient, prefix string) *Backend {
	return &Backend{
		client: client,
		prefix: prefix,
	}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr, password string, db int, prefix string) (*Backend, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return NewBackend(client, prefix), nil
}

// redisKey returns the Redis key for a store key
func (r *Backend) redisKey(key string) string {
	if r.prefix == "" {
		return key
	}

	return r.prefix + ":" + key
}

// Get implements cache.Backend.Get.
func (r *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key from Redis: %w", err)
	}

	return value, nil
}

// Set implements cache.Backend.Set. A zero ttl stores the key without expiry.
func (r *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}

	if err := r.client.Set(ctx, r.redisKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key in Redis: %w", err)
	}

	return nil
}

// Delete implements cache.Backend.Delete.
func (r *Backend) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete key from Redis: %w", err)
	}

	return nil
}

// Take implements cache.Backend.Take with GETDEL.
func (r *Backend) Take(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.GetDel(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take key from Redis: %w", err)
	}

	return value, nil
}

// Keys implements cache.Backend.Keys by scanning for the prefix.
func (r *Backend) Keys(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapePattern(r.redisKey(prefix)) + "*"
	trim := len(r.redisKey(""))

	seen := make(map[string]struct{})
	var cursor uint64

	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan Redis keys: %w", err)
		}

		for _, key := range keys {
			seen[key[trim:]] = struct{}{}
		}

		cursor = next
		if cursor == 0 {
			break // No more keys to scan
		}
	}

	result := make([]string, 0, len(seen))
	for key := range seen {
		result = append(result, key)
	}
	sort.Strings(result)

	return result, nil
}

// Ping checks the connection.
func (r *Backend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Backend) Close() error {
	return r.client.Close()
}

// escapePattern quotes the glob metacharacters understood by SCAN MATCH.
func escapePattern(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}

	return b.String()
}
