package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Backend when a key is absent or expired.
var ErrNotFound = errors.New("key not found")

// NoTTL stores a value without expiry.
const NoTTL time.Duration = 0

// Backend is a byte-oriented key/value store with per-entry expiry.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A ttl of NoTTL means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Take returns and removes the value under key in one step, or ErrNotFound.
	Take(ctx context.Context, key string) ([]byte, error)
	// Keys returns the live keys starting with prefix in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Close releases the backend's resources.
	Close() error
}

// Pinger is implemented by backends that sit behind a connection and can
// report whether it is usable.
type Pinger interface {
	Ping(ctx context.Context) error
}
