// Package remote adapts a distributed key/value backend into a cache
// handler. The handler owns key naming, value encoding and hit/miss
// accounting; the Backend interface covers only the raw byte-level
// operations a redis-style engine provides.
package remote

import (
	"context"
	"time"
)

// Backend is the raw distributed store. found=false is an ordinary
// miss, never an error; errors mean the backend itself misbehaved.
type Backend interface {
	Get(ctx context.Context, key string) (raw []byte, found bool, err error)
	Set(ctx context.Context, key string, raw []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// Incr and Decr adjust an integer key atomically, creating it at
	// zero when absent, and return the new value.
	Incr(ctx context.Context, key string, delta int64) (int64, error)
	Decr(ctx context.Context, key string, delta int64) (int64, error)

	// AddIfAbsent stores the value only when the key does not exist yet
	// and reports whether it was stored.
	AddIfAbsent(ctx context.Context, key string, raw []byte, ttl time.Duration) (bool, error)

	// Touch resets the TTL of an existing key; false when absent.
	Touch(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Keys lists keys matching the given glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)

	FlushAll(ctx context.Context) error
	Close() error
}
