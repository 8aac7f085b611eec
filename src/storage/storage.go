package storage

import (
	"context"
	"time"
)

// KeyValueStore is the persistence surface the server depends on:
// JSON values under string keys with optional TTL. Implementations
// must be safe for concurrent use from multiple goroutines; the Redis
// implementation is additionally safe across processes.
type KeyValueStore interface {
	// Set writes value (JSON-encoded) under key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Get reads the value under key into out. The bool reports whether
	// the key existed (and was not expired).
	Get(ctx context.Context, key string, out any) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present and not expired.
	Exists(ctx context.Context, key string) (bool, error)
}
