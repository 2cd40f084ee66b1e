package cache

import (
	"context"
	"time"
)

// CacheLayer is one tier of the transaction read cache (process memory, Redis, ...).
// Values are transaction results; remote layers may hand them back as raw JSON.
type CacheLayer interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (interface{}, error)

	// Set stores value under key for ttl. A zero ttl means the layer default.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Name identifies the layer in logs and metrics.
	Name() string

	// Close releases connections and background goroutines.
	Close() error
}
