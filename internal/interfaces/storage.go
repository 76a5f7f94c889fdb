package interfaces

import (
	"context"
	"time"
)

// CacheBackend is the optional persistent tier of the result cache.
// Implementations must be safe for concurrent use.
type CacheBackend interface {
	// Name identifies the backend in stats and logs
	Name() string

	// Get returns the stored bytes; found is false for a miss or an expired key
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// SetWithExpiry stores the bytes for ttl
	SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// KeysMatching returns live keys matching a glob pattern (* wildcard)
	KeysMatching(ctx context.Context, pattern string) ([]string, error)

	// Delete removes the keys; missing keys are ignored
	Delete(ctx context.Context, keys ...string) error

	// Ping checks reachability
	Ping(ctx context.Context) error

	// Close releases the connection
	Close() error
}
