package cache

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is applied by resolvers that are not given an explicit TTL.
const DefaultTTL = 10 * time.Minute

// ErrStoreClosed is returned by stores that have been closed.
var ErrStoreClosed = errors.New("cache: store closed")

// Store is a key/value store shared across requests and processes.
// Values are opaque UTF-8 strings so any backend can hold them uninterpreted.
type Store interface {
	// Get returns the value stored under key. ok is false on a miss
	// or when the entry has expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key for ttl. A ttl of zero suppresses
	// persistence entirely.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
