package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ResolverConfig configures a Resolver.
type ResolverConfig[T any] struct {
	// Store is the shared tier.
	Store Store

	// Key is the shared-store key, e.g. "keycloak.groups".
	Key string

	// Generate fetches a fresh value on a miss in both tiers.
	Generate Generator[T]

	// Codec defaults to JSONCodec.
	Codec *Codec[T]

	// TTL bounds the shared-store entry. Zero disables persistence.
	TTL time.Duration

	// Metrics is optional.
	Metrics *Metrics

	// Logger overrides the logger carried by the request context.
	Logger *zerolog.Logger
}

// Resolver layers a process-local single-slot cache above Remember.
// Once a value has been resolved it is returned without touching the
// shared store until Flush is called.
//
// Resolver is safe for concurrent use. Concurrent misses within one
// process are collapsed into a single generation; across processes no
// coordination happens.
type Resolver[T any] struct {
	cfg   ResolverConfig[T]
	codec Codec[T]

	mu       sync.RWMutex
	value    T
	resolved bool
	// flushes counts Flush calls. A generation started before a Flush
	// must not repopulate either tier.
	flushes uint64

	group singleflight.Group
}

// NewResolver creates a Resolver.
func NewResolver[T any](cfg ResolverConfig[T]) *Resolver[T] {
	codec := JSONCodec[T]()
	if cfg.Codec != nil {
		codec = *cfg.Codec
	}
	return &Resolver[T]{cfg: cfg, codec: codec}
}

// Key returns the shared-store key.
func (r *Resolver[T]) Key() string {
	return r.cfg.Key
}

// Resolve returns the process-local value, falling back to the shared
// store and finally to the generator.
func (r *Resolver[T]) Resolve(ctx context.Context) (T, error) {
	if v, ok := r.local(); ok {
		r.cfg.Metrics.observe(r.cfg.Key, tierLocal)
		return v, nil
	}

	result, err, _ := r.group.Do(r.cfg.Key, func() (any, error) {
		r.mu.RLock()
		v, ok, epoch := r.value, r.resolved, r.flushes
		r.mu.RUnlock()
		if ok {
			return v, nil
		}
		current := func() bool {
			r.mu.RLock()
			defer r.mu.RUnlock()
			return r.flushes == epoch
		}

		if r.cfg.Logger != nil {
			ctx = r.cfg.Logger.WithContext(ctx)
		}
		v, hit, err := remember(ctx, r.cfg.Store, r.cfg.Key, r.cfg.Generate, r.codec, r.cfg.TTL, current)
		if err != nil {
			r.cfg.Metrics.generateFailed(r.cfg.Key)
			return nil, err
		}
		if hit {
			r.cfg.Metrics.observe(r.cfg.Key, tierStore)
		} else {
			r.cfg.Metrics.observe(r.cfg.Key, tierMiss)
		}

		r.mu.Lock()
		if r.flushes == epoch {
			r.value = v
			r.resolved = true
		}
		r.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// Flush empties the process-local slot and deletes the shared entry so
// the next Resolve regenerates the value. A generation still in flight
// when Flush runs returns to its callers but is not cached.
func (r *Resolver[T]) Flush(ctx context.Context) error {
	r.mu.Lock()
	var zero T
	r.value = zero
	r.resolved = false
	r.flushes++
	r.mu.Unlock()

	r.group.Forget(r.cfg.Key)
	return r.cfg.Store.Delete(ctx, r.cfg.Key)
}

func (r *Resolver[T]) local() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.value, r.resolved
}
