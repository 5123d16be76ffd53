package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Generator produces a fresh value on a cache miss. It usually performs
// network I/O against the identity provider.
type Generator[T any] func(ctx context.Context) (T, error)

// Codec converts values to and from their cached string form.
type Codec[T any] struct {
	Encode func(T) (string, error)
	Decode func(string) (T, error)
}

// JSONCodec returns a Codec that stores values as JSON.
func JSONCodec[T any]() Codec[T] {
	return Codec[T]{
		Encode: func(v T) (string, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
		Decode: func(s string) (T, error) {
			var v T
			err := json.Unmarshal([]byte(s), &v)
			return v, err
		},
	}
}

// Remember returns the value cached under key, or generates, stores and
// returns a fresh one. A value that fails to decode is treated as a miss.
// A ttl of zero returns the generated value without persisting it.
//
// No lock is taken: concurrent misses may all call generate, and the last
// write wins.
func Remember[T any](ctx context.Context, store Store, key string, generate Generator[T], codec Codec[T], ttl time.Duration) (T, error) {
	v, _, err := remember(ctx, store, key, generate, codec, ttl, nil)
	return v, err
}

// remember is Remember reporting whether the shared store hit. A non-nil
// persist is consulted around the store write; false means the value was
// invalidated while generating and must not be left in the store.
func remember[T any](ctx context.Context, store Store, key string, generate Generator[T], codec Codec[T], ttl time.Duration, persist func() bool) (T, bool, error) {
	logger := zerolog.Ctx(ctx).With().Str("cache_key", key).Logger()

	raw, ok, err := store.Get(ctx, key)
	switch {
	case err != nil:
		logger.Warn().Err(err).Msg("cache read failed, regenerating")
	case ok:
		v, decodeErr := codec.Decode(raw)
		if decodeErr == nil {
			logger.Debug().Msg("cache hit")
			return v, true, nil
		}
		logger.Debug().Err(decodeErr).Msg("discarding undecodable cache entry")
	}

	v, err := generate(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}

	if ttl == 0 {
		return v, false, nil
	}
	if persist != nil && !persist() {
		logger.Debug().Msg("flushed during generation, value not persisted")
		return v, false, nil
	}

	encoded, err := codec.Encode(v)
	if err != nil {
		logger.Warn().Err(err).Msg("cache encode failed, value not persisted")
		return v, false, nil
	}
	if err := store.Set(ctx, key, encoded, ttl); err != nil {
		logger.Warn().Err(err).Msg("cache write failed")
		return v, false, nil
	}
	// Invalidated between the check above and the write.
	if persist != nil && !persist() {
		if err := store.Delete(ctx, key); err != nil {
			logger.Warn().Err(err).Msg("cache delete of superseded value failed")
		}
	}
	return v, false, nil
}
