package oauth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"

	"github.com/jeremyhahn/go-identity/pkg/cache"
)

// keySet pairs the provider's raw JWKS document with the key lookup
// built from it. Only the raw document is written to the shared store.
type keySet struct {
	raw     json.RawMessage
	keyfunc keyfunc.Keyfunc
}

func newKeySet(raw json.RawMessage) (*keySet, error) {
	kf, err := keyfunc.NewJWKSetJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("oauth: parse jwks: %w", err)
	}
	return &keySet{raw: raw, keyfunc: kf}, nil
}

var keySetCodec = cache.Codec[*keySet]{
	Encode: func(ks *keySet) (string, error) {
		return string(ks.raw), nil
	},
	Decode: func(s string) (*keySet, error) {
		return newKeySet(json.RawMessage(s))
	},
}

// JWKSCacheKey returns the shared-store key of an issuer's key set.
func JWKSCacheKey(issuer string) string {
	return "jwks." + issuer
}

func newKeyResolver(cfg *Config, idp IdentityProvider) *cache.Resolver[*keySet] {
	codec := keySetCodec
	return cache.NewResolver(cache.ResolverConfig[*keySet]{
		Store: cfg.Cache.Store,
		Key:   JWKSCacheKey(cfg.Validation.Issuer),
		Generate: func(ctx context.Context) (*keySet, error) {
			raw, err := idp.FetchJWKS(ctx)
			if err != nil {
				return nil, err
			}
			ks, err := newKeySet(raw)
			if err != nil {
				// An unusable key set is the provider's fault, not the token's.
				return nil, &ProviderError{Op: "fetch_jwks", Description: "unusable key set", Err: err}
			}
			return ks, nil
		},
		Codec:   &codec,
		TTL:     cfg.Cache.TTL,
		Metrics: cfg.Cache.Metrics,
		Logger:  cfg.Logger,
	})
}
