package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jeremyhahn/go-identity/pkg/cache"
)

// tokenValidator verifies bearer tokens against the provider's key set,
// which is resolved through the two-tier cache keyed by issuer.
type tokenValidator struct {
	config *Config
	keys   *cache.Resolver[*keySet]

	mu          sync.Mutex
	lastRefresh time.Time
}

func newTokenValidator(config *Config, idp IdentityProvider) *tokenValidator {
	return &tokenValidator{
		config: config,
		keys:   newKeyResolver(config, idp),
	}
}

// validate checks signature, expiry, issuer, audience and required claims.
// Failures to obtain the key set are returned as provider errors; every
// other failure matches ErrTokenValidation.
func (v *tokenValidator) validate(ctx context.Context, raw string) (ClaimSet, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrMissingToken
	}

	keys, err := v.keys.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	claims, err := v.parse(raw, keys)
	if errors.Is(err, jwt.ErrTokenUnverifiable) && v.allowKeyRefresh() {
		// The signing key may have been rotated since the set was cached.
		v.config.Logger.Debug().Err(err).Msg("refetching jwks after unverifiable token")
		if flushErr := v.keys.Flush(ctx); flushErr != nil {
			v.config.Logger.Warn().Err(flushErr).Msg("jwks cache flush failed")
		}
		if keys, err = v.keys.Resolve(ctx); err != nil {
			return nil, err
		}
		claims, err = v.parse(raw, keys)
	}
	if err != nil {
		return nil, err
	}

	if err := v.validateRequiredClaims(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (v *tokenValidator) parse(raw string, keys *keySet) (ClaimSet, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.config.Validation.Algorithms),
		jwt.WithLeeway(v.config.Validation.ClockSkew),
		jwt.WithTimeFunc(v.config.Clock.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(v.config.Validation.Issuer),
	}
	if v.config.Validation.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Validation.Audience))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, keys.keyfunc.Keyfunc, opts...)
	switch {
	case err == nil:
		return ClaimSet(claims), nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, fmt.Errorf("%w: %w", ErrTokenValidation, err)
	case errors.Is(err, jwt.ErrTokenInvalidClaims):
		return nil, fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	default:
		return nil, fmt.Errorf("%w: %v", ErrTokenValidation, err)
	}
}

// allowKeyRefresh rate-limits forced key set refetches.
func (v *tokenValidator) allowKeyRefresh() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.config.Clock.Now()
	if !v.lastRefresh.IsZero() && now.Sub(v.lastRefresh) < MinKeyRotationInterval {
		return false
	}
	v.lastRefresh = now
	return true
}

func (v *tokenValidator) validateRequiredClaims(claims ClaimSet) error {
	for _, name := range v.config.Validation.RequiredClaims {
		if _, ok := claims.Get(name); !ok {
			return fmt.Errorf("%w: missing required claim %q", ErrInvalidClaims, name)
		}
	}
	return nil
}
