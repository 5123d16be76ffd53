package oauth

import (
	"context"
	"fmt"

	"github.com/jeremyhahn/go-identity/pkg/cache"
	"github.com/jeremyhahn/go-identity/pkg/session"
)

const defaultMemoryStoreSize = 1024

// Authenticator holds the process-wide parts of authentication: the
// provider client, the token validator and the shared cache. It is safe
// for concurrent use and hands out request-scoped authenticators.
type Authenticator struct {
	config     *Config
	idp        IdentityProvider
	validator  *tokenValidator
	ownedStore *cache.MemoryStore
}

// Option customizes an Authenticator.
type Option func(*Authenticator)

// WithIdentityProvider replaces the HTTP provider client, typically with
// a test double.
func WithIdentityProvider(idp IdentityProvider) Option {
	return func(a *Authenticator) {
		a.idp = idp
	}
}

// NewAuthenticator creates a new Authenticator with the given configuration.
func NewAuthenticator(config *Config, opts ...Option) (*Authenticator, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrInvalidConfiguration)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	auth := &Authenticator{config: config}
	if config.Cache.Store == nil {
		auth.ownedStore = cache.NewMemoryStore(defaultMemoryStoreSize, cache.WithClock(config.Clock))
		config.Cache.Store = auth.ownedStore
	}

	for _, opt := range opts {
		opt(auth)
	}

	if auth.idp == nil {
		idp, err := NewProviderClient(config)
		if err != nil {
			auth.Close()
			return nil, err
		}
		auth.idp = idp
	}

	auth.validator = newTokenValidator(config, auth.idp)
	return auth, nil
}

// Config returns the validated configuration.
func (a *Authenticator) Config() *Config {
	return a.config
}

// IdentityProvider returns the provider client.
func (a *Authenticator) IdentityProvider() IdentityProvider {
	return a.idp
}

// CacheStore returns the shared cache store.
func (a *Authenticator) CacheStore() cache.Store {
	return a.config.Cache.Store
}

// Stateful returns a browser-flow authenticator bound to one session.
func (a *Authenticator) Stateful(store session.Store) (*StatefulAuthenticator, error) {
	if !a.config.RequiresBrowserLogin() {
		return nil, fmt.Errorf("%w: redirect_url is required for browser login", ErrInvalidConfiguration)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: session store is required", ErrInvalidConfiguration)
	}
	return newStatefulAuthenticator(a, store), nil
}

// Stateless returns a bearer-token authenticator for one request.
func (a *Authenticator) Stateless() *StatelessAuthenticator {
	return &StatelessAuthenticator{auth: a}
}

// ValidateToken verifies a bearer token and returns its claims.
func (a *Authenticator) ValidateToken(ctx context.Context, token string) (ClaimSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.validator.validate(ctx, token)
}

// FlushKeys drops the cached key set in both cache tiers.
func (a *Authenticator) FlushKeys(ctx context.Context) error {
	return a.validator.keys.Flush(ctx)
}

// Close releases the in-memory cache created when no store was configured.
func (a *Authenticator) Close() {
	if a.ownedStore != nil {
		a.ownedStore.Close()
	}
}
