package oauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/clock"

	"github.com/jeremyhahn/go-identity/pkg/cache"
)

func TestConfig_Validate(t *testing.T) {
	noJWKS, err := CustomProvider(ProviderConfig{ProviderName: "x", TokenEndpoint: "https://x/token", IssuerURL: "https://x"})
	require.NoError(t, err)
	noAuth, err := CustomProvider(ProviderConfig{ProviderName: "x", TokenEndpoint: "https://x/token", JWKSEndpoint: "https://x/certs", IssuerURL: "https://x"})
	require.NoError(t, err)
	noIssuer, err := CustomProvider(ProviderConfig{ProviderName: "x", TokenEndpoint: "https://x/token", JWKSEndpoint: "https://x/certs"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "nil config",
			config:  nil,
			wantErr: true,
		},
		{
			name:    "missing provider",
			config:  &Config{ClientID: "web"},
			wantErr: true,
		},
		{
			name:    "missing client id",
			config:  &Config{Provider: Keycloak("https://kc.test", "master")},
			wantErr: true,
		},
		{
			name:    "missing jwks url",
			config:  &Config{Provider: noJWKS, ClientID: "web"},
			wantErr: true,
		},
		{
			name:    "browser login without auth url",
			config:  &Config{Provider: noAuth, ClientID: "web", RedirectURL: "https://app/cb"},
			wantErr: true,
		},
		{
			name:    "bearer only without auth url",
			config:  &Config{Provider: noAuth, ClientID: "web"},
			wantErr: false,
		},
		{
			name:    "missing issuer",
			config:  &Config{Provider: noIssuer, ClientID: "web"},
			wantErr: true,
		},
		{
			name:    "issuer override",
			config:  &Config{Provider: noIssuer, ClientID: "web", Validation: TokenValidationConfig{Issuer: "https://x"}},
			wantErr: false,
		},
		{
			name:    "keycloak",
			config:  &Config{Provider: Keycloak("https://kc.test", "master"), ClientID: "web", RedirectURL: "https://app/cb"},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfiguration)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_ValidateDefaults(t *testing.T) {
	cfg := &Config{
		Provider: Keycloak("https://kc.test", "master"),
		ClientID: "web",
		Scopes:   []string{"profile"},
	}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"openid", "profile"}, cfg.Scopes)
	assert.Equal(t, "https://kc.test/realms/master", cfg.Validation.Issuer)
	assert.Equal(t, DefaultClockSkew, cfg.Validation.ClockSkew)
	assert.Equal(t, DefaultAlgorithms, cfg.Validation.Algorithms)
	assert.Equal(t, DefaultRefreshSkew, cfg.RefreshSkew)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, cache.DefaultTTL, cfg.Cache.TTL)
	assert.Equal(t, DefaultKeyPrefix, cfg.Cache.KeyPrefix)
	assert.IsType(t, clock.RealClock{}, cfg.Clock)
	require.NotNil(t, cfg.Logger)
	assert.False(t, cfg.RequiresBrowserLogin())

	// Validate is idempotent.
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"openid", "profile"}, cfg.Scopes)
}

func TestConfig_ValidateCacheTTL(t *testing.T) {
	cfg := &Config{
		Provider: Keycloak("https://kc.test", "master"),
		ClientID: "web",
		Cache:    CacheConfig{TTL: -1},
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Duration(0), cfg.Cache.TTL, "a negative ttl disables persistence")

	cfg.Cache.TTL = time.Minute
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
}
