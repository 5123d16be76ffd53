package oauth

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/utils/clock"

	"github.com/jeremyhahn/go-identity/pkg/cache"
)

// Default values applied by Config.Validate.
const (
	DefaultClockSkew   = 60 * time.Second
	DefaultRefreshSkew = 30 * time.Second
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultKeyPrefix   = "keycloak."

	// MinKeyRotationInterval bounds how often an unknown key id may force
	// a JWKS refetch.
	MinKeyRotationInterval = time.Minute
)

// DefaultAlgorithms are the signing algorithms accepted for tokens.
var DefaultAlgorithms = []string{
	"RS256", "RS384", "RS512",
	"ES256", "ES384", "ES512",
	"PS256", "PS384", "PS512",
}

// TokenValidationConfig contains settings for token validation.
type TokenValidationConfig struct {
	// Issuer is the expected iss claim. Defaults to Provider.Issuer().
	Issuer string

	// Audience is the expected aud claim (optional).
	Audience string

	// ClockSkew allows for clock drift between systems.
	ClockSkew time.Duration

	// RequiredClaims names claims that must be present.
	RequiredClaims []string

	// Algorithms restricts accepted signing algorithms.
	Algorithms []string
}

// CacheConfig controls the shared cache used for JWKS and directory data.
type CacheConfig struct {
	// Store is the shared tier. Defaults to an in-memory store.
	Store cache.Store

	// TTL bounds shared entries. A negative TTL disables persistence,
	// which is mostly useful for test doubles.
	TTL time.Duration

	// KeyPrefix namespaces directory keys ("keycloak.groups", ...).
	KeyPrefix string

	// Metrics is optional.
	Metrics *cache.Metrics
}

// Config contains the complete authenticator configuration.
type Config struct {
	// Provider is the identity provider.
	Provider Provider

	// ClientID is the OAuth client identifier.
	ClientID string

	// ClientSecret is the OAuth client secret. Public clients leave it
	// empty and rely on PKCE.
	ClientSecret string

	// Scopes are the OAuth scopes to request. "openid" is always added.
	Scopes []string

	// RedirectURL is the callback URL of the browser login flow.
	RedirectURL string

	// DisablePKCE turns off the S256 code challenge.
	DisablePKCE bool

	// RefreshSkew refreshes session tokens this long before they expire.
	RefreshSkew time.Duration

	// Validation contains token validation settings.
	Validation TokenValidationConfig

	// Cache contains shared cache settings.
	Cache CacheConfig

	// Timeout is the HTTP client timeout for provider requests.
	Timeout time.Duration

	// MaxRetries bounds transport-level retries of transient failures.
	MaxRetries int

	// HTTPClient overrides the client built from Timeout and TLSConfig.
	HTTPClient *http.Client

	// TLSConfig allows custom TLS configuration.
	TLSConfig *tls.Config

	// InsecureSkipVerify disables TLS certificate verification (not recommended).
	InsecureSkipVerify bool

	// Clock is the time source. Defaults to the wall clock.
	Clock clock.PassiveClock

	// Logger defaults to a disabled logger.
	Logger *zerolog.Logger
}

// Validate checks the configuration and applies defaults.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfiguration)
	}

	if c.Provider == nil {
		return fmt.Errorf("%w: provider is required", ErrInvalidConfiguration)
	}

	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("%w: client_id is required", ErrInvalidConfiguration)
	}

	if c.Provider.TokenURL() == "" {
		return fmt.Errorf("%w: token_url is required", ErrInvalidConfiguration)
	}

	if c.Provider.JWKSURL() == "" {
		return fmt.Errorf("%w: jwks_url is required", ErrInvalidConfiguration)
	}

	if c.RedirectURL != "" && c.Provider.AuthURL() == "" {
		return fmt.Errorf("%w: auth_url required for browser login", ErrInvalidConfiguration)
	}

	if c.Validation.Issuer == "" {
		c.Validation.Issuer = c.Provider.Issuer()
	}
	if c.Validation.Issuer == "" {
		return fmt.Errorf("%w: issuer is required", ErrInvalidConfiguration)
	}

	if !slices.Contains(c.Scopes, "openid") {
		c.Scopes = append([]string{"openid"}, c.Scopes...)
	}

	if c.Validation.ClockSkew <= 0 {
		c.Validation.ClockSkew = DefaultClockSkew
	}
	if len(c.Validation.Algorithms) == 0 {
		c.Validation.Algorithms = DefaultAlgorithms
	}
	if c.RefreshSkew <= 0 {
		c.RefreshSkew = DefaultRefreshSkew
	}

	switch {
	case c.Cache.TTL == 0:
		c.Cache.TTL = cache.DefaultTTL
	case c.Cache.TTL < 0:
		c.Cache.TTL = 0
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = DefaultKeyPrefix
	}

	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}

	if c.Clock == nil {
		c.Clock = clock.RealClock{}
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}

	return nil
}

// RequiresBrowserLogin reports whether the configuration supports the
// stateful login flow.
func (c *Config) RequiresBrowserLogin() bool {
	return c.RedirectURL != ""
}
