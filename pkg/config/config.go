// Package config loads go-identity settings from a file and the
// environment and assembles the authenticator, cache and session stack.
//
// Every key can be overridden from the environment with the GO_IDENTITY_
// prefix, nested keys joined by underscores:
//
//	GO_IDENTITY_CLIENT_SECRET=...
//	GO_IDENTITY_CACHE_REDIS_ADDRS=redis-0:6379,redis-1:6379
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-identity/pkg/cache"
	"github.com/jeremyhahn/go-identity/pkg/oauth"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "GO_IDENTITY"

// Backend names.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ErrInvalidSettings indicates the loaded settings are inconsistent.
var ErrInvalidSettings = errors.New("config: invalid settings")

// Settings is the file and environment representation of the stack.
type Settings struct {
	Provider ProviderSettings `mapstructure:"provider"`

	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	Scopes       []string `mapstructure:"scopes"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	DisablePKCE  bool     `mapstructure:"disable_pkce"`

	Audience       string        `mapstructure:"audience"`
	RequiredClaims []string      `mapstructure:"required_claims"`
	ClockSkew      time.Duration `mapstructure:"clock_skew"`
	RefreshSkew    time.Duration `mapstructure:"refresh_skew"`

	Timeout            time.Duration `mapstructure:"timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`

	Cache   CacheSettings   `mapstructure:"cache"`
	Session SessionSettings `mapstructure:"session"`
	Log     LogSettings     `mapstructure:"log"`
}

// ProviderSettings selects a provider preset or custom endpoints.
type ProviderSettings struct {
	// Type is keycloak, okta, auth0 or custom.
	Type string `mapstructure:"type"`

	BaseURL string `mapstructure:"base_url"`
	Realm   string `mapstructure:"realm"`
	Domain  string `mapstructure:"domain"`

	// Custom endpoints.
	Name          string `mapstructure:"name"`
	AuthURL       string `mapstructure:"auth_url"`
	TokenURL      string `mapstructure:"token_url"`
	JWKSURL       string `mapstructure:"jwks_url"`
	Issuer        string `mapstructure:"issuer"`
	UserInfoURL   string `mapstructure:"userinfo_url"`
	EndSessionURL string `mapstructure:"end_session_url"`
	RevocationURL string `mapstructure:"revocation_url"`
	AdminURL      string `mapstructure:"admin_url"`
}

// RedisSettings configures a Redis connection.
type RedisSettings struct {
	Addrs      []string `mapstructure:"addrs"`
	MasterName string   `mapstructure:"master_name"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	DB         int      `mapstructure:"db"`
	KeyPrefix  string   `mapstructure:"key_prefix"`
}

// CacheSettings configures the shared cache.
type CacheSettings struct {
	Backend    string        `mapstructure:"backend"`
	TTL        time.Duration `mapstructure:"ttl"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
	MaxEntries int           `mapstructure:"max_entries"`
	Redis      RedisSettings `mapstructure:"redis"`
}

// SessionSettings configures browser sessions.
type SessionSettings struct {
	Backend    string        `mapstructure:"backend"`
	CookieName string        `mapstructure:"cookie_name"`
	MaxAge     time.Duration `mapstructure:"max_age"`
	IdleTTL    time.Duration `mapstructure:"idle_ttl"`
	Enforce    bool          `mapstructure:"enforce"`
	Redis      RedisSettings `mapstructure:"redis"`
}

// LogSettings configures the zerolog logger.
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.type", "keycloak")
	for _, key := range []string{
		"provider.base_url", "provider.realm", "provider.domain", "provider.name",
		"provider.auth_url", "provider.token_url", "provider.jwks_url", "provider.issuer",
		"provider.userinfo_url", "provider.end_session_url", "provider.revocation_url", "provider.admin_url",
		"client_id", "client_secret", "redirect_url", "audience",
		"cache.redis.master_name", "cache.redis.username", "cache.redis.password", "cache.redis.key_prefix",
		"session.redis.master_name", "session.redis.username", "session.redis.password",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("scopes", []string{"openid", "profile", "email"})
	v.SetDefault("required_claims", []string{})
	v.SetDefault("disable_pkce", false)
	v.SetDefault("clock_skew", oauth.DefaultClockSkew)
	v.SetDefault("refresh_skew", oauth.DefaultRefreshSkew)
	v.SetDefault("timeout", oauth.DefaultTimeout)
	v.SetDefault("max_retries", oauth.DefaultMaxRetries)
	v.SetDefault("insecure_skip_verify", false)

	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.ttl", cache.DefaultTTL)
	v.SetDefault("cache.key_prefix", oauth.DefaultKeyPrefix)
	v.SetDefault("cache.max_entries", 1024)
	v.SetDefault("cache.redis.addrs", []string{})
	v.SetDefault("cache.redis.db", 0)

	v.SetDefault("session.backend", BackendMemory)
	v.SetDefault("session.cookie_name", "go_identity_session")
	v.SetDefault("session.max_age", time.Duration(0))
	v.SetDefault("session.idle_ttl", 8*time.Hour)
	v.SetDefault("session.enforce", false)
	v.SetDefault("session.redis.addrs", []string{})
	v.SetDefault("session.redis.db", 0)
	v.SetDefault("session.redis.key_prefix", "go-identity:")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads settings from path (YAML, TOML or JSON by extension) and
// the environment. An empty path reads the environment only.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("config: decoding settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks backend names and the settings each backend needs.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.ClientID) == "" {
		return fmt.Errorf("%w: client_id is required", ErrInvalidSettings)
	}
	backends := []struct {
		name  string
		kind  string
		redis RedisSettings
	}{
		{"cache", s.Cache.Backend, s.Cache.Redis},
		{"session", s.Session.Backend, s.Session.Redis},
	}
	for _, b := range backends {
		switch b.kind {
		case BackendMemory:
		case BackendRedis:
			if len(b.redis.Addrs) == 0 {
				return fmt.Errorf("%w: %s.redis.addrs is required", ErrInvalidSettings, b.name)
			}
		default:
			return fmt.Errorf("%w: unknown %s backend %q", ErrInvalidSettings, b.name, b.kind)
		}
	}
	return nil
}

// OAuthProvider builds the configured provider.
func (s *Settings) OAuthProvider() (oauth.Provider, error) {
	p := s.Provider
	switch strings.ToLower(p.Type) {
	case "keycloak":
		if p.BaseURL == "" || p.Realm == "" {
			return nil, fmt.Errorf("%w: keycloak requires provider.base_url and provider.realm", ErrInvalidSettings)
		}
		return oauth.Keycloak(p.BaseURL, p.Realm), nil
	case "okta":
		if p.Domain == "" {
			return nil, fmt.Errorf("%w: okta requires provider.domain", ErrInvalidSettings)
		}
		return oauth.Okta(p.Domain), nil
	case "auth0":
		if p.Domain == "" {
			return nil, fmt.Errorf("%w: auth0 requires provider.domain", ErrInvalidSettings)
		}
		return oauth.Auth0(p.Domain), nil
	case "custom":
		name := p.Name
		if name == "" {
			name = "custom"
		}
		return oauth.CustomProvider(oauth.ProviderConfig{
			ProviderName:       name,
			AuthEndpoint:       p.AuthURL,
			TokenEndpoint:      p.TokenURL,
			JWKSEndpoint:       p.JWKSURL,
			IssuerURL:          p.Issuer,
			UserInfoEndpoint:   p.UserInfoURL,
			EndSessionEndpoint: p.EndSessionURL,
			RevocationEndpoint: p.RevocationURL,
			AdminEndpoint:      p.AdminURL,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider type %q", ErrInvalidSettings, p.Type)
	}
}

// OAuthConfig builds the authenticator configuration around store.
func (s *Settings) OAuthConfig(store cache.Store, metrics *cache.Metrics, logger *zerolog.Logger) (*oauth.Config, error) {
	provider, err := s.OAuthProvider()
	if err != nil {
		return nil, err
	}

	ttl := s.Cache.TTL
	if ttl == 0 {
		// oauth.Config spells "do not persist" as a negative TTL.
		ttl = -1
	}

	cfg := &oauth.Config{
		Provider:     provider,
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		Scopes:       s.Scopes,
		RedirectURL:  s.RedirectURL,
		DisablePKCE:  s.DisablePKCE,
		RefreshSkew:  s.RefreshSkew,
		Validation: oauth.TokenValidationConfig{
			Audience:       s.Audience,
			ClockSkew:      s.ClockSkew,
			RequiredClaims: s.RequiredClaims,
		},
		Cache: oauth.CacheConfig{
			Store:     store,
			TTL:       ttl,
			KeyPrefix: s.Cache.KeyPrefix,
			Metrics:   metrics,
		},
		Timeout:            s.Timeout,
		MaxRetries:         s.MaxRetries,
		InsecureSkipVerify: s.InsecureSkipVerify,
		Logger:             logger,
	}
	return cfg, cfg.Validate()
}

// Logger builds the zerolog logger. A nil w writes to stderr.
func (s *Settings) Logger(w io.Writer) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	level, err := zerolog.ParseLevel(s.Log.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("%w: log.level: %w", ErrInvalidSettings, err)
	}
	if s.Log.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("service", "go-identity").Logger(), nil
}
