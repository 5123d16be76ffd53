package oauth

import (
	"fmt"
	"strings"
)

// Provider describes the endpoints of an OpenID Connect provider.
type Provider interface {
	// Name returns the provider's identifier.
	Name() string

	// AuthURL returns the authorization endpoint URL.
	AuthURL() string

	// TokenURL returns the token endpoint URL.
	TokenURL() string

	// JWKSURL returns the JWKS endpoint URL for JWT validation.
	JWKSURL() string

	// Issuer returns the expected token issuer.
	Issuer() string

	// UserInfoURL returns the OIDC UserInfo endpoint URL (optional).
	UserInfoURL() string

	// EndSessionURL returns the RP-initiated logout endpoint (optional).
	EndSessionURL() string

	// RevocationURL returns the token revocation endpoint (optional).
	RevocationURL() string

	// AdminURL returns the base of the administrative REST API used to
	// list roles, groups and users, or "" if the provider has none.
	AdminURL() string
}

// ProviderConfig holds configuration for a custom provider.
type ProviderConfig struct {
	ProviderName       string
	AuthEndpoint       string
	TokenEndpoint      string
	JWKSEndpoint       string
	IssuerURL          string
	UserInfoEndpoint   string
	EndSessionEndpoint string
	RevocationEndpoint string
	AdminEndpoint      string
}

// customProvider implements Provider with user-supplied configuration.
type customProvider struct {
	config ProviderConfig
}

// CustomProvider creates a Provider from custom configuration.
func CustomProvider(cfg ProviderConfig) (Provider, error) {
	if strings.TrimSpace(cfg.ProviderName) == "" {
		return nil, fmt.Errorf("%w: provider name is required", ErrInvalidConfiguration)
	}
	if strings.TrimSpace(cfg.TokenEndpoint) == "" {
		return nil, fmt.Errorf("%w: token endpoint is required", ErrInvalidConfiguration)
	}
	return &customProvider{config: cfg}, nil
}

func (p *customProvider) Name() string          { return p.config.ProviderName }
func (p *customProvider) AuthURL() string       { return p.config.AuthEndpoint }
func (p *customProvider) TokenURL() string      { return p.config.TokenEndpoint }
func (p *customProvider) JWKSURL() string       { return p.config.JWKSEndpoint }
func (p *customProvider) Issuer() string        { return p.config.IssuerURL }
func (p *customProvider) UserInfoURL() string   { return p.config.UserInfoEndpoint }
func (p *customProvider) EndSessionURL() string { return p.config.EndSessionEndpoint }
func (p *customProvider) RevocationURL() string { return p.config.RevocationEndpoint }
func (p *customProvider) AdminURL() string      { return p.config.AdminEndpoint }

type keycloakProvider struct {
	baseURL string
	realm   string
}

// Keycloak returns the provider for one realm of a Keycloak server.
func Keycloak(baseURL, realm string) Provider {
	return &keycloakProvider{baseURL: strings.TrimRight(baseURL, "/"), realm: realm}
}

func (p *keycloakProvider) Name() string          { return "keycloak" }
func (p *keycloakProvider) AuthURL() string       { return p.endpoint("auth") }
func (p *keycloakProvider) TokenURL() string      { return p.endpoint("token") }
func (p *keycloakProvider) JWKSURL() string       { return p.endpoint("certs") }
func (p *keycloakProvider) Issuer() string        { return p.baseURL + "/realms/" + p.realm }
func (p *keycloakProvider) UserInfoURL() string   { return p.endpoint("userinfo") }
func (p *keycloakProvider) EndSessionURL() string { return p.endpoint("logout") }
func (p *keycloakProvider) RevocationURL() string { return p.endpoint("revoke") }
func (p *keycloakProvider) AdminURL() string      { return p.baseURL + "/admin/realms/" + p.realm }

func (p *keycloakProvider) endpoint(name string) string {
	return p.Issuer() + "/protocol/openid-connect/" + name
}

// hostedPaths lists endpoint paths relative to https://<domain>.
type hostedPaths struct {
	auth, token, jwks, issuer, userInfo, endSession, revocation string
}

var (
	oktaPaths = hostedPaths{
		auth:       "/oauth2/v1/authorize",
		token:      "/oauth2/v1/token",
		jwks:       "/oauth2/v1/keys",
		userInfo:   "/oauth2/v1/userinfo",
		endSession: "/oauth2/v1/logout",
		revocation: "/oauth2/v1/revoke",
	}
	auth0Paths = hostedPaths{
		auth:       "/authorize",
		token:      "/oauth/token",
		jwks:       "/.well-known/jwks.json",
		issuer:     "/",
		userInfo:   "/userinfo",
		endSession: "/oidc/logout",
		revocation: "/oauth/revoke",
	}
)

// hostedProvider is a SaaS tenant addressed by domain. Hosted tenants
// expose no admin API this package understands.
type hostedProvider struct {
	name   string
	domain string
	paths  hostedPaths
}

// Okta returns a provider for an Okta org, e.g. "dev-12345.okta.com".
func Okta(domain string) Provider {
	return &hostedProvider{name: "okta", domain: domain, paths: oktaPaths}
}

// Auth0 returns a provider for an Auth0 tenant, e.g. "myapp.us.auth0.com".
func Auth0(domain string) Provider {
	return &hostedProvider{name: "auth0", domain: domain, paths: auth0Paths}
}

func (p *hostedProvider) url(path string) string {
	return "https://" + strings.TrimRight(p.domain, "/") + path
}

func (p *hostedProvider) Name() string          { return p.name }
func (p *hostedProvider) AuthURL() string       { return p.url(p.paths.auth) }
func (p *hostedProvider) TokenURL() string      { return p.url(p.paths.token) }
func (p *hostedProvider) JWKSURL() string       { return p.url(p.paths.jwks) }
func (p *hostedProvider) Issuer() string        { return p.url(p.paths.issuer) }
func (p *hostedProvider) UserInfoURL() string   { return p.url(p.paths.userInfo) }
func (p *hostedProvider) EndSessionURL() string { return p.url(p.paths.endSession) }
func (p *hostedProvider) RevocationURL() string { return p.url(p.paths.revocation) }
func (p *hostedProvider) AdminURL() string      { return "" }
