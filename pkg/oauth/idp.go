package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// adminPageSize is the page size used when listing directory entities.
const adminPageSize = 100

// IdentityProvider is the remote surface of an OpenID Connect provider.
// Every method that performs I/O fails with an error matching
// ErrProviderCommunication when the provider cannot be reached or
// answers with an error.
type IdentityProvider interface {
	// AuthCodeURL returns the authorization endpoint URL for a login
	// redirect. verifier is the PKCE code verifier, or "" to disable PKCE.
	AuthCodeURL(state, nonce, verifier string) string

	// ExchangeCode trades an authorization code for tokens.
	ExchangeCode(ctx context.Context, code, verifier string) (*TokenResponse, error)

	// Refresh obtains new tokens using a refresh token.
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)

	// VerifyIDToken checks an ID token's signature, issuer, audience and
	// expiry and returns its claims.
	VerifyIDToken(ctx context.Context, rawIDToken string) (ClaimSet, error)

	// FetchJWKS returns the provider's published key set document.
	FetchJWKS(ctx context.Context) (json.RawMessage, error)

	// FetchGroups returns every group as a flat list in provider order,
	// parents before their children.
	FetchGroups(ctx context.Context) ([]GroupRepresentation, error)

	// FetchRoles returns every realm role.
	FetchRoles(ctx context.Context) ([]RoleRepresentation, error)

	// FetchUsers returns every user.
	FetchUsers(ctx context.Context) ([]UserRepresentation, error)

	// EndSessionURL returns the RP-initiated logout URL, or "" if the
	// provider has no end-session endpoint.
	EndSessionURL(idTokenHint, postLogoutRedirect string) string

	// Revoke revokes a refresh or access token.
	Revoke(ctx context.Context, token string) error
}

// TokenResponse is the result of a code exchange or refresh.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	Expiry       time.Time
}

// GroupRepresentation is a group as returned by the provider.
type GroupRepresentation struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	Path      string                `json:"path,omitempty"`
	ParentID  string                `json:"parentId,omitempty"`
	SubGroups []GroupRepresentation `json:"subGroups,omitempty"`
}

// RoleRepresentation is a realm role as returned by the provider.
type RoleRepresentation struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Composite   bool   `json:"composite,omitempty"`
}

// UserRepresentation is a user as returned by the provider.
type UserRepresentation struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Enabled   bool   `json:"enabled"`
}

// ProviderClient implements IdentityProvider over HTTP. Token endpoints go
// through golang.org/x/oauth2, ID tokens are verified with go-oidc and
// the administrative API is called with a client-credentials token.
type ProviderClient struct {
	cfg        *Config
	httpClient *http.Client
	oauthCfg   *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	admin      *http.Client
}

var _ IdentityProvider = (*ProviderClient)(nil)

// NewProviderClient creates a ProviderClient. cfg is validated first.
func NewProviderClient(cfg *Config) (*ProviderClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := newHTTPClient(cfg)
	clientCtx := oidc.ClientContext(context.Background(), httpClient)

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.Provider.AuthURL(),
			TokenURL: cfg.Provider.TokenURL(),
		},
		Scopes:      cfg.Scopes,
		RedirectURL: cfg.RedirectURL,
	}

	oidcProvider := (&oidc.ProviderConfig{
		IssuerURL:   cfg.Validation.Issuer,
		AuthURL:     cfg.Provider.AuthURL(),
		TokenURL:    cfg.Provider.TokenURL(),
		UserInfoURL: cfg.Provider.UserInfoURL(),
		JWKSURL:     cfg.Provider.JWKSURL(),
		Algorithms:  cfg.Validation.Algorithms,
	}).NewProvider(clientCtx)

	p := &ProviderClient{
		cfg:        cfg,
		httpClient: httpClient,
		oauthCfg:   oauthCfg,
		verifier: oidcProvider.Verifier(&oidc.Config{
			ClientID:             cfg.ClientID,
			SupportedSigningAlgs: cfg.Validation.Algorithms,
			Now:                  cfg.Clock.Now,
		}),
	}

	if cfg.Provider.AdminURL() != "" && cfg.ClientSecret != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.Provider.TokenURL(),
		}
		p.admin = cc.Client(context.WithValue(context.Background(), oauth2.HTTPClient, httpClient))
	}

	return p, nil
}

func (p *ProviderClient) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// AuthCodeURL implements IdentityProvider.
func (p *ProviderClient) AuthCodeURL(state, nonce, verifier string) string {
	opts := []oauth2.AuthCodeOption{}
	if nonce != "" {
		opts = append(opts, oauth2.SetAuthURLParam("nonce", nonce))
	}
	if verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return p.oauthCfg.AuthCodeURL(state, opts...)
}

// ExchangeCode implements IdentityProvider.
func (p *ProviderClient) ExchangeCode(ctx context.Context, code, verifier string) (*TokenResponse, error) {
	if strings.TrimSpace(code) == "" {
		return nil, &ProviderError{Op: "exchange_code", Description: "authorization code is required"}
	}

	opts := []oauth2.AuthCodeOption{}
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	tok, err := p.oauthCfg.Exchange(p.context(ctx), code, opts...)
	if err != nil {
		return nil, providerError("exchange_code", err)
	}
	return tokenResponse(tok), nil
}

// Refresh implements IdentityProvider.
func (p *ProviderClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, &ProviderError{Op: "refresh", Description: "refresh token is required"}
	}

	tok, err := p.oauthCfg.TokenSource(p.context(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, providerError("refresh", err)
	}
	return tokenResponse(tok), nil
}

func tokenResponse(tok *oauth2.Token) *TokenResponse {
	idToken, _ := tok.Extra("id_token").(string)
	return &TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IDToken:      idToken,
		Expiry:       tok.Expiry,
	}
}

func providerError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		pe := &ProviderError{Op: op, Description: retrieveErr.ErrorDescription}
		if retrieveErr.Response != nil {
			pe.StatusCode = retrieveErr.Response.StatusCode
		}
		if pe.Description == "" {
			pe.Description = retrieveErr.ErrorCode
		}
		return pe
	}
	return &ProviderError{Op: op, Err: err}
}

// VerifyIDToken implements IdentityProvider.
func (p *ProviderClient) VerifyIDToken(ctx context.Context, rawIDToken string) (ClaimSet, error) {
	if strings.TrimSpace(rawIDToken) == "" {
		return nil, ErrMissingToken
	}

	idToken, err := p.verifier.Verify(p.context(ctx), rawIDToken)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: id token: %v", ErrTokenValidation, err)
	}

	claims := ClaimSet{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
	return claims, nil
}

// FetchJWKS implements IdentityProvider.
func (p *ProviderClient) FetchJWKS(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := p.getJSON(ctx, p.httpClient, "fetch_jwks", p.cfg.Provider.JWKSURL(), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// FetchGroups implements IdentityProvider.
func (p *ProviderClient) FetchGroups(ctx context.Context) ([]GroupRepresentation, error) {
	top, err := adminList[GroupRepresentation](ctx, p, "fetch_groups", "/groups", url.Values{
		"briefRepresentation": {"true"},
		"populateHierarchy":   {"true"},
	})
	if err != nil {
		return nil, err
	}
	return flattenGroups(top, "", nil), nil
}

// flattenGroups walks nested subGroups depth-first and records each
// child's parent id.
func flattenGroups(groups []GroupRepresentation, parentID string, out []GroupRepresentation) []GroupRepresentation {
	for _, g := range groups {
		children := g.SubGroups
		g.SubGroups = nil
		if g.ParentID == "" {
			g.ParentID = parentID
		}
		out = append(out, g)
		out = flattenGroups(children, g.ID, out)
	}
	return out
}

// FetchRoles implements IdentityProvider.
func (p *ProviderClient) FetchRoles(ctx context.Context) ([]RoleRepresentation, error) {
	return adminList[RoleRepresentation](ctx, p, "fetch_roles", "/roles", url.Values{
		"briefRepresentation": {"true"},
	})
}

// FetchUsers implements IdentityProvider.
func (p *ProviderClient) FetchUsers(ctx context.Context) ([]UserRepresentation, error) {
	return adminList[UserRepresentation](ctx, p, "fetch_users", "/users", url.Values{
		"briefRepresentation": {"true"},
	})
}

// adminList pages through an administrative collection endpoint.
func adminList[T any](ctx context.Context, p *ProviderClient, op, path string, query url.Values) ([]T, error) {
	if p.admin == nil {
		return nil, &ProviderError{Op: op, Description: "provider has no admin API or client secret is missing"}
	}

	base := strings.TrimRight(p.cfg.Provider.AdminURL(), "/") + path
	var all []T
	for first := 0; ; first += adminPageSize {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("first", strconv.Itoa(first))
		q.Set("max", strconv.Itoa(adminPageSize))

		var page []T
		if err := p.getJSON(ctx, p.admin, op, base+"?"+q.Encode(), &page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < adminPageSize {
			return all, nil
		}
	}
}

func (p *ProviderClient) getJSON(ctx context.Context, client *http.Client, op, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &ProviderError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return &ProviderError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return &ProviderError{Op: op, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Description: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ProviderError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// EndSessionURL implements IdentityProvider.
func (p *ProviderClient) EndSessionURL(idTokenHint, postLogoutRedirect string) string {
	endpoint := p.cfg.Provider.EndSessionURL()
	if endpoint == "" {
		return ""
	}

	q := url.Values{}
	q.Set("client_id", p.cfg.ClientID)
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	if postLogoutRedirect != "" {
		q.Set("post_logout_redirect_uri", postLogoutRedirect)
	}

	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + q.Encode()
}

// Revoke implements IdentityProvider.
func (p *ProviderClient) Revoke(ctx context.Context, token string) error {
	endpoint := p.cfg.Provider.RevocationURL()
	if endpoint == "" || token == "" {
		return nil
	}

	form := url.Values{}
	form.Set("token", token)
	form.Set("client_id", p.cfg.ClientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &ProviderError{Op: "revoke", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if p.cfg.ClientSecret != "" {
		req.SetBasicAuth(url.QueryEscape(p.cfg.ClientID), url.QueryEscape(p.cfg.ClientSecret))
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Op: "revoke", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ProviderError{Op: "revoke", StatusCode: resp.StatusCode, Description: string(body)}
	}
	return nil
}
