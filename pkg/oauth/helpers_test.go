package oauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"maps"
	"math/big"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/clock"
)

const (
	testIssuer   = "https://idp.test/realms/test"
	testClientID = "web"
	testSubject  = "6f1c4b9e-8a53-4c3e-9d3b-2f0a6c1d7e55"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testKey struct {
	kid  string
	priv *rsa.PrivateKey
}

func newTestKey(t *testing.T, kid string) *testKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &testKey{kid: kid, priv: priv}
}

func (k *testKey) jwk() map[string]any {
	return map[string]any{
		"kty": "RSA",
		"kid": k.kid,
		"use": "sig",
		"alg": "RS256",
		"n":   base64.RawURLEncoding.EncodeToString(k.priv.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(k.priv.E)).Bytes()),
	}
}

func jwksJSON(t *testing.T, keys ...*testKey) json.RawMessage {
	t.Helper()
	list := []any{}
	for _, k := range keys {
		list = append(list, k.jwk())
	}
	raw, err := json.Marshal(map[string]any{"keys": list})
	require.NoError(t, err)
	return raw
}

func (k *testKey) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = k.kid
	s, err := tok.SignedString(k.priv)
	require.NoError(t, err)
	return s
}

// token signs a token issued at now and valid for ttl.
func (k *testKey) token(t *testing.T, now time.Time, ttl time.Duration, extra jwt.MapClaims) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss":                testIssuer,
		"sub":                testSubject,
		"aud":                testClientID,
		"iat":                now.Unix(),
		"exp":                now.Add(ttl).Unix(),
		"preferred_username": "alice",
	}
	maps.Copy(claims, extra)
	return k.sign(t, claims)
}

// fakeIDP is an in-memory IdentityProvider that counts calls.
type fakeIDP struct {
	mu sync.Mutex

	jwks      json.RawMessage
	jwksErr   error
	jwksCalls int

	exchange      func(code, verifier string) (*TokenResponse, error)
	exchangeCalls int

	refresh      func(refreshToken string) (*TokenResponse, error)
	refreshCalls int

	verify func(raw string) (ClaimSet, error)

	revoked []string
}

var _ IdentityProvider = (*fakeIDP)(nil)

func (f *fakeIDP) AuthCodeURL(state, nonce, verifier string) string {
	q := url.Values{}
	q.Set("state", state)
	q.Set("nonce", nonce)
	if verifier != "" {
		q.Set("code_challenge_method", "S256")
	}
	return "https://idp.test/auth?" + q.Encode()
}

func (f *fakeIDP) ExchangeCode(_ context.Context, code, verifier string) (*TokenResponse, error) {
	f.mu.Lock()
	f.exchangeCalls++
	f.mu.Unlock()
	if f.exchange == nil {
		return nil, &ProviderError{Op: "exchange_code", StatusCode: 400}
	}
	return f.exchange(code, verifier)
}

func (f *fakeIDP) Refresh(_ context.Context, refreshToken string) (*TokenResponse, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	if f.refresh == nil {
		return nil, &ProviderError{Op: "refresh", StatusCode: 400, Description: "invalid_grant"}
	}
	return f.refresh(refreshToken)
}

func (f *fakeIDP) VerifyIDToken(_ context.Context, raw string) (ClaimSet, error) {
	if f.verify != nil {
		return f.verify(raw)
	}
	claims, err := parseUnverified(raw)
	return ClaimSet(claims), err
}

func (f *fakeIDP) FetchJWKS(context.Context) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jwksCalls++
	if f.jwksErr != nil {
		return nil, f.jwksErr
	}
	return f.jwks, nil
}

func (f *fakeIDP) setJWKS(raw json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jwks = raw
}

func (f *fakeIDP) calls() (jwks, exchange, refresh int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jwksCalls, f.exchangeCalls, f.refreshCalls
}

func (f *fakeIDP) FetchGroups(context.Context) ([]GroupRepresentation, error) { return nil, nil }
func (f *fakeIDP) FetchRoles(context.Context) ([]RoleRepresentation, error)   { return nil, nil }
func (f *fakeIDP) FetchUsers(context.Context) ([]UserRepresentation, error)   { return nil, nil }

func (f *fakeIDP) EndSessionURL(idTokenHint, postLogoutRedirect string) string {
	q := url.Values{}
	q.Set("id_token_hint", idTokenHint)
	q.Set("post_logout_redirect_uri", postLogoutRedirect)
	return "https://idp.test/logout?" + q.Encode()
}

func (f *fakeIDP) Revoke(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, token)
	return nil
}

func testProvider(t *testing.T) Provider {
	t.Helper()
	p, err := CustomProvider(ProviderConfig{
		ProviderName:       "test",
		AuthEndpoint:       "https://idp.test/auth",
		TokenEndpoint:      "https://idp.test/token",
		JWKSEndpoint:       "https://idp.test/certs",
		IssuerURL:          testIssuer,
		EndSessionEndpoint: "https://idp.test/logout",
	})
	require.NoError(t, err)
	return p
}

func testConfig(t *testing.T, clk clock.PassiveClock) *Config {
	t.Helper()
	return &Config{
		Provider:    testProvider(t),
		ClientID:    testClientID,
		RedirectURL: "https://app.test/callback",
		Clock:       clk,
	}
}

func newTestAuthenticator(t *testing.T, cfg *Config, idp IdentityProvider) *Authenticator {
	t.Helper()
	auth, err := NewAuthenticator(cfg, WithIdentityProvider(idp))
	require.NoError(t, err)
	t.Cleanup(auth.Close)
	return auth
}
