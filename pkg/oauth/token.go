package oauth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSet holds the tokens of one authentication together with the
// expiry taken from the access token. A TokenSet is never mutated; a
// refresh produces a new one.
type TokenSet struct {
	accessToken  string
	refreshToken string
	idToken      string
	expiresAt    time.Time
	claims       ClaimSet
}

// NewTokenSet builds a TokenSet. The expiry always comes from the access
// token's exp claim; the signature is not checked here. Claims are read
// from the ID token if present, else from the access token.
func NewTokenSet(accessToken, refreshToken, idToken string) (*TokenSet, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrMissingToken
	}

	accessClaims, err := parseUnverified(accessToken)
	if err != nil {
		return nil, err
	}
	exp, err := accessClaims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: access token has no exp claim", ErrInvalidClaims)
	}

	claims := ClaimSet(accessClaims)
	if idToken != "" {
		idClaims, err := parseUnverified(idToken)
		if err != nil {
			return nil, err
		}
		claims = ClaimSet(idClaims)
	}

	return &TokenSet{
		accessToken:  accessToken,
		refreshToken: refreshToken,
		idToken:      idToken,
		expiresAt:    exp.Time,
		claims:       claims,
	}, nil
}

func parseUnverified(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
	return claims, nil
}

// AccessToken returns the raw access token.
func (t *TokenSet) AccessToken() string { return t.accessToken }

// RefreshToken returns the raw refresh token, or "".
func (t *TokenSet) RefreshToken() string { return t.refreshToken }

// IDToken returns the raw ID token, or "".
func (t *TokenSet) IDToken() string { return t.idToken }

// ExpiresAt returns the access token's expiry.
func (t *TokenSet) ExpiresAt() time.Time { return t.expiresAt }

// Claims returns a copy of the identity claims.
func (t *TokenSet) Claims() ClaimSet {
	out := make(ClaimSet, len(t.claims))
	for k, v := range t.claims {
		out[k] = v
	}
	return out
}

// Refreshable reports whether a refresh token is available.
func (t *TokenSet) Refreshable() bool {
	return t.refreshToken != ""
}

// Expired reports whether the access token has expired at now.
func (t *TokenSet) Expired(now time.Time) bool {
	return !now.Before(t.expiresAt)
}

// ExpiresWithin reports whether the access token expires within d of now.
func (t *TokenSet) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !now.Add(d).Before(t.expiresAt)
}

type tokenSetJSON struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// MarshalJSON encodes the raw tokens. Derived fields are rebuilt on decode.
func (t *TokenSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(tokenSetJSON{
		AccessToken:  t.accessToken,
		RefreshToken: t.refreshToken,
		IDToken:      t.idToken,
	})
}

// UnmarshalTokenSet decodes a TokenSet written by MarshalJSON.
func UnmarshalTokenSet(data []byte) (*TokenSet, error) {
	var raw tokenSetJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
	return NewTokenSet(raw.AccessToken, raw.RefreshToken, raw.IDToken)
}
