package oauth

import (
	"context"
	"errors"
	"strings"
)

// StatelessAuthenticator validates the bearer token of one request. It
// keeps the result in memory only.
type StatelessAuthenticator struct {
	auth *Authenticator

	token *TokenSet
	user  *User
	err   error
}

// Authenticate validates raw. An empty token leaves the authenticator
// unauthenticated without error. Validation failures are recorded in Err
// and never returned; only failures to reach the provider are.
func (a *StatelessAuthenticator) Authenticate(ctx context.Context, raw string) error {
	a.token, a.user, a.err = nil, nil, nil

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	logger := a.auth.config.Logger
	if _, err := a.auth.ValidateToken(ctx, raw); err != nil {
		if errors.Is(err, ErrProviderCommunication) || ctx.Err() != nil {
			return err
		}
		a.err = err
		logger.Debug().Err(err).Msg("bearer token rejected")
		return nil
	}

	ts, err := NewTokenSet(raw, "", "")
	if err != nil {
		a.err = err
		return nil
	}
	user, err := NewUser(ts)
	if err != nil {
		a.err = err
		return nil
	}

	a.token, a.user = ts, user
	return nil
}

// Authenticated reports whether the last Authenticate call succeeded.
func (a *StatelessAuthenticator) Authenticated() bool {
	return a.user != nil
}

// User returns the authenticated user.
func (a *StatelessAuthenticator) User() (*User, bool) {
	return a.user, a.user != nil
}

// Token returns the validated TokenSet.
func (a *StatelessAuthenticator) Token() (*TokenSet, bool) {
	return a.token, a.token != nil
}

// Err returns why the last token was rejected, or nil.
func (a *StatelessAuthenticator) Err() error {
	return a.err
}
