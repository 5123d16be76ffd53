package oauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/jeremyhahn/go-identity/pkg/session"
)

// SessionKeyPrefix namespaces every session key written by the stateful
// authenticator.
const SessionKeyPrefix = "go-identity."

const (
	sessionKeyToken    = SessionKeyPrefix + "token"
	sessionKeyState    = SessionKeyPrefix + "state"
	sessionKeyNonce    = SessionKeyPrefix + "nonce"
	sessionKeyVerifier = SessionKeyPrefix + "verifier"
	sessionKeyRedirect = SessionKeyPrefix + "redirect"
)

var transientKeys = []string{sessionKeyState, sessionKeyNonce, sessionKeyVerifier, sessionKeyRedirect}

// State is a position in the browser login state machine.
type State int

const (
	StateUnauthenticated State = iota
	StateLoginPending
	StateAuthenticated
	StateRefreshing
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateLoginPending:
		return "login_pending"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateLoggedOut:
		return "logged_out"
	}
	return "unknown"
}

// StatefulAuthenticator drives the browser login flow for one request.
// Its state is rehydrated from the session on every call; it is not safe
// for concurrent use.
type StatefulAuthenticator struct {
	auth  *Authenticator
	store session.Store

	state State
	token *TokenSet
	user  *User
}

func newStatefulAuthenticator(auth *Authenticator, store session.Store) *StatefulAuthenticator {
	return &StatefulAuthenticator{auth: auth, store: store}
}

func (a *StatefulAuthenticator) logger() *zerolog.Logger {
	return a.auth.config.Logger
}

// State returns the current state.
func (a *StatefulAuthenticator) State() State {
	return a.state
}

// User returns the authenticated user.
func (a *StatefulAuthenticator) User() (*User, bool) {
	return a.user, a.user != nil
}

// Token returns the current TokenSet.
func (a *StatefulAuthenticator) Token() (*TokenSet, bool) {
	return a.token, a.token != nil
}

// AuthenticateOrLogin authenticates the request from the session, completes
// a login callback, or starts a login. When the returned Outcome is a
// Redirect the caller must send it and stop handling the request.
func (a *StatefulAuthenticator) AuthenticateOrLogin(ctx context.Context, r *http.Request) (Outcome, error) {
	ts, err := a.loadToken(ctx)
	if err != nil {
		return Outcome{}, err
	}

	if ts != nil {
		ok, err := a.ensureFresh(ctx, ts)
		if err != nil {
			return Outcome{}, err
		}
		if ok {
			return continueOutcome(), nil
		}
	}

	query := r.URL.Query()
	if errCode := query.Get("error"); errCode != "" {
		if err := a.clearTransient(ctx); err != nil {
			return Outcome{}, err
		}
		a.state = StateUnauthenticated
		desc := query.Get("error_description")
		if desc == "" {
			desc = errCode
		}
		return Outcome{}, &ProviderError{Op: "authorize", Description: desc}
	}

	if query.Has("code") && query.Has("state") {
		return a.completeLogin(ctx, query.Get("code"), query.Get("state"))
	}

	return a.startLogin(ctx, r)
}

// ensureFresh makes ts the current token, refreshing it when it is within
// the refresh skew. It reports false when the session must log in again.
func (a *StatefulAuthenticator) ensureFresh(ctx context.Context, ts *TokenSet) (bool, error) {
	cfg := a.auth.config
	now := cfg.Clock.Now()

	if !ts.ExpiresWithin(now, cfg.RefreshSkew) {
		return true, a.setToken(ts)
	}

	if !ts.Refreshable() {
		if !ts.Expired(now) {
			return true, a.setToken(ts)
		}
		a.logger().Info().Msg("session token expired without refresh token")
		return false, a.clearToken(ctx)
	}

	a.state = StateRefreshing
	refreshed, err := a.refresh(ctx, ts)
	if err == nil {
		a.logger().Info().Time("expires_at", refreshed.ExpiresAt()).Msg("session token refreshed")
		return true, a.storeToken(ctx, refreshed)
	}

	if !ts.Expired(now) {
		a.logger().Warn().Err(err).Msg("token refresh failed, keeping unexpired token")
		return true, a.setToken(ts)
	}

	a.logger().Info().Err(err).Msg("token refresh failed, login required")
	return false, a.clearToken(ctx)
}

func (a *StatefulAuthenticator) refresh(ctx context.Context, ts *TokenSet) (*TokenSet, error) {
	resp, err := a.auth.idp.Refresh(ctx, ts.RefreshToken())
	if err != nil {
		return nil, err
	}

	idToken := resp.IDToken
	if idToken == "" {
		idToken = ts.IDToken()
	}
	return NewTokenSet(resp.AccessToken, resp.RefreshToken, idToken)
}

func (a *StatefulAuthenticator) completeLogin(ctx context.Context, code, state string) (Outcome, error) {
	expected, ok, err := a.store.Get(ctx, sessionKeyState)
	if err != nil {
		return Outcome{}, err
	}
	if !ok || expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		a.state = StateUnauthenticated
		if err := a.clearTransient(ctx); err != nil {
			return Outcome{}, err
		}
		a.logger().Warn().Msg("login callback state mismatch")
		return Outcome{}, ErrStateMismatch
	}

	nonce, _, err := a.store.Get(ctx, sessionKeyNonce)
	if err != nil {
		return Outcome{}, err
	}
	verifier, _, err := a.store.Get(ctx, sessionKeyVerifier)
	if err != nil {
		return Outcome{}, err
	}
	target, _, err := a.store.Get(ctx, sessionKeyRedirect)
	if err != nil {
		return Outcome{}, err
	}

	// State is single use whatever the exchange result.
	if err := a.clearTransient(ctx); err != nil {
		return Outcome{}, err
	}

	resp, err := a.auth.idp.ExchangeCode(ctx, code, verifier)
	if err != nil {
		a.state = StateUnauthenticated
		return Outcome{}, err
	}

	if resp.IDToken != "" {
		claims, err := a.auth.idp.VerifyIDToken(ctx, resp.IDToken)
		if err != nil {
			a.state = StateUnauthenticated
			return Outcome{}, err
		}
		if got, _ := claims.String("nonce"); nonce != "" && subtle.ConstantTimeCompare([]byte(got), []byte(nonce)) != 1 {
			a.state = StateUnauthenticated
			return Outcome{}, fmt.Errorf("%w: nonce mismatch", ErrInvalidClaims)
		}
	}

	ts, err := NewTokenSet(resp.AccessToken, resp.RefreshToken, resp.IDToken)
	if err != nil {
		a.state = StateUnauthenticated
		return Outcome{}, err
	}
	if err := a.storeToken(ctx, ts); err != nil {
		return Outcome{}, err
	}

	a.logger().Info().Str("user", a.user.Username).Msg("login completed")
	return redirectTo(safeRedirectTarget(target)), nil
}

func (a *StatefulAuthenticator) startLogin(ctx context.Context, r *http.Request) (Outcome, error) {
	state, err := randomToken()
	if err != nil {
		return Outcome{}, err
	}
	nonce, err := randomToken()
	if err != nil {
		return Outcome{}, err
	}
	verifier := ""
	if !a.auth.config.DisablePKCE {
		verifier = oauth2.GenerateVerifier()
	}

	values := map[string]string{
		sessionKeyState:    state,
		sessionKeyNonce:    nonce,
		sessionKeyVerifier: verifier,
		sessionKeyRedirect: safeRedirectTarget(r.URL.RequestURI()),
	}
	for _, key := range transientKeys {
		if err := a.store.Set(ctx, key, values[key]); err != nil {
			return Outcome{}, err
		}
	}

	a.state = StateLoginPending
	a.logger().Debug().Msg("redirecting to identity provider")
	return redirectTo(a.auth.idp.AuthCodeURL(state, nonce, verifier)), nil
}

// Logout clears the session, revokes the refresh token and redirects to
// the provider's end-session endpoint, or to redirectURL when the
// provider has none.
func (a *StatefulAuthenticator) Logout(ctx context.Context, redirectURL string) (Outcome, error) {
	ts, err := a.loadToken(ctx)
	if err != nil {
		return Outcome{}, err
	}

	if err := a.clearToken(ctx); err != nil {
		return Outcome{}, err
	}
	if err := a.clearTransient(ctx); err != nil {
		return Outcome{}, err
	}
	a.state = StateLoggedOut

	idTokenHint := ""
	if ts != nil {
		idTokenHint = ts.IDToken()
		if ts.Refreshable() {
			if err := a.auth.idp.Revoke(ctx, ts.RefreshToken()); err != nil {
				a.logger().Warn().Err(err).Msg("refresh token revocation failed")
			}
		}
	}

	a.logger().Info().Msg("logged out")
	if location := a.auth.idp.EndSessionURL(idTokenHint, redirectURL); location != "" {
		return redirectTo(location), nil
	}
	return redirectTo(redirectURL), nil
}

// loadToken reads the session's TokenSet. An undecodable value is
// discarded.
func (a *StatefulAuthenticator) loadToken(ctx context.Context) (*TokenSet, error) {
	raw, ok, err := a.store.Get(ctx, sessionKeyToken)
	if err != nil || !ok {
		return nil, err
	}

	ts, err := UnmarshalTokenSet([]byte(raw))
	if err != nil {
		a.logger().Debug().Err(err).Msg("discarding undecodable session token")
		return nil, a.clearToken(ctx)
	}
	return ts, nil
}

func (a *StatefulAuthenticator) storeToken(ctx context.Context, ts *TokenSet) error {
	data, err := ts.MarshalJSON()
	if err != nil {
		return err
	}
	if err := a.store.Set(ctx, sessionKeyToken, string(data)); err != nil {
		return err
	}
	return a.setToken(ts)
}

func (a *StatefulAuthenticator) setToken(ts *TokenSet) error {
	user, err := NewUser(ts)
	if err != nil {
		a.token, a.user = nil, nil
		a.state = StateUnauthenticated
		return err
	}
	a.token, a.user = ts, user
	a.state = StateAuthenticated
	return nil
}

func (a *StatefulAuthenticator) clearToken(ctx context.Context) error {
	a.token, a.user = nil, nil
	a.state = StateUnauthenticated
	err := a.store.Remove(ctx, sessionKeyToken)
	if errors.Is(err, session.ErrSessionNotStarted) {
		return nil
	}
	return err
}

func (a *StatefulAuthenticator) clearTransient(ctx context.Context) error {
	for _, key := range transientKeys {
		if err := a.store.Remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// safeRedirectTarget only allows local absolute paths.
func safeRedirectTarget(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.ContainsRune(target, '\\') {
		return "/"
	}
	return target
}
