// Package api adapts the authenticators to net/http middleware.
//
// Handlers behind RequireLogin or RequireBearer find the authenticated
// user with UserFromContext. Redirect outcomes are written as 302
// responses and end the request.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jeremyhahn/go-identity/pkg/directory"
	"github.com/jeremyhahn/go-identity/pkg/oauth"
	"github.com/jeremyhahn/go-identity/pkg/session"
)

var (
	// ErrNoAuthenticator indicates the service was initialised without an authenticator.
	ErrNoAuthenticator = errors.New("api: no authenticator configured")
	// ErrNoSessions indicates browser login was requested without a session manager.
	ErrNoSessions = errors.New("api: session manager required for browser login")
	// ErrNoDirectory indicates an authorization check without a directory.
	ErrNoDirectory = errors.New("api: directory required for authorization")
	// ErrUnauthenticated indicates the request carries no valid identity.
	ErrUnauthenticated = errors.New("api: authentication required")
	// ErrForbidden indicates the user lacks the required role or group.
	ErrForbidden = errors.New("api: access denied")
)

// Config wires the authenticators into the HTTP layer.
type Config struct {
	Authenticator *oauth.Authenticator

	// Sessions backs RequireLogin and Logout.
	Sessions *session.Manager

	// Directory backs RequireRole and RequireGroup.
	Directory *directory.Directory

	// Realm is reported in WWW-Authenticate challenges.
	Realm string

	Logger *zerolog.Logger
}

// Service builds authentication middleware.
type Service struct {
	auth     *oauth.Authenticator
	sessions *session.Manager
	resolver *directory.Resolver
	realm    string
	logger   *zerolog.Logger
}

// NewService builds a Service from the supplied configuration.
func NewService(cfg Config) (*Service, error) {
	if cfg.Authenticator == nil {
		return nil, ErrNoAuthenticator
	}
	if cfg.Sessions != nil && !cfg.Authenticator.Config().RequiresBrowserLogin() {
		return nil, fmt.Errorf("%w: sessions require a redirect url", oauth.ErrInvalidConfiguration)
	}

	s := &Service{
		auth:     cfg.Authenticator,
		sessions: cfg.Sessions,
		realm:    cfg.Realm,
		logger:   cfg.Logger,
	}
	if cfg.Directory != nil {
		s.resolver = cfg.Directory.Resolver()
	}
	if s.logger == nil {
		s.logger = cfg.Authenticator.Config().Logger
	}
	return s, nil
}

type userKey struct{}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *oauth.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the user stored by the middleware.
func UserFromContext(ctx context.Context) (*oauth.User, bool) {
	user, ok := ctx.Value(userKey{}).(*oauth.User)
	return user, ok && user != nil
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireLogin authenticates the request from the browser session. The
// handler serving the redirect URL must be wrapped as well so the login
// callback completes.
func (s *Service) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.sessions == nil {
			s.fail(w, r, ErrNoSessions)
			return
		}

		sa, err := s.auth.Stateful(s.sessions.Start(w, r))
		if err != nil {
			s.fail(w, r, err)
			return
		}

		outcome, err := sa.AuthenticateOrLogin(r.Context(), r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if outcome.Redirected() {
			http.Redirect(w, r, outcome.Location, http.StatusFound)
			return
		}

		user, ok := sa.User()
		if !ok {
			s.fail(w, r, ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// RequireBearer authenticates the request from its bearer token and
// answers 401 when the token is missing or invalid.
func (s *Service) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		sa := s.auth.Stateless()
		if err := sa.Authenticate(r.Context(), token); err != nil {
			s.fail(w, r, err)
			return
		}

		user, ok := sa.User()
		if !ok {
			s.challenge(w, token != "")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// Authenticate uses the bearer token when the request carries an
// Authorization header and the browser session otherwise.
func (s *Service) Authenticate(next http.Handler) http.Handler {
	bearer := s.RequireBearer(next)
	login := s.RequireLogin(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" || s.sessions == nil {
			bearer.ServeHTTP(w, r)
			return
		}
		login.ServeHTTP(w, r)
	})
}

// RequireRole allows users holding any of refs. It must be chained after
// an authenticating middleware.
func (s *Service) RequireRole(refs ...directory.Reference) func(http.Handler) http.Handler {
	return s.authorize(func(ctx context.Context, user *oauth.User) (bool, error) {
		return s.resolver.HasRole(ctx, user, refs...)
	})
}

// RequireClientRole allows users holding any of the named roles of the
// configured client. It must be chained after an authenticating
// middleware.
func (s *Service) RequireClientRole(names ...string) func(http.Handler) http.Handler {
	return s.authorize(func(_ context.Context, user *oauth.User) (bool, error) {
		return s.resolver.HasClientRole(user, names...), nil
	})
}

// RequireGroup allows members of the referenced group or its subgroups.
func (s *Service) RequireGroup(ref directory.Reference) func(http.Handler) http.Handler {
	return s.authorize(func(ctx context.Context, user *oauth.User) (bool, error) {
		return s.resolver.InGroup(ctx, user, ref)
	})
}

func (s *Service) authorize(check func(context.Context, *oauth.User) (bool, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.resolver == nil {
				s.fail(w, r, ErrNoDirectory)
				return
			}
			user, ok := UserFromContext(r.Context())
			if !ok {
				s.fail(w, r, ErrUnauthenticated)
				return
			}

			allowed, err := check(r.Context(), user)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			if !allowed {
				s.fail(w, r, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Logout ends the browser session and redirects to the provider's
// end-session endpoint, or to redirectURL.
func (s *Service) Logout(redirectURL string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.sessions == nil {
			s.fail(w, r, ErrNoSessions)
			return
		}

		sess := s.sessions.Session(w, r)
		if !sess.Started() {
			http.Redirect(w, r, redirectURL, http.StatusFound)
			return
		}

		sa, err := s.auth.Stateful(sess)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		outcome, err := sa.Logout(r.Context(), redirectURL)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		if err := sess.Destroy(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("session destroy failed")
		}
		s.sessions.Clear(w, r)
		http.Redirect(w, r, outcome.Location, http.StatusFound)
	})
}

// StatusFor maps an authentication error to an HTTP status code.
func StatusFor(err error) int {
	var perr *oauth.ProviderError
	switch {
	case errors.As(err, &perr) && perr.Op == "authorize":
		return http.StatusUnauthorized
	case errors.Is(err, oauth.ErrProviderCommunication):
		return http.StatusBadGateway
	case errors.Is(err, oauth.ErrStateMismatch):
		return http.StatusBadRequest
	case errors.Is(err, oauth.ErrTokenValidation), errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Service) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	event := s.logger.Warn()
	if status >= http.StatusInternalServerError {
		event = s.logger.Error()
	}
	event.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request not authenticated")

	if status == http.StatusUnauthorized && r.Header.Get("Authorization") != "" {
		s.challenge(w, true)
		return
	}
	http.Error(w, http.StatusText(status), status)
}

func (s *Service) challenge(w http.ResponseWriter, invalid bool) {
	value := "Bearer"
	if s.realm != "" {
		value += ` realm="` + s.realm + `"`
		if invalid {
			value += ","
		}
	}
	if invalid {
		value += ` error="invalid_token"`
	}
	w.Header().Set("WWW-Authenticate", value)
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}
