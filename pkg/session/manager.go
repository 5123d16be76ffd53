package session

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultCookieName is the cookie that carries the session id.
const DefaultCookieName = "go_identity_session"

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Backend Backend

	// CookieName defaults to DefaultCookieName.
	CookieName string

	// MaxAge is the cookie lifetime. Zero yields a browser-session cookie.
	MaxAge time.Duration

	// Enforce makes every operation on a session that was never started
	// fail with ErrSessionNotStarted instead of starting it on first write.
	Enforce bool
}

// Manager maps HTTP requests to sessions through a cookie.
type Manager struct {
	cfg ManagerConfig
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	return &Manager{cfg: cfg}
}

// Start returns the request's session, creating a new id and issuing the
// cookie if the request carries none.
func (m *Manager) Start(w http.ResponseWriter, r *http.Request) *Session {
	if s := m.existing(r); s != nil {
		return s
	}
	id := uuid.NewString()
	m.setCookie(w, r, id)
	return &Session{backend: m.cfg.Backend, id: id}
}

// Session returns the request's session without starting it. When the
// request has no session cookie the returned Session either starts on
// its first write or, if the Manager enforces, rejects every operation.
func (m *Manager) Session(w http.ResponseWriter, r *http.Request) *Session {
	if s := m.existing(r); s != nil {
		return s
	}
	s := &Session{backend: m.cfg.Backend, enforce: m.cfg.Enforce}
	if !m.cfg.Enforce {
		s.start = func() (string, error) {
			id := uuid.NewString()
			m.setCookie(w, r, id)
			return id, nil
		}
	}
	return s
}

// Clear expires the session cookie.
func (m *Manager) Clear(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func (m *Manager) existing(r *http.Request) *Session {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return nil
	}
	return &Session{backend: m.cfg.Backend, id: cookie.Value}
}

func (m *Manager) setCookie(w http.ResponseWriter, r *http.Request, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.cfg.MaxAge.Seconds()),
	})
}
