// Package session provides per-browser key/value persistence for the
// stateful login flow.
//
// A Session is bound to one session id and stores string values in a
// Backend (in-memory or Redis). Sessions are obtained from a Manager,
// which maps the id to an HTTP cookie.
package session

import (
	"context"
	"errors"
	"sync"
)

// ErrSessionNotStarted is returned when a session is used before the
// host application started it and the Manager enforces that check.
var ErrSessionNotStarted = errors.New("session: not started")

// Store is the key/value view of one session.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Has(ctx context.Context, key string) (bool, error)
	Remove(ctx context.Context, key string) error
}

// Backend persists the values of all sessions, partitioned by session id.
type Backend interface {
	Get(ctx context.Context, id, key string) (string, bool, error)
	Set(ctx context.Context, id, key, value string) error
	Delete(ctx context.Context, id, key string) error
	Destroy(ctx context.Context, id string) error
}

// Session is a Store bound to a single session id.
type Session struct {
	backend Backend
	enforce bool

	mu    sync.Mutex
	id    string
	start func() (string, error)
}

var _ Store = (*Session)(nil)

// New returns a started session with the given id.
func New(backend Backend, id string) *Session {
	return &Session{backend: backend, id: id}
}

// ID returns the session id, or "" if the session has not started.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Started reports whether the session has an id.
func (s *Session) Started() bool {
	return s.ID() != ""
}

// Get returns the value stored under key.
func (s *Session) Get(ctx context.Context, key string) (string, bool, error) {
	id, err := s.ensure(false)
	if err != nil || id == "" {
		return "", false, err
	}
	return s.backend.Get(ctx, id, key)
}

// Set stores value under key, starting the session if allowed.
func (s *Session) Set(ctx context.Context, key, value string) error {
	id, err := s.ensure(true)
	if err != nil {
		return err
	}
	return s.backend.Set(ctx, id, key, value)
}

// Has reports whether key is present.
func (s *Session) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// Remove deletes key.
func (s *Session) Remove(ctx context.Context, key string) error {
	id, err := s.ensure(false)
	if err != nil || id == "" {
		return err
	}
	return s.backend.Delete(ctx, id, key)
}

// Destroy deletes every value of the session.
func (s *Session) Destroy(ctx context.Context) error {
	id, err := s.ensure(false)
	if err != nil || id == "" {
		return err
	}
	return s.backend.Destroy(ctx, id)
}

// ensure returns the session id. Reads on a lazily startable session
// return "" without starting it; writes start it.
func (s *Session) ensure(write bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id != "" {
		return s.id, nil
	}
	if s.enforce || s.start == nil {
		return "", ErrSessionNotStarted
	}
	if !write {
		return "", nil
	}

	id, err := s.start()
	if err != nil {
		return "", err
	}
	s.id = id
	return id, nil
}
