package session

import (
	"context"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// MemoryBackend keeps sessions in process memory. Sessions idle for
// longer than the configured TTL are dropped on access.
type MemoryBackend struct {
	mu       sync.Mutex
	clock    clock.PassiveClock
	ttl      time.Duration
	sessions map[string]*memorySession
}

type memorySession struct {
	values   map[string]string
	lastSeen time.Time
}

// NewMemoryBackend creates a MemoryBackend. A zero ttl keeps sessions
// until they are destroyed.
func NewMemoryBackend(ttl time.Duration, c clock.PassiveClock) *MemoryBackend {
	if c == nil {
		c = clock.RealClock{}
	}
	return &MemoryBackend{
		clock:    c,
		ttl:      ttl,
		sessions: make(map[string]*memorySession),
	}
}

// Get implements Backend.
func (b *MemoryBackend) Get(_ context.Context, id, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.lookup(id)
	if s == nil {
		return "", false, nil
	}
	v, ok := s.values[key]
	return v, ok, nil
}

// Set implements Backend.
func (b *MemoryBackend) Set(_ context.Context, id, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.lookup(id)
	if s == nil {
		s = &memorySession{values: make(map[string]string), lastSeen: b.clock.Now()}
		b.sessions[id] = s
	}
	s.values[key] = value
	return nil
}

// Delete implements Backend.
func (b *MemoryBackend) Delete(_ context.Context, id, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s := b.lookup(id); s != nil {
		delete(s.values, key)
	}
	return nil
}

// Destroy implements Backend.
func (b *MemoryBackend) Destroy(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, id)
	return nil
}

// lookup must be called with the lock held.
func (b *MemoryBackend) lookup(id string) *memorySession {
	s, ok := b.sessions[id]
	if !ok {
		return nil
	}
	now := b.clock.Now()
	if b.ttl > 0 && now.Sub(s.lastSeen) > b.ttl {
		delete(b.sessions, id)
		return nil
	}
	s.lastSeen = now
	return s
}
