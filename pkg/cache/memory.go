package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// memoryEntry represents a single cached value with expiration.
type memoryEntry struct {
	key       string
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-process Store with LRU eviction and per-entry TTL.
type MemoryStore struct {
	mu          sync.Mutex
	clock       clock.PassiveClock
	maxSize     int
	items       map[string]*list.Element
	lruList     *list.List
	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the time source used for expiry.
func WithClock(c clock.PassiveClock) MemoryOption {
	return func(s *MemoryStore) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewMemoryStore creates a MemoryStore holding at most maxSize entries.
// Expired entries are swept once a minute until Close is called.
func NewMemoryStore(maxSize int, opts ...MemoryOption) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 1000
	}

	s := &MemoryStore{
		clock:       clock.RealClock{},
		maxSize:     maxSize,
		items:       make(map[string]*list.Element),
		lruList:     list.New(),
		stopCleanup: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupExpired()

	return s
}

// Get retrieves a value by key.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return "", false, nil
	}

	entry := elem.Value.(*memoryEntry)
	if !entry.expiresAt.IsZero() && !s.clock.Now().Before(entry.expiresAt) {
		s.removeElement(elem)
		return "", false, nil
	}

	s.lruList.MoveToFront(elem)
	return entry.value, true, nil
}

// Set stores value under key for ttl. A zero ttl is a no-op; a negative
// ttl stores the entry without expiry.
func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl == 0 {
		return nil
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.clock.Now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		s.lruList.MoveToFront(elem)
		return nil
	}

	elem := s.lruList.PushFront(&memoryEntry{key: key, value: value, expiresAt: expiresAt})
	s.items[key] = elem

	if s.lruList.Len() > s.maxSize {
		if oldest := s.lruList.Back(); oldest != nil {
			s.removeElement(oldest)
		}
	}
	return nil
}

// Delete removes a key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		s.removeElement(elem)
	}
	return nil
}

// Len returns the number of entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lruList.Len()
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// removeElement must be called with the lock held.
func (s *MemoryStore) removeElement(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	delete(s.items, entry.key)
	s.lruList.Remove(elem)
}

func (s *MemoryStore) cleanupExpired() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpiredEntries()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) removeExpiredEntries() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var toRemove []*list.Element
	for elem := s.lruList.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*memoryEntry)
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		s.removeElement(elem)
	}
}
