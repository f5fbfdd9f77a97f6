package conversation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Entries idle for longer than TTL are
// treated as absent.
type MemoryStore struct {
	TTL time.Duration

	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	turns     []Turn
	updatedAt time.Time
}

// NewMemoryStore creates a MemoryStore. A non-positive ttl keeps entries forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		TTL:     ttl,
		entries: map[string]memoryEntry{},
		now:     time.Now,
	}
}

// Get returns a copy of the stored history for key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if s.expired(e) {
		delete(s.entries, key)
		return nil, nil
	}
	return Clone(e.turns), nil
}

// Put replaces the history for key. Empty turns remove the entry.
func (s *MemoryStore) Put(_ context.Context, key string, turns []Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(turns) == 0 {
		delete(s.entries, key)
		return nil
	}
	if s.entries == nil {
		s.entries = map[string]memoryEntry{}
	}
	s.entries[key] = memoryEntry{turns: Clone(turns), updatedAt: s.clock()}
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) expired(e memoryEntry) bool {
	return s.TTL > 0 && s.clock().Sub(e.updatedAt) > s.TTL
}

func (s *MemoryStore) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
