package state

import (
	"context"
	"sync"
)

// SeenStore persists, per user, the set of unread message ids the
// notification tracker has already observed. Restoring it across restarts
// keeps a relogin from re-notifying about messages the user was already
// shown. Implementations must be safe for concurrent use; every session
// shares one store.
type SeenStore interface {
	// Load returns the persisted id set and whether any state existed.
	Load(ctx context.Context, userID string) ([]int64, bool, error)
	// Save replaces the persisted id set for the user.
	Save(ctx context.Context, userID string, ids []int64) error
	Close() error
}

// MemoryStore keeps seen state for the process lifetime only. Suitable
// for development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	seen map[string][]int64
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string][]int64)}
}

// Load returns the stored ids for the user, if any.
func (s *MemoryStore) Load(_ context.Context, userID string) ([]int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, ok := s.seen[userID]
	if !ok {
		return nil, false, nil
	}
	out := make([]int64, len(ids))
	copy(out, ids)
	return out, true, nil
}

// Save replaces the stored ids for the user.
func (s *MemoryStore) Save(_ context.Context, userID string, ids []int64) error {
	stored := make([]int64, len(ids))
	copy(stored, ids)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[userID] = stored
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
