package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// seenKeyPrefix namespaces seen-state keys so the store can grow other
// record kinds later without a migration.
const seenKeyPrefix = "seen:"

// PebbleStore persists seen state in an embedded pebble database. This is
// the default durable backend: no external service, one directory on disk.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) the pebble database at path.
func OpenPebble(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

// Load returns the persisted id set for the user, if any.
func (s *PebbleStore) Load(_ context.Context, userID string) ([]int64, bool, error) {
	value, closer, err := s.db.Get(seenKey(userID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read seen state for %s: %w", userID, err)
	}
	defer func() { _ = closer.Close() }()

	var ids []int64
	if err := json.Unmarshal(value, &ids); err != nil {
		return nil, false, fmt.Errorf("failed to decode seen state for %s: %w", userID, err)
	}
	return ids, true, nil
}

// Save replaces the persisted id set for the user. Writes are synced; a
// crash must not resurrect already-notified ids.
func (s *PebbleStore) Save(_ context.Context, userID string, ids []int64) error {
	value, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode seen state for %s: %w", userID, err)
	}
	if err := s.db.Set(seenKey(userID), value, pebble.Sync); err != nil {
		return fmt.Errorf("failed to write seen state for %s: %w", userID, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func seenKey(userID string) []byte {
	return []byte(seenKeyPrefix + userID)
}
