package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SeenStore implements state.SeenStore on Postgres, for deployments that
// already run one and want seen state to survive host replacement.
type SeenStore struct {
	pool *pgxpool.Pool
}

// NewSeenStore wraps a connection pool as a seen-state store.
func NewSeenStore(pool *pgxpool.Pool) *SeenStore {
	return &SeenStore{pool: pool}
}

// EnsureSchema creates the seen-state table if it does not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS notified_message_ids (
			user_id     TEXT PRIMARY KEY,
			message_ids BIGINT[] NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure notified_message_ids table: %w", err)
	}
	return nil
}

// Load returns the persisted id set for the user, if any.
func (s *SeenStore) Load(ctx context.Context, userID string) ([]int64, bool, error) {
	var ids []int64
	err := s.pool.QueryRow(ctx, `
		SELECT message_ids FROM notified_message_ids WHERE user_id = $1
	`, userID).Scan(&ids)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load seen state for %s: %w", userID, err)
	}

	return ids, true, nil
}

// Save replaces the persisted id set for the user.
func (s *SeenStore) Save(ctx context.Context, userID string, ids []int64) error {
	if ids == nil {
		ids = []int64{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO notified_message_ids (user_id, message_ids, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET message_ids = EXCLUDED.message_ids, updated_at = now()
	`, userID, ids)

	if err != nil {
		return fmt.Errorf("failed to save seen state for %s: %w", userID, err)
	}

	return nil
}

// Close closes the underlying pool.
func (s *SeenStore) Close() error {
	CloseConnection(s.pool)
	return nil
}
