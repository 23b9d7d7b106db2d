package dedup

import (
	"context"
	"fmt"

	"github.com/feishu-bots/larkbot/internal/db"
)

// Store is the dedup gate: it records which inbound message ids have
// already been handled. Records are append-only and never expire.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// HasProcessed reports whether a processed record exists for the message id.
// It is a cheap pre-check only; concurrent deliveries racing past it are
// resolved by Claim.
func (s *Store) HasProcessed(ctx context.Context, messageID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM processed_messages WHERE message_id = ?",
		messageID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("querying processed record: %w", err)
	}
	return exists > 0, nil
}

// Claim inserts the processed record for the message id. It returns false
// when the record already exists, i.e. another delivery won the claim.
// The conflict path relies on the primary key on message_id.
func (s *Store) Claim(ctx context.Context, messageID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_messages (message_id) VALUES (?) ON CONFLICT(message_id) DO NOTHING",
		messageID,
	)
	if err != nil {
		return false, fmt.Errorf("claiming message %s: %w", messageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claiming message %s: %w", messageID, err)
	}
	return n == 1, nil
}
