package deliveries

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/feishu-bots/larkbot/internal/db"
)

// Store provides append and query operations for the delivery log.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Log inserts a new delivery entry. If entry.ID is empty a UUID is generated.
func (s *Store) Log(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, message_id, outcome, detail)
		VALUES (?, ?, ?, ?)`,
		entry.ID,
		entry.MessageID,
		string(entry.Outcome),
		entry.Detail,
	)
	if err != nil {
		return fmt.Errorf("inserting delivery entry: %w", err)
	}
	return nil
}

// Recent returns the most recent delivery entries, newest first.
// A non-positive limit defaults to 50.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, outcome, detail, created_at
		FROM deliveries
		ORDER BY created_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			outcome string
			ts      string
		)
		if err := rows.Scan(&e.ID, &e.MessageID, &outcome, &e.Detail, &ts); err != nil {
			return nil, fmt.Errorf("scanning delivery entry: %w", err)
		}
		e.Outcome = Outcome(outcome)
		if t, parseErr := time.Parse(time.DateTime, ts); parseErr == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByOutcome returns how many deliveries ended with the given outcome.
func (s *Store) CountByOutcome(ctx context.Context, outcome Outcome) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM deliveries WHERE outcome = ?",
		string(outcome),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting deliveries: %w", err)
	}
	return count, nil
}
