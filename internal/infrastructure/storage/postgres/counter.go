package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"certflow/internal/core/counter"
)

// Compile-time checks: CounterStore is both plain storage and an atomic
// reserver, so the allocator takes the single-statement path.
var (
	_ counter.Store    = (*CounterStore)(nil)
	_ counter.Reserver = (*CounterStore)(nil)
)

// CounterStore persists certificate counters in the cert_counters table.
// One row per (category, family), next_val holding the next number to
// hand out.
type CounterStore struct {
	db QuerierProvider
}

// NewCounterStore creates a counter store.
func NewCounterStore(db QuerierProvider) *CounterStore {
	return &CounterStore{db: db}
}

// Get returns the counter value, or 0 when no row exists yet.
func (s *CounterStore) Get(ctx context.Context, key counter.Key) (int64, error) {
	q := s.db.GetQuerier(ctx)

	var val int64
	err := q.QueryRow(ctx, `
		SELECT next_val FROM cert_counters
		WHERE category = $1 AND family_id = $2
	`, string(key.Category), key.FamilyID).Scan(&val)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get counter %s: %w", key, err)
	}
	return val, nil
}

// Set writes the counter value, creating the row on first use.
func (s *CounterStore) Set(ctx context.Context, key counter.Key, value int64) error {
	q := s.db.GetQuerier(ctx)

	_, err := q.Exec(ctx, `
		INSERT INTO cert_counters (category, family_id, next_val, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (category, family_id)
		DO UPDATE SET next_val = $3, updated_at = NOW()
	`, string(key.Category), key.FamilyID, value)
	if err != nil {
		return fmt.Errorf("set counter %s: %w", key, err)
	}
	return nil
}

// Reserve atomically advances the counter by quantity and returns the new
// value (the end of the reserved block). A single upsert keeps the
// reservation race-free across processes; the database serializes
// concurrent callers on the row lock.
func (s *CounterStore) Reserve(ctx context.Context, key counter.Key, quantity int64) (int64, error) {
	q := s.db.GetQuerier(ctx)

	var end int64
	err := q.QueryRow(ctx, `
		INSERT INTO cert_counters (category, family_id, next_val, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (category, family_id)
		DO UPDATE SET next_val = cert_counters.next_val + $3, updated_at = NOW()
		RETURNING next_val
	`, string(key.Category), key.FamilyID, quantity).Scan(&end)
	if err != nil {
		return 0, fmt.Errorf("reserve %d numbers for %s: %w", quantity, key, err)
	}
	return end, nil
}
