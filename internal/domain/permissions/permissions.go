// Package permissions models the platform's downloadable-product
// permission table as consumed by the fulfillment core.
package permissions

import (
	"context"
	"sync"
	"time"

	"certflow/internal/core/id"
)

// Permission is one download-access row. Fingerprint is the content-derived
// identifier of the artifact the permission unlocks.
type Permission struct {
	ID          id.ID     `db:"id" json:"id"`
	ProductID   id.ID     `db:"product_id" json:"product_id"`
	VariationID id.ID     `db:"variation_id" json:"variation_id"`
	OrderID     id.ID     `db:"order_id" json:"order_id"`
	UserID      id.ID     `db:"user_id" json:"user_id"`
	Fingerprint string    `db:"fingerprint" json:"fingerprint"`
	GrantedAt   time.Time `db:"granted_at" json:"granted_at"`
}

// Table is the platform permission store.
type Table interface {
	// Grant inserts one permission row.
	Grant(ctx context.Context, p Permission) error

	// Revoke deletes all rows matching the variation/order/user triple.
	Revoke(ctx context.Context, variationID, orderID, userID id.ID) error

	// ListByOrder returns the active rows for an order.
	ListByOrder(ctx context.Context, orderID id.ID) ([]Permission, error)
}

// MemoryTable is an in-memory Table for tests.
type MemoryTable struct {
	mu   sync.Mutex
	rows []Permission
}

// NewMemoryTable creates an empty in-memory permission table.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{}
}

var _ Table = (*MemoryTable)(nil)

// Grant implements Table.
func (t *MemoryTable) Grant(ctx context.Context, p Permission) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id.IsNil(p.ID) {
		p.ID = id.New()
	}
	if p.GrantedAt.IsZero() {
		p.GrantedAt = time.Now().UTC()
	}
	t.rows = append(t.rows, p)
	return nil
}

// Revoke implements Table.
func (t *MemoryTable) Revoke(ctx context.Context, variationID, orderID, userID id.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.rows[:0]
	for _, r := range t.rows {
		if r.VariationID == variationID && r.OrderID == orderID && r.UserID == userID {
			continue
		}
		kept = append(kept, r)
	}
	t.rows = kept
	return nil
}

// ListByOrder implements Table.
func (t *MemoryTable) ListByOrder(ctx context.Context, orderID id.ID) ([]Permission, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Permission
	for _, r := range t.rows {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	return out, nil
}
