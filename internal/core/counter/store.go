// Package counter provides the domain contract for durable certificate
// counters. Implementations live in the infrastructure layer.
package counter

import (
	"context"
	"fmt"

	"certflow/internal/core/category"
	"certflow/internal/core/id"
)

// Key addresses one counter: a certificate category within a product family.
// Variations of the same parent product share the family's counter.
type Key struct {
	Category category.Category
	FamilyID id.ID
}

// String renders the key in its storage form.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Category, k.FamilyID)
}

// Store is durable counter storage. Pure storage, no arithmetic: the
// value is the next certificate number to hand out.
//
// Get returns 0 for an absent counter, never an ambiguous null.
type Store interface {
	Get(ctx context.Context, key Key) (int64, error)
	Set(ctx context.Context, key Key, value int64) error
}

// Reserver is an optional fast path a Store may implement: atomically
// advance the counter by quantity and return the new value, i.e. the end
// of the reserved block. A single-statement implementation (e.g. an
// UPSERT..RETURNING) makes the reservation safe across processes, not
// just goroutines.
type Reserver interface {
	Reserve(ctx context.Context, key Key, quantity int64) (end int64, err error)
}
