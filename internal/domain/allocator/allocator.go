// Package allocator reserves contiguous blocks of certificate numbers
// from the shared per-(category, family) counters.
package allocator

import (
	"context"
	"sync"

	"certflow/internal/core/apperror"
	"certflow/internal/core/category"
	"certflow/internal/core/certnum"
	"certflow/internal/core/counter"
	"certflow/internal/core/id"
	"certflow/pkg/logger"
)

// Allocator hands out non-overlapping certificate number ranges.
//
// Allocation is serialized per counter key with a keyed mutex, so two
// orders touching the same (category, family) counter can never both read
// the same start value. When the store also implements counter.Reserver
// the advance is a single atomic statement and the mutex only orders
// callers within this process.
type Allocator struct {
	store counter.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an allocator over the given counter store.
func New(store counter.Store) *Allocator {
	return &Allocator{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

// keyLock returns the mutex serializing allocation for one counter key.
func (a *Allocator) keyLock(key counter.Key) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := key.String()
	l, ok := a.locks[k]
	if !ok {
		l = &sync.Mutex{}
		a.locks[k] = l
	}
	return l
}

// Allocate reserves quantity contiguous numbers for the given category and
// product family, advancing the counter past the reserved block.
//
// A zero quantity returns an empty range and leaves the counter untouched.
// Invalid input is rejected before any mutation: a failed allocation never
// advances the counter.
func (a *Allocator) Allocate(ctx context.Context, cat category.Category, familyID id.ID, quantity int) (certnum.Range, error) {
	if err := cat.Valid(); err != nil {
		return certnum.Range{}, apperror.NewAllocation(err.Error())
	}
	if id.IsNil(familyID) {
		return certnum.Range{}, apperror.NewAllocation("product family id is required")
	}
	if quantity < 0 {
		return certnum.Range{}, apperror.NewAllocation("quantity must not be negative").
			WithDetail("quantity", quantity)
	}
	if quantity == 0 {
		return certnum.Range{}, nil
	}

	key := counter.Key{Category: cat, FamilyID: familyID}

	lock := a.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if reserver, ok := a.store.(counter.Reserver); ok {
		return a.allocateAtomic(ctx, reserver, key, quantity)
	}
	return a.allocateGetSet(ctx, key, quantity)
}

// allocateGetSet performs read-modify-write under the key lock.
func (a *Allocator) allocateGetSet(ctx context.Context, key counter.Key, quantity int) (certnum.Range, error) {
	start, err := a.store.Get(ctx, key)
	if err != nil {
		return certnum.Range{}, apperror.NewAllocation("read counter").WithCause(err).
			WithDetail("key", key.String())
	}

	rng, err := certnum.NewRange(int(start), quantity)
	if err != nil {
		// Out of numbering space: reject before the counter moves.
		return certnum.Range{}, apperror.NewAllocation(err.Error()).
			WithDetail("key", key.String()).
			WithDetail("start", start).
			WithDetail("quantity", quantity)
	}

	if err := a.store.Set(ctx, key, int64(rng.End())); err != nil {
		return certnum.Range{}, apperror.NewAllocation("advance counter").WithCause(err).
			WithDetail("key", key.String())
	}

	logger.Debug(ctx, "certificate range allocated",
		"key", key.String(),
		"start", rng.Start,
		"quantity", rng.Quantity,
	)
	return rng, nil
}

// allocateAtomic advances the counter in one statement and derives the
// block start from the returned value.
func (a *Allocator) allocateAtomic(ctx context.Context, reserver counter.Reserver, key counter.Key, quantity int) (certnum.Range, error) {
	end, err := reserver.Reserve(ctx, key, int64(quantity))
	if err != nil {
		return certnum.Range{}, apperror.NewAllocation("reserve range").WithCause(err).
			WithDetail("key", key.String())
	}

	start := int(end) - quantity
	rng, err := certnum.NewRange(start, quantity)
	if err != nil {
		// The counter already moved; the numbers are skewed but will never
		// be reused or truncated. Surface loudly for the operator.
		logger.Error(ctx, "allocated range exceeds numbering width",
			"key", key.String(),
			"start", start,
			"quantity", quantity,
		)
		return certnum.Range{}, apperror.NewAllocation(err.Error()).
			WithDetail("key", key.String()).
			WithDetail("start", start).
			WithDetail("quantity", quantity)
	}

	logger.Debug(ctx, "certificate range allocated",
		"key", key.String(),
		"start", rng.Start,
		"quantity", rng.Quantity,
	)
	return rng, nil
}
