package allocator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certflow/internal/core/category"
	"certflow/internal/core/counter"
	"certflow/internal/core/id"
)

func TestAllocate_SequentialCallsAreContiguous(t *testing.T) {
	store := counter.NewMemoryStore()
	alloc := New(store)
	ctx := context.Background()
	family := id.New()

	r1, err := alloc.Allocate(ctx, category.FiveYear, family, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"0000", "0001", "0002"}, r1.Strings())

	r2, err := alloc.Allocate(ctx, category.FiveYear, family, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"0003", "0004"}, r2.Strings())

	val, err := store.Get(ctx, counter.Key{Category: category.FiveYear, FamilyID: family})
	require.NoError(t, err)
	assert.Equal(t, int64(5), val)
}

func TestAllocate_CategoriesAreIndependent(t *testing.T) {
	store := counter.NewMemoryStore()
	alloc := New(store)
	ctx := context.Background()
	family := id.New()

	key10 := counter.Key{Category: category.TenYear, FamilyID: family}
	require.NoError(t, store.Set(ctx, key10, 100))

	r5, err := alloc.Allocate(ctx, category.FiveYear, family, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"0000", "0001"}, r5.Strings())

	r10, err := alloc.Allocate(ctx, category.TenYear, family, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"0100"}, r10.Strings())
}

func TestAllocate_ZeroQuantity(t *testing.T) {
	store := counter.NewMemoryStore()
	alloc := New(store)
	ctx := context.Background()
	family := id.New()

	rng, err := alloc.Allocate(ctx, category.FiveYear, family, 0)
	require.NoError(t, err)
	assert.True(t, rng.IsEmpty())

	val, err := store.Get(ctx, counter.Key{Category: category.FiveYear, FamilyID: family})
	require.NoError(t, err)
	assert.Equal(t, int64(0), val, "zero quantity must not touch the counter")
}

func TestAllocate_RejectsInvalidInput(t *testing.T) {
	alloc := New(counter.NewMemoryStore())
	ctx := context.Background()

	_, err := alloc.Allocate(ctx, category.FiveYear, id.New(), -1)
	assert.Error(t, err)

	_, err = alloc.Allocate(ctx, "3-year", id.New(), 1)
	assert.Error(t, err)

	_, err = alloc.Allocate(ctx, category.FiveYear, id.Nil(), 1)
	assert.Error(t, err)
}

func TestAllocate_OverflowDoesNotAdvanceCounter(t *testing.T) {
	store := counter.NewMemoryStore()
	alloc := New(store)
	ctx := context.Background()
	family := id.New()
	key := counter.Key{Category: category.FiveYear, FamilyID: family}

	require.NoError(t, store.Set(ctx, key, 9998))

	_, err := alloc.Allocate(ctx, category.FiveYear, family, 3)
	require.Error(t, err)

	val, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(9998), val, "failed allocation must be all-or-nothing")

	// The remaining space is still allocatable.
	rng, err := alloc.Allocate(ctx, category.FiveYear, family, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"9998", "9999"}, rng.Strings())
}

func TestAllocate_FailedSetSurfaces(t *testing.T) {
	boom := errors.New("disk on fire")
	store := &counter.MockStore{
		SetFunc: func(ctx context.Context, key counter.Key, value int64) error {
			return boom
		},
	}
	// MockStore implements Reserver; force the get/set path through a
	// wrapper exposing only Store.
	alloc := New(storeOnly{store})

	_, err := alloc.Allocate(context.Background(), category.FiveYear, id.New(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestAllocate_ConcurrentRangesAreDisjoint(t *testing.T) {
	store := counter.NewMemoryStore()
	alloc := New(store)
	ctx := context.Background()
	family := id.New()

	const workers = 20
	const perWorker = 5

	starts := make([]int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rng, err := alloc.Allocate(ctx, category.FiveYear, family, perWorker)
			if err != nil {
				t.Errorf("allocate: %v", err)
				return
			}
			starts[i] = rng.Start
		}(i)
	}
	wg.Wait()

	// Union of ranges must be the contiguous block [0, workers*perWorker).
	sort.Ints(starts)
	for i, s := range starts {
		assert.Equal(t, i*perWorker, s)
	}

	val, err := store.Get(ctx, counter.Key{Category: category.FiveYear, FamilyID: family})
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), val)
}

func TestAllocate_UsesReserverWhenAvailable(t *testing.T) {
	var reserved int64
	store := &counter.MockStore{
		ReserveFunc: func(ctx context.Context, key counter.Key, quantity int64) (int64, error) {
			reserved += quantity
			return reserved, nil
		},
		GetFunc: func(ctx context.Context, key counter.Key) (int64, error) {
			t.Fatal("Get must not be called when Reserve is available")
			return 0, nil
		},
	}
	alloc := New(store)

	rng, err := alloc.Allocate(context.Background(), category.FiveYear, id.New(), 4)
	require.NoError(t, err)
	assert.Equal(t, 0, rng.Start)
	assert.Equal(t, 4, rng.Quantity)
}

// storeOnly hides the Reserver implementation of the wrapped store.
type storeOnly struct {
	inner counter.Store
}

func (s storeOnly) Get(ctx context.Context, key counter.Key) (int64, error) {
	return s.inner.Get(ctx, key)
}

func (s storeOnly) Set(ctx context.Context, key counter.Key, value int64) error {
	return s.inner.Set(ctx, key, value)
}
