package counter

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and single-node setups.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]int64)}
}

// Ensure compile-time interface compliance.
var _ Store = (*MemoryStore)(nil)

// Get returns the counter value, 0 when absent.
func (s *MemoryStore) Get(ctx context.Context, key Key) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key.String()], nil
}

// Set stores the counter value.
func (s *MemoryStore) Set(ctx context.Context, key Key, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key.String()] = value
	return nil
}

// MockStore is a test Store with injectable behavior.
type MockStore struct {
	GetFunc     func(ctx context.Context, key Key) (int64, error)
	SetFunc     func(ctx context.Context, key Key, value int64) error
	ReserveFunc func(ctx context.Context, key Key, quantity int64) (int64, error)
}

// Get implements Store.
func (m *MockStore) Get(ctx context.Context, key Key) (int64, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return 0, nil
}

// Set implements Store.
func (m *MockStore) Set(ctx context.Context, key Key, value int64) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value)
	}
	return nil
}

// Reserve implements Reserver.
func (m *MockStore) Reserve(ctx context.Context, key Key, quantity int64) (int64, error) {
	if m.ReserveFunc != nil {
		return m.ReserveFunc(ctx, key, quantity)
	}
	return 0, nil
}

var (
	_ Store    = (*MockStore)(nil)
	_ Reserver = (*MockStore)(nil)
)
