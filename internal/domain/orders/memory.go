package orders

import (
	"context"
	"sort"
	"sync"

	"certflow/internal/core/apperror"
	"certflow/internal/core/id"
)

// MemorySource is an in-memory Source for tests.
type MemorySource struct {
	mu     sync.RWMutex
	orders map[id.ID]*Order
}

// NewMemorySource creates an empty in-memory order source.
func NewMemorySource() *MemorySource {
	return &MemorySource{orders: make(map[id.ID]*Order)}
}

var _ Source = (*MemorySource)(nil)

// Put stores an order.
func (s *MemorySource) Put(o *Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
}

// GetByID implements Source.
func (s *MemorySource) GetByID(ctx context.Context, orderID id.ID) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, apperror.NewNotFound("order", orderID)
	}
	return o, nil
}

// ListRecentByCustomer implements Source.
func (s *MemorySource) ListRecentByCustomer(ctx context.Context, customerID id.ID, limit int) ([]Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Order
	for _, o := range s.orders {
		if o.CustomerID == customerID {
			cp := *o
			cp.Items = nil
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
