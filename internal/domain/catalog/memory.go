package catalog

import (
	"context"
	"sync"

	"certflow/internal/core/category"
	"certflow/internal/core/certnum"
)

// MemoryRepository is an in-memory catalog for tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	files map[category.Category]map[certnum.Number]File
}

// NewMemoryRepository creates an empty in-memory catalog.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{files: make(map[category.Category]map[certnum.Number]File)}
}

var _ Repository = (*MemoryRepository)(nil)

// Register implements Repository.
func (r *MemoryRepository) Register(ctx context.Context, f File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byNum, ok := r.files[f.Category]
	if !ok {
		byNum = make(map[certnum.Number]File)
		r.files[f.Category] = byNum
	}
	byNum[f.Number] = f
	return nil
}

// FindByNumbers implements Repository.
func (r *MemoryRepository) FindByNumbers(ctx context.Context, cat category.Category, numbers []certnum.Number) ([]File, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byNum := r.files[cat]
	var out []File
	for _, n := range numbers {
		if f, ok := byNum[n]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}
