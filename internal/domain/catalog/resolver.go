package catalog

import (
	"context"
	"sort"

	"certflow/internal/core/category"
	"certflow/internal/core/certnum"
	"certflow/pkg/logger"
)

// Resolver maps allocated certificate numbers to catalog files.
type Resolver struct {
	repo Repository
}

// NewResolver creates a resolver over the given catalog.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the catalog files for the given numbers, ascending by
// number, together with the numbers that have no catalog entry.
//
// Gaps are lenient: a missing file is logged and skipped, not an error.
// Callers surface the missing list so an operator can reconcile.
func (r *Resolver) Resolve(ctx context.Context, cat category.Category, numbers []certnum.Number) ([]File, []certnum.Number, error) {
	if err := cat.Valid(); err != nil {
		return nil, nil, err
	}
	if len(numbers) == 0 {
		return nil, nil, nil
	}

	files, err := r.repo.FindByNumbers(ctx, cat, numbers)
	if err != nil {
		return nil, nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Number < files[j].Number })

	found := make(map[certnum.Number]struct{}, len(files))
	for _, f := range files {
		found[f.Number] = struct{}{}
	}

	var missing []certnum.Number
	for _, n := range numbers {
		if _, ok := found[n]; !ok {
			missing = append(missing, n)
			logger.Warn(ctx, "no catalog file for allocated certificate number",
				"category", cat,
				"number", n.String(),
			)
		}
	}

	return files, missing, nil
}
