// Package catalog provides the certificate file catalog and the resolver
// that turns an allocated number range into concrete files.
package catalog

import (
	"context"

	"certflow/internal/core/category"
	"certflow/internal/core/certnum"
	"certflow/internal/core/id"
)

// File is one registered certificate document, keyed by (category, number).
// Read-only from the fulfillment core's perspective.
type File struct {
	ID       id.ID             `db:"id" json:"id"`
	Category category.Category `db:"category" json:"category"`
	Number   certnum.Number    `db:"number" json:"number"`
	Title    string            `db:"title" json:"title"`
	FilePath string            `db:"file_path" json:"file_path"`
}

// Repository queries the certificate catalog.
type Repository interface {
	// FindByNumbers returns the files matching the category and any of the
	// given numbers, ascending by number.
	FindByNumbers(ctx context.Context, cat category.Category, numbers []certnum.Number) ([]File, error)

	// Register adds a file to the catalog, replacing an existing entry for
	// the same (category, number).
	Register(ctx context.Context, f File) error
}
