package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"certflow/internal/core/category"
	"certflow/internal/core/certnum"
	"certflow/internal/core/id"
	"certflow/internal/domain/catalog"
)

var _ catalog.Repository = (*CertFileRepository)(nil)

// CertFileRepository stores the certificate catalog in the cert_files
// table, keyed by (category, number).
type CertFileRepository struct {
	db QuerierProvider
}

// NewCertFileRepository creates a certificate file repository.
func NewCertFileRepository(db QuerierProvider) *CertFileRepository {
	return &CertFileRepository{db: db}
}

func (r *CertFileRepository) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// FindByNumbers returns the files matching any of the numbers, ascending
// by number. Numbers without a row are simply absent from the result.
func (r *CertFileRepository) FindByNumbers(ctx context.Context, cat category.Category, numbers []certnum.Number) ([]catalog.File, error) {
	if len(numbers) == 0 {
		return nil, nil
	}

	nums := make([]int, len(numbers))
	for i, n := range numbers {
		nums[i] = int(n)
	}

	sql, args, err := r.builder().
		Select("id", "category", "number", "title", "file_path").
		From("cert_files").
		Where(squirrel.Eq{"category": string(cat)}).
		Where(squirrel.Eq{"number": nums}).
		OrderBy("number ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build cert_files query: %w", err)
	}

	querier := r.db.GetQuerier(ctx)

	var files []catalog.File
	if err := pgxscan.Select(ctx, querier, &files, sql, args...); err != nil {
		return nil, fmt.Errorf("find certificate files: %w", err)
	}
	return files, nil
}

// Register adds a file to the catalog, replacing an existing entry for
// the same (category, number).
func (r *CertFileRepository) Register(ctx context.Context, f catalog.File) error {
	if id.IsNil(f.ID) {
		f.ID = id.New()
	}

	querier := r.db.GetQuerier(ctx)

	_, err := querier.Exec(ctx, `
		INSERT INTO cert_files (id, category, number, title, file_path, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (category, number)
		DO UPDATE SET title = $4, file_path = $5, updated_at = NOW()
	`, f.ID, string(f.Category), int(f.Number), f.Title, f.FilePath)
	if err != nil {
		return fmt.Errorf("register certificate file %s/%s: %w", f.Category, f.Number, err)
	}
	return nil
}
