package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"certflow/internal/core/id"
	"certflow/internal/domain/permissions"
)

var _ permissions.Table = (*PermissionRepository)(nil)

// PermissionRepository stores download grants in the download_permissions
// table.
type PermissionRepository struct {
	db QuerierProvider
}

// NewPermissionRepository creates a permission repository.
func NewPermissionRepository(db QuerierProvider) *PermissionRepository {
	return &PermissionRepository{db: db}
}

func (r *PermissionRepository) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Grant inserts one permission row.
func (r *PermissionRepository) Grant(ctx context.Context, p permissions.Permission) error {
	if id.IsNil(p.ID) {
		p.ID = id.New()
	}
	if p.GrantedAt.IsZero() {
		p.GrantedAt = time.Now().UTC()
	}

	querier := r.db.GetQuerier(ctx)

	_, err := querier.Exec(ctx, `
		INSERT INTO download_permissions
			(id, product_id, variation_id, order_id, user_id, fingerprint, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.ProductID, p.VariationID, p.OrderID, p.UserID, p.Fingerprint, p.GrantedAt)
	if err != nil {
		return fmt.Errorf("grant permission for order %s: %w", p.OrderID, err)
	}
	return nil
}

// Revoke deletes all rows matching the variation/order/user triple.
// Deleting zero rows is not an error.
func (r *PermissionRepository) Revoke(ctx context.Context, variationID, orderID, userID id.ID) error {
	querier := r.db.GetQuerier(ctx)

	_, err := querier.Exec(ctx, `
		DELETE FROM download_permissions
		WHERE variation_id = $1 AND order_id = $2 AND user_id = $3
	`, variationID, orderID, userID)
	if err != nil {
		return fmt.Errorf("revoke permissions for order %s: %w", orderID, err)
	}
	return nil
}

// ListByOrder returns the active rows for an order, oldest first.
func (r *PermissionRepository) ListByOrder(ctx context.Context, orderID id.ID) ([]permissions.Permission, error) {
	sql, args, err := r.builder().
		Select("id", "product_id", "variation_id", "order_id", "user_id", "fingerprint", "granted_at").
		From("download_permissions").
		Where(squirrel.Eq{"order_id": orderID}).
		OrderBy("granted_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build permissions query: %w", err)
	}

	querier := r.db.GetQuerier(ctx)

	var rows []permissions.Permission
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list permissions for order %s: %w", orderID, err)
	}
	return rows, nil
}
