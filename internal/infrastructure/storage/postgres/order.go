package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"certflow/internal/core/apperror"
	"certflow/internal/core/id"
	"certflow/internal/domain/orders"
)

var _ orders.Source = (*OrderRepository)(nil)

// OrderRepository reads orders and their line items from the platform
// tables. The fulfillment core never writes here.
type OrderRepository struct {
	db QuerierProvider
}

// NewOrderRepository creates an order repository.
func NewOrderRepository(db QuerierProvider) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// GetByID loads an order with its line items in insertion order.
func (r *OrderRepository) GetByID(ctx context.Context, orderID id.ID) (*orders.Order, error) {
	querier := r.db.GetQuerier(ctx)

	sql, args, err := r.builder().
		Select("id", "number", "customer_id", "email", "paid", "created_at").
		From("orders").
		Where(squirrel.Eq{"id": orderID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build order query: %w", err)
	}

	var order orders.Order
	if err := pgxscan.Get(ctx, querier, &order, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("order", orderID)
		}
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}

	sql, args, err = r.builder().
		Select("id", "product_id", "variation_id", "product_name", "quantity", "unit_price", "downloadable").
		From("order_items").
		Where(squirrel.Eq{"order_id": orderID}).
		OrderBy("position ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build order items query: %w", err)
	}

	if err := pgxscan.Select(ctx, querier, &order.Items, sql, args...); err != nil {
		return nil, fmt.Errorf("get order items for %s: %w", orderID, err)
	}

	return &order, nil
}

// ListRecentByCustomer returns the customer's newest orders, items not
// loaded.
func (r *OrderRepository) ListRecentByCustomer(ctx context.Context, customerID id.ID, limit int) ([]orders.Order, error) {
	q := r.builder().
		Select("id", "number", "customer_id", "email", "paid", "created_at").
		From("orders").
		Where(squirrel.Eq{"customer_id": customerID}).
		OrderBy("created_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent orders query: %w", err)
	}

	querier := r.db.GetQuerier(ctx)

	var out []orders.Order
	if err := pgxscan.Select(ctx, querier, &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list orders for customer %s: %w", customerID, err)
	}
	return out, nil
}
