// Package orders models the host platform's orders as consumed by the
// fulfillment core. The platform owns the data; we only read it.
package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"certflow/internal/core/id"
)

// LineItem is one purchased line of an order.
type LineItem struct {
	ID          id.ID           `db:"id" json:"id"`
	ProductID   id.ID           `db:"product_id" json:"product_id"`
	VariationID id.ID           `db:"variation_id" json:"variation_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`

	// Downloadable marks items that earn certificate downloads.
	Downloadable bool `db:"downloadable" json:"downloadable"`
}

// Total returns quantity * unit price.
func (li LineItem) Total() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Order is a purchase with its line items in platform order.
type Order struct {
	ID         id.ID      `db:"id" json:"id"`
	Number     string     `db:"number" json:"number"`
	CustomerID id.ID      `db:"customer_id" json:"customer_id"`
	Email      string     `db:"email" json:"email"`
	Paid       bool       `db:"paid" json:"paid"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	Items      []LineItem `db:"-" json:"items"`
}

// DownloadableItems returns the items that earn certificates, in order.
func (o *Order) DownloadableItems() []LineItem {
	var out []LineItem
	for _, it := range o.Items {
		if it.Downloadable {
			out = append(out, it)
		}
	}
	return out
}

// Source reads orders from the host platform.
type Source interface {
	GetByID(ctx context.Context, orderID id.ID) (*Order, error)

	// ListRecentByCustomer returns the customer's newest orders first,
	// at most limit of them. Items are not loaded.
	ListRecentByCustomer(ctx context.Context, customerID id.ID, limit int) ([]Order, error)
}
