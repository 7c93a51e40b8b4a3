package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certflow/internal/core/apperror"
	"certflow/internal/core/category"
	"certflow/internal/core/counter"
	"certflow/internal/core/id"
	"certflow/internal/domain/allocator"
	"certflow/internal/domain/archive"
	"certflow/internal/domain/catalog"
	"certflow/internal/domain/fulfillment"
	"certflow/internal/domain/metastore"
	"certflow/internal/domain/orders"
	"certflow/internal/domain/permissions"
	"certflow/internal/infrastructure/http/v1/dto"
)

// stuckBuilder fails every archive build.
type stuckBuilder struct{}

func (stuckBuilder) Build(context.Context, string, []string, archive.Options) error {
	return errors.New("disk full")
}

func TestFulfill_DegradedRunReportsError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	source := orders.NewMemorySource()
	meta := metastore.NewMemoryStore()
	perms := permissions.NewMemoryTable()
	var5 := id.New()

	order := &orders.Order{
		ID:         id.New(),
		Number:     "ORD-2001",
		CustomerID: id.New(),
		Email:      "buyer@example.com",
		Paid:       true,
		Items: []orders.LineItem{{
			ID:           id.New(),
			ProductID:    id.New(),
			VariationID:  var5,
			ProductName:  "Tree Certificates",
			Quantity:     1,
			UnitPrice:    decimal.NewFromInt(25),
			Downloadable: true,
		}},
	}
	source.Put(order)

	svc := fulfillment.NewService(
		source,
		allocator.New(counter.NewMemoryStore()),
		catalog.NewResolver(catalog.NewMemoryRepository()),
		stuckBuilder{},
		meta,
		perms,
		category.VariationMap{var5: category.FiveYear},
		nil,
		fulfillment.Config{DestDir: t.TempDir(), BaseURL: "https://shop.example/downloads"},
	)
	h := NewFulfillmentHandler(svc, meta, perms)

	router := gin.New()
	router.POST("/orders/:id/fulfill", h.Fulfill)

	req := httptest.NewRequest(http.MethodPost, "/orders/"+order.ID.String()+"/fulfill", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Numbers were allocated but the archive failed: the caller must see
	// a retryable status, not a success.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp dto.FulfillResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(fulfillment.StatusNumbersAllocated), resp.Status)
	assert.False(t, resp.Granted)
	assert.NotEmpty(t, resp.Records)
	assert.Equal(t, apperror.CodeArchiveBuild, resp.ErrorCode)
	assert.NotEmpty(t, resp.Error)
}
