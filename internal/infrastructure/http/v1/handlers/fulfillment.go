package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"certflow/internal/core/apperror"
	"certflow/internal/core/category"
	"certflow/internal/domain/fulfillment"
	"certflow/internal/domain/metastore"
	"certflow/internal/domain/permissions"
	"certflow/internal/infrastructure/http/v1/dto"
)

// FulfillmentHandler exposes the fulfillment pipeline over HTTP.
type FulfillmentHandler struct {
	*BaseHandler
	service *fulfillment.Service
	meta    metastore.Store
	perms   permissions.Table
}

// NewFulfillmentHandler creates a fulfillment handler.
func NewFulfillmentHandler(service *fulfillment.Service, meta metastore.Store, perms permissions.Table) *FulfillmentHandler {
	return &FulfillmentHandler{
		BaseHandler: NewBaseHandler(),
		service:     service,
		meta:        meta,
		perms:       perms,
	}
}

// Fulfill runs the pipeline for one order. Safe to call repeatedly: an
// already fulfilled order reuses its numbers and archive.
// POST /api/v1/orders/:id/fulfill
func (h *FulfillmentHandler) Fulfill(c *gin.Context) {
	orderID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	result, err := h.service.FulfillOrder(c.Request.Context(), orderID)
	if err != nil {
		// A partial result still tells the caller how far the pipeline
		// got, but the status code must say the run is incomplete so the
		// webhook retries.
		if result != nil {
			c.JSON(apperror.GetHTTPStatus(err), dto.NewPartialFulfillResponse(result, err))
			return
		}
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewFulfillResponse(result))
}

// Certificates returns the recorded certificate numbers and download
// grants for an order.
// GET /api/v1/orders/:id/certificates
func (h *FulfillmentHandler) Certificates(c *gin.Context) {
	orderID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	resp := dto.OrderCertificatesResponse{OrderID: orderID.String()}

	for _, cat := range category.All() {
		record, err := h.meta.Get(ctx, metastore.KindOrder, orderID.String(), cat.RecordKey())
		if err != nil {
			h.Error(c, err)
			return
		}
		if record == "" {
			continue
		}
		resp.Records = append(resp.Records, dto.CertificateRecord{
			Category: string(cat),
			Numbers:  record,
		})
	}

	rows, err := h.perms.ListByOrder(ctx, orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	for _, p := range rows {
		resp.Permissions = append(resp.Permissions, dto.PermissionInfo{
			ProductID:   p.ProductID.String(),
			VariationID: p.VariationID.String(),
			Fingerprint: p.Fingerprint,
			GrantedAt:   p.GrantedAt,
		})
	}

	c.JSON(http.StatusOK, resp)
}
