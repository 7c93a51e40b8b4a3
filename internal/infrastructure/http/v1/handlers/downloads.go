package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"certflow/internal/core/apperror"
	"certflow/internal/domain/metastore"
	"certflow/internal/domain/orders"
	"certflow/internal/infrastructure/http/v1/dto"
)

// recentOrdersLimit caps the account downloads listing.
const recentOrdersLimit = 20

// DownloadsHandler serves the account "certificate downloads" listing.
type DownloadsHandler struct {
	*BaseHandler
	source  orders.Source
	meta    metastore.Store
	baseURL string
}

// NewDownloadsHandler creates a downloads handler.
func NewDownloadsHandler(source orders.Source, meta metastore.Store, baseURL string) *DownloadsHandler {
	return &DownloadsHandler{
		BaseHandler: NewBaseHandler(),
		source:      source,
		meta:        meta,
		baseURL:     strings.TrimRight(baseURL, "/"),
	}
}

// List returns the caller's archive entries, one per paid recent order.
// Unpaid orders never produce an entry. Admins may inspect any account.
// GET /api/v1/accounts/:userID/downloads
func (h *DownloadsHandler) List(c *gin.Context) {
	userID, ok := h.ParseIDParam(c, "userID")
	if !ok {
		return
	}

	caller := h.GetUser(c)
	if caller == nil {
		h.Error(c, apperror.NewUnauthorized("authentication required"))
		return
	}
	if !caller.IsAdmin && caller.UserID != userID.String() {
		h.Error(c, apperror.NewForbidden("cannot access another account's downloads"))
		return
	}

	ctx := c.Request.Context()

	archiveFile, err := h.meta.Get(ctx, metastore.KindUser, userID.String(), metastore.KeyCertificateZip)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := dto.DownloadsResponse{UserID: userID.String(), Entries: []dto.DownloadEntry{}}

	if archiveFile == "" {
		c.JSON(http.StatusOK, resp)
		return
	}

	recent, err := h.source.ListRecentByCustomer(ctx, userID, recentOrdersLimit)
	if err != nil {
		h.Error(c, err)
		return
	}

	for _, o := range recent {
		if !o.Paid {
			continue
		}
		resp.Entries = append(resp.Entries, dto.DownloadEntry{
			OrderID:     o.ID.String(),
			OrderNumber: o.Number,
			CreatedAt:   o.CreatedAt,
			ArchiveFile: archiveFile,
			DownloadURL: h.baseURL + "/" + archiveFile,
		})
	}

	c.JSON(http.StatusOK, resp)
}
