// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"time"

	"certflow/internal/core/apperror"
	"certflow/internal/domain/fulfillment"
)

// FulfillResponse reports the outcome of a fulfillment run. Error and
// ErrorCode are set when the pipeline stopped early; Status then shows
// the last step that completed.
type FulfillResponse struct {
	OrderID        string            `json:"order_id"`
	Status         string            `json:"status"`
	Records        map[string]string `json:"records,omitempty"`
	ArchiveFile    string            `json:"archive_file,omitempty"`
	MissingNumbers []string          `json:"missing_numbers,omitempty"`
	Granted        bool              `json:"permission_granted"`
	Reused         bool              `json:"numbers_reused"`
	ItemErrors     []string          `json:"item_errors,omitempty"`
	Error          string            `json:"error,omitempty"`
	ErrorCode      string            `json:"error_code,omitempty"`
}

// NewFulfillResponse maps a fulfillment result to its API shape.
func NewFulfillResponse(r *fulfillment.Result) FulfillResponse {
	records := make(map[string]string, len(r.Records))
	for cat, rec := range r.Records {
		records[string(cat)] = rec
	}
	return FulfillResponse{
		OrderID:        r.OrderID.String(),
		Status:         string(r.Status),
		Records:        records,
		ArchiveFile:    r.ArchiveFile,
		MissingNumbers: r.Missing,
		Granted:        r.Granted,
		Reused:         r.Reused,
		ItemErrors:     r.ItemErrors,
	}
}

// NewPartialFulfillResponse maps a result whose pipeline stopped early,
// attaching the stopping error so webhook callers can tell a degraded
// run from a completed one.
func NewPartialFulfillResponse(r *fulfillment.Result, err error) FulfillResponse {
	resp := NewFulfillResponse(r)
	if appErr, ok := apperror.AsAppError(err); ok {
		resp.Error = appErr.Message
		resp.ErrorCode = appErr.Code
	} else {
		resp.Error = err.Error()
		resp.ErrorCode = apperror.CodeInternal
	}
	return resp
}

// CertificateRecord is one per-category number record of an order.
type CertificateRecord struct {
	Category string `json:"category"`
	Numbers  string `json:"numbers"`
}

// PermissionInfo is one download grant row.
type PermissionInfo struct {
	ProductID   string    `json:"product_id"`
	VariationID string    `json:"variation_id"`
	Fingerprint string    `json:"fingerprint"`
	GrantedAt   time.Time `json:"granted_at"`
}

// OrderCertificatesResponse is the admin view of an order's certificates.
type OrderCertificatesResponse struct {
	OrderID     string              `json:"order_id"`
	Records     []CertificateRecord `json:"records"`
	Permissions []PermissionInfo    `json:"permissions"`
}

// DownloadEntry is one row of the account downloads listing.
type DownloadEntry struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	CreatedAt   time.Time `json:"created_at"`
	ArchiveFile string    `json:"archive_file"`
	DownloadURL string    `json:"download_url"`
}

// DownloadsResponse lists the caller's certificate archives.
type DownloadsResponse struct {
	UserID  string          `json:"user_id"`
	Entries []DownloadEntry `json:"entries"`
}
