// Package fulfillment drives certificate delivery for paid orders:
// allocate numbers, record them, assemble the archive, grant access.
package fulfillment

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"certflow/internal/core/apperror"
	"certflow/internal/core/category"
	"certflow/internal/core/certnum"
	"certflow/internal/core/id"
	"certflow/internal/domain/allocator"
	"certflow/internal/domain/archive"
	"certflow/internal/domain/catalog"
	"certflow/internal/domain/metastore"
	"certflow/internal/core/tx"
	"certflow/internal/domain/orders"
	"certflow/internal/domain/permissions"
	"certflow/pkg/logger"
)

// Status is the progress of one order through the pipeline.
type Status string

const (
	StatusPending            Status = "pending"
	StatusNumbersAllocated   Status = "numbers_allocated"
	StatusArchiveBuilt       Status = "archive_built"
	StatusPermissionsGranted Status = "permissions_granted"
)

// Config holds fulfillment settings.
type Config struct {
	// DestDir is where order archives are written. Kept separate from the
	// certificate PDF pool.
	DestDir string

	// BaseURL is the public prefix under which archives are served; the
	// permission fingerprint is derived from the archive's URL.
	BaseURL string

	// BuildTimeout bounds a single archive build attempt.
	BuildTimeout time.Duration

	// BuildRetries is the number of additional attempts after a transient
	// build failure.
	BuildRetries int

	// RetryBackoff is the initial delay between attempts; it doubles.
	RetryBackoff time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig(destDir, baseURL string) Config {
	return Config{
		DestDir:      destDir,
		BaseURL:      baseURL,
		BuildTimeout: 30 * time.Second,
		BuildRetries: 2,
		RetryBackoff: 250 * time.Millisecond,
	}
}

// EventPublisher receives fulfillment events (e.g. for email delivery).
// Optional; a nil publisher disables events.
type EventPublisher interface {
	OrderFulfilled(ctx context.Context, orderID id.ID, archiveFile string) error
}

// Result reports what one fulfillment invocation did.
type Result struct {
	OrderID     id.ID                        `json:"order_id"`
	Status      Status                       `json:"status"`
	Records     map[category.Category]string `json:"records,omitempty"`
	ArchiveFile string                       `json:"archive_file,omitempty"`
	Missing     []string                     `json:"missing_numbers,omitempty"`
	Granted     bool                         `json:"permission_granted"`
	Reused      bool                         `json:"numbers_reused"`
	ItemErrors  []string                     `json:"item_errors,omitempty"`
}

// Service orchestrates order fulfillment. It is idempotent per order:
// existing number records are reused instead of reallocated, an existing
// archive is kept, and permission grant is revoke-then-grant.
type Service struct {
	source     orders.Source
	alloc      *allocator.Allocator
	resolver   *catalog.Resolver
	builder    archive.Builder
	meta       metastore.Store
	perms      permissions.Table
	variations category.VariationMap
	publisher  EventPublisher
	txm        tx.Manager
	cfg        Config
}

// NewService creates a fulfillment service.
func NewService(
	source orders.Source,
	alloc *allocator.Allocator,
	resolver *catalog.Resolver,
	builder archive.Builder,
	meta metastore.Store,
	perms permissions.Table,
	variations category.VariationMap,
	publisher EventPublisher,
	cfg Config,
) *Service {
	return &Service{
		source:     source,
		alloc:      alloc,
		resolver:   resolver,
		builder:    builder,
		meta:       meta,
		perms:      perms,
		variations: variations,
		publisher:  publisher,
		cfg:        cfg,
	}
}

// WithTxManager makes the permission revoke-and-grant pair run in one
// transaction. Without it the pair is two separate writes, which matches
// the rest of the pipeline's best-effort semantics.
func (s *Service) WithTxManager(txm tx.Manager) *Service {
	s.txm = txm
	return s
}

// FulfillOrder runs the pipeline for one paid order.
//
// The pipeline is best-effort, not a transaction: a later step's failure
// never rolls back an earlier one, so number records stay visible to
// admins even when the archive or permission step degrades. The returned
// Result is populated as far as the pipeline got; the error reports the
// step that stopped it.
func (s *Service) FulfillOrder(ctx context.Context, orderID id.ID) (*Result, error) {
	order, err := s.source.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Paid {
		return nil, apperror.NewOrderNotPaid(orderID)
	}

	result := &Result{
		OrderID: orderID,
		Status:  StatusPending,
		Records: make(map[category.Category]string),
	}

	items := order.DownloadableItems()
	if len(items) == 0 {
		logger.Info(ctx, "order has no downloadable items", "order_id", orderID)
		return result, nil
	}

	cats, numbersByCat, fresh, err := s.collectNumbers(ctx, order, items, result)
	if err != nil {
		return result, err
	}
	result.Reused = len(cats) > 0 && len(fresh) == 0
	result.Status = StatusNumbersAllocated

	// Side effect #1: persist the records before touching the filesystem,
	// so admin and export views reflect allocation even if archiving fails.
	// A record that cannot be written means its numbers would leak on the
	// next invocation, so a failed write stops the pipeline once the
	// sibling categories have been persisted.
	var persistErr error
	for _, cat := range cats {
		record := certnum.JoinRecord(numbersByCat[cat])
		if !fresh[cat] {
			result.Records[cat] = record
			continue
		}
		if err := s.meta.Set(ctx, metastore.KindOrder, orderID.String(), cat.RecordKey(), record); err != nil {
			logger.Error(ctx, "persist certificate record failed",
				"order_id", orderID, "category", cat, "error", err)
			persistErr = apperror.NewInternal(err).
				WithDetail("step", "persist record").
				WithDetail("category", cat)
			continue
		}
		result.Records[cat] = record
	}
	if persistErr != nil {
		return result, persistErr
	}

	// Resolve every range to concrete files, in item order.
	var filePaths []string
	for _, cat := range cats {
		files, missing, err := s.resolver.Resolve(ctx, cat, numbersByCat[cat])
		if err != nil {
			return result, apperror.NewInternal(err).WithDetail("category", cat)
		}
		for _, f := range files {
			filePaths = append(filePaths, f.FilePath)
		}
		for _, n := range missing {
			result.Missing = append(result.Missing, n.String())
		}
	}

	archiveFile := ArchiveFileName(items[0].ProductName, orderID)
	dest := filepath.Join(s.cfg.DestDir, archiveFile)

	if err := s.buildWithRetry(ctx, dest, filePaths); err != nil {
		if errors.Is(err, archive.ErrArchiveExists) {
			logger.Info(ctx, "archive already exists, keeping it",
				"order_id", orderID, "destination", dest)
		} else {
			return result, apperror.NewArchiveBuild("archive assembly failed", err).
				WithDetail("order_id", orderID).
				WithDetail("destination", dest)
		}
	}
	result.ArchiveFile = archiveFile
	result.Status = StatusArchiveBuilt

	// Side effect #2: point the purchaser at their current archive so the
	// permission grant and email attachment can find it.
	if err := s.meta.Set(ctx, metastore.KindUser, order.CustomerID.String(), metastore.KeyCertificateZip, archiveFile); err != nil {
		return result, apperror.NewInternal(err).WithDetail("step", "record archive reference")
	}

	if err := s.grantBundlePermission(ctx, order, items, archiveFile); err != nil {
		return result, err
	}
	result.Granted = true
	result.Status = StatusPermissionsGranted

	if s.publisher != nil {
		if err := s.publisher.OrderFulfilled(ctx, orderID, archiveFile); err != nil {
			logger.Warn(ctx, "publish fulfillment event failed",
				"order_id", orderID, "error", err)
		}
	}

	logger.Info(ctx, "order fulfilled",
		"order_id", orderID,
		"archive", archiveFile,
		"categories", len(cats),
		"missing_numbers", len(result.Missing),
		"numbers_reused", result.Reused,
	)
	return result, nil
}

// collectNumbers returns the certificate numbers per category for the
// order, in first-touched category order. An existing order record wins
// over fresh allocation for its category: records are created once and
// never mutated. Categories with no record yet are allocated fresh and
// reported in the fresh set, so a retry after a partial failure only
// allocates what is still missing.
func (s *Service) collectNumbers(
	ctx context.Context,
	order *orders.Order,
	items []orders.LineItem,
	result *Result,
) (cats []category.Category, numbersByCat map[category.Category][]certnum.Number, fresh map[category.Category]bool, err error) {
	numbersByCat = make(map[category.Category][]certnum.Number)
	fresh = make(map[category.Category]bool)

	for _, cat := range category.All() {
		record, err := s.meta.Get(ctx, metastore.KindOrder, order.ID.String(), cat.RecordKey())
		if err != nil {
			return nil, nil, nil, apperror.NewInternal(err).WithDetail("step", "read records")
		}
		if record == "" {
			continue
		}
		nums, err := certnum.ParseRecord(record)
		if err != nil {
			return nil, nil, nil, apperror.NewInternal(err).
				WithDetail("step", "parse record").WithDetail("category", cat)
		}
		cats = append(cats, cat)
		numbersByCat[cat] = nums
	}
	if len(cats) > 0 {
		logger.Info(ctx, "reusing existing certificate records",
			"order_id", order.ID, "categories", len(cats))
	}

	// Fresh allocation for the remaining categories, item by item. One
	// item's failure must not prevent the others' numbers from being
	// allocated or recorded.
	for _, item := range items {
		cat, err := s.variations.CategoryFor(item.VariationID)
		if err != nil {
			logger.Warn(ctx, "line item has no certificate category",
				"order_id", order.ID, "item_id", item.ID, "variation_id", item.VariationID)
			result.ItemErrors = append(result.ItemErrors,
				fmt.Sprintf("item %s: %v", item.ID, err))
			continue
		}
		if _, recorded := numbersByCat[cat]; recorded && !fresh[cat] {
			continue
		}

		rng, err := s.alloc.Allocate(ctx, cat, item.ProductID, item.Quantity)
		if err != nil {
			logger.Error(ctx, "allocation failed",
				"order_id", order.ID, "item_id", item.ID, "category", cat, "error", err)
			result.ItemErrors = append(result.ItemErrors,
				fmt.Sprintf("item %s: %v", item.ID, err))
			continue
		}

		if _, seen := numbersByCat[cat]; !seen {
			cats = append(cats, cat)
		}
		fresh[cat] = true
		numbersByCat[cat] = append(numbersByCat[cat], rng.Numbers()...)
	}

	return cats, numbersByCat, fresh, nil
}

// buildWithRetry attempts the archive build, retrying transient failures
// with doubling backoff. ErrArchiveExists and empty-input failures are
// final on the first attempt.
func (s *Service) buildWithRetry(ctx context.Context, dest string, files []string) error {
	backoff := s.cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.BuildRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if s.cfg.BuildTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, s.cfg.BuildTimeout)
		}
		err := s.builder.Build(attemptCtx, dest, files, archive.Options{Flatten: true})
		if cancel != nil {
			cancel()
		}

		if err == nil || errors.Is(err, archive.ErrArchiveExists) || errors.Is(err, archive.ErrNoValidFiles) {
			return err
		}
		lastErr = err
		logger.Warn(ctx, "archive build attempt failed",
			"destination", dest, "attempt", attempt+1, "error", err)
	}
	return lastErr
}

// grantBundlePermission revokes stale rows for every downloadable item and
// grants exactly one permission for the order's bundle.
//
// The single row references the last processed line item's product and
// variation; the platform treats that one row as access to the whole
// bundle. A per-item grant policy would change only this function.
func (s *Service) grantBundlePermission(ctx context.Context, order *orders.Order, items []orders.LineItem, archiveFile string) error {
	if s.txm != nil {
		return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
			return s.revokeAndGrant(ctx, order, items, archiveFile)
		})
	}
	return s.revokeAndGrant(ctx, order, items, archiveFile)
}

func (s *Service) revokeAndGrant(ctx context.Context, order *orders.Order, items []orders.LineItem, archiveFile string) error {
	for _, item := range items {
		if err := s.perms.Revoke(ctx, item.VariationID, order.ID, order.CustomerID); err != nil {
			return apperror.NewPermissionGrant(err).WithDetail("step", "revoke")
		}
	}

	last := items[len(items)-1]
	p := permissions.Permission{
		ID:          id.New(),
		ProductID:   last.ProductID,
		VariationID: last.VariationID,
		OrderID:     order.ID,
		UserID:      order.CustomerID,
		Fingerprint: s.Fingerprint(archiveFile),
		GrantedAt:   time.Now().UTC(),
	}
	if err := s.perms.Grant(ctx, p); err != nil {
		return apperror.NewPermissionGrant(err).WithDetail("step", "grant")
	}
	return nil
}

// Fingerprint derives the permission lookup key from the archive's
// public URL.
func (s *Service) Fingerprint(archiveFile string) string {
	url := strings.TrimRight(s.cfg.BaseURL, "/") + "/" + archiveFile
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// ArchiveFileName builds the per-order archive name:
// <product-name>-order-<order_id>.zip
func ArchiveFileName(productName string, orderID id.ID) string {
	slug := strings.ToLower(strings.TrimSpace(productName))
	slug = strings.Join(strings.Fields(slug), "-")
	if slug == "" {
		slug = "certificates"
	}
	return fmt.Sprintf("%s-order-%s.zip", slug, orderID)
}
