package fulfillment

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certflow/internal/core/category"
	"certflow/internal/core/certnum"
	"certflow/internal/core/counter"
	"certflow/internal/core/id"
	"certflow/internal/domain/allocator"
	"certflow/internal/domain/archive"
	"certflow/internal/domain/catalog"
	"certflow/internal/domain/metastore"
	"certflow/internal/domain/orders"
	"certflow/internal/domain/permissions"
)

type fixture struct {
	source     *orders.MemorySource
	counters   *counter.MemoryStore
	catalog    *catalog.MemoryRepository
	meta       *metastore.MemoryStore
	perms      *permissions.MemoryTable
	variations category.VariationMap
	svc        *Service

	var5, var10 id.ID
	sourceDir   string
	destDir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		source:    orders.NewMemorySource(),
		counters:  counter.NewMemoryStore(),
		catalog:   catalog.NewMemoryRepository(),
		meta:      metastore.NewMemoryStore(),
		perms:     permissions.NewMemoryTable(),
		var5:      id.New(),
		var10:     id.New(),
		sourceDir: filepath.Join(root, "certificates"),
		destDir:   filepath.Join(root, "customer_downloads"),
	}
	f.variations = category.VariationMap{
		f.var5:  category.FiveYear,
		f.var10: category.TenYear,
	}

	builder, err := archive.NewZipBuilder(f.destDir)
	require.NoError(t, err)

	f.svc = NewService(
		f.source,
		allocator.New(f.counters),
		catalog.NewResolver(f.catalog),
		builder,
		f.meta,
		f.perms,
		f.variations,
		nil,
		DefaultConfig(f.destDir, "https://shop.example/downloads"),
	)
	return f
}

// seedCatalog registers files for a range and writes the PDFs to disk.
func (f *fixture) seedCatalog(t *testing.T, cat category.Category, from, to int) {
	t.Helper()
	for i := from; i <= to; i++ {
		n := certnum.Number(i)
		title := "certificate-" + string(cat) + "-" + n.String()
		path := filepath.Join(f.sourceDir, string(cat), title+".pdf")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("pdf "+title), 0o644))
		require.NoError(t, f.catalog.Register(context.Background(), catalog.File{
			ID:       id.New(),
			Category: cat,
			Number:   n,
			Title:    title,
			FilePath: path,
		}))
	}
}

func (f *fixture) paidOrder(items ...orders.LineItem) *orders.Order {
	o := &orders.Order{
		ID:         id.New(),
		Number:     "ORD-1001",
		CustomerID: id.New(),
		Email:      "buyer@example.com",
		Paid:       true,
		Items:      items,
	}
	f.source.Put(o)
	return o
}

func item(productID, variationID id.ID, name string, qty int) orders.LineItem {
	return orders.LineItem{
		ID:           id.New(),
		ProductID:    productID,
		VariationID:  variationID,
		ProductName:  name,
		Quantity:     qty,
		UnitPrice:    decimal.NewFromInt(25),
		Downloadable: true,
	}
}

func archiveEntries(t *testing.T, path string) int {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	return len(r.File)
}

func TestFulfillOrder_SingleItem(t *testing.T) {
	f := newFixture(t)
	f.seedCatalog(t, category.FiveYear, 0, 9)

	family := id.New()
	order := f.paidOrder(item(family, f.var5, "Tree Certificates", 3))

	res, err := f.svc.FulfillOrder(context.Background(), order.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusPermissionsGranted, res.Status)
	assert.Equal(t, "0000, 0001, 0002", res.Records[category.FiveYear])
	assert.True(t, res.Granted)
	assert.Empty(t, res.Missing)

	// Counter advanced past the block.
	val, err := f.counters.Get(context.Background(), counter.Key{Category: category.FiveYear, FamilyID: family})
	require.NoError(t, err)
	assert.Equal(t, int64(3), val)

	// Order record persisted for admin/export views.
	rec, err := f.meta.Get(context.Background(), metastore.KindOrder, order.ID.String(), category.FiveYear.RecordKey())
	require.NoError(t, err)
	assert.Equal(t, "0000, 0001, 0002", rec)

	// Archive on disk with one entry per certificate.
	assert.Equal(t, "tree-certificates-order-"+order.ID.String()+".zip", res.ArchiveFile)
	assert.Equal(t, 3, archiveEntries(t, filepath.Join(f.destDir, res.ArchiveFile)))

	// Archive reference recorded against the purchaser.
	ref, err := f.meta.Get(context.Background(), metastore.KindUser, order.CustomerID.String(), metastore.KeyCertificateZip)
	require.NoError(t, err)
	assert.Equal(t, res.ArchiveFile, ref)
}

func TestFulfillOrder_TwoCategories(t *testing.T) {
	f := newFixture(t)
	f.seedCatalog(t, category.FiveYear, 0, 9)
	f.seedCatalog(t, category.TenYear, 100, 109)

	family := id.New()
	require.NoError(t, f.counters.Set(context.Background(),
		counter.Key{Category: category.TenYear, FamilyID: family}, 100))

	item5 := item(family, f.var5, "Tree Certificates", 2)
	item10 := item(family, f.var10, "Tree Certificates", 1)
	order := f.paidOrder(item5, item10)

	res, err := f.svc.FulfillOrder(context.Background(), order.ID)
	require.NoError(t, err)

	assert.Equal(t, "0000, 0001", res.Records[category.FiveYear])
	assert.Equal(t, "0100", res.Records[category.TenYear])

	// One archive with all three certificates.
	assert.Equal(t, 3, archiveEntries(t, filepath.Join(f.destDir, res.ArchiveFile)))

	// Exactly one permission row, referencing the last processed item.
	rows, err := f.perms.ListByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, item10.VariationID, rows[0].VariationID)
	assert.Equal(t, f.svc.Fingerprint(res.ArchiveFile), rows[0].Fingerprint)

	// Counters advanced independently.
	v5, _ := f.counters.Get(context.Background(), counter.Key{Category: category.FiveYear, FamilyID: family})
	v10, _ := f.counters.Get(context.Background(), counter.Key{Category: category.TenYear, FamilyID: family})
	assert.Equal(t, int64(2), v5)
	assert.Equal(t, int64(101), v10)
}

func TestFulfillOrder_ReinvocationIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedCatalog(t, category.FiveYear, 0, 9)

	family := id.New()
	order := f.paidOrder(item(family, f.var5, "Tree Certificates", 2))

	first, err := f.svc.FulfillOrder(context.Background(), order.ID)
	require.NoError(t, err)

	archivePath := filepath.Join(f.destDir, first.ArchiveFile)
	before, err := os.ReadFile(archivePath)
	require.NoError(t, err)

	second, err := f.svc.FulfillOrder(context.Background(), order.ID)
	require.NoError(t, err)

	// Same numbers, not a fresh allocation.
	assert.True(t, second.Reused)
	assert.Equal(t, first.Records, second.Records)

	val, _ := f.counters.Get(context.Background(), counter.Key{Category: category.FiveYear, FamilyID: family})
	assert.Equal(t, int64(2), val, "re-invocation must not advance the counter")

	// No duplicate archive.
	after, err := os.ReadFile(archivePath)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// Revoke-then-grant leaves exactly one active row.
	rows, err := f.perms.ListByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestFulfillOrder_UnpaidOrderRejected(t *testing.T) {
	f := newFixture(t)
	o := f.paidOrder(item(id.New(), f.var5, "Tree Certificates", 1))
	o.Paid = false

	_, err := f.svc.FulfillOrder(context.Background(), o.ID)
	assert.Error(t, err)
}

func TestFulfillOrder_UnknownVariationDoesNotBlockSiblings(t *testing.T) {
	f := newFixture(t)
	f.seedCatalog(t, category.FiveYear, 0, 9)

	family := id.New()
	stranger := item(family, id.New(), "Tree Certificates", 1) // unmapped variation
	good := item(family, f.var5, "Tree Certificates", 2)
	order := f.paidOrder(stranger, good)

	res, err := f.svc.FulfillOrder(context.Background(), order.ID)
	require.NoError(t, err)

	assert.Equal(t, "0000, 0001", res.Records[category.FiveYear])
	assert.Len(t, res.ItemErrors, 1)
	assert.True(t, res.Granted)
}

func TestFulfillOrder_CatalogGapIsReported(t *testing.T) {
	f := newFixture(t)
	// 0001 deliberately missing from the catalog.
	f.seedCatalog(t, category.FiveYear, 0, 0)
	f.seedCatalog(t, category.FiveYear, 2, 2)

	order := f.paidOrder(item(id.New(), f.var5, "Tree Certificates", 3))

	res, err := f.svc.FulfillOrder(context.Background(), order.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"0001"}, res.Missing)
	assert.Equal(t, 2, archiveEntries(t, filepath.Join(f.destDir, res.ArchiveFile)))
}

func TestFulfillOrder_ArchiveFailureKeepsRecords(t *testing.T) {
	f := newFixture(t)
	// Catalog rows exist but no PDFs on disk: the build has no valid input.
	require.NoError(t, f.catalog.Register(context.Background(), catalog.File{
		ID:       id.New(),
		Category: category.FiveYear,
		Number:   0,
		Title:    "certificate-5-year-0000",
		FilePath: filepath.Join(f.sourceDir, "missing.pdf"),
	}))

	order := f.paidOrder(item(id.New(), f.var5, "Tree Certificates", 1))

	res, err := f.svc.FulfillOrder(context.Background(), order.ID)
	require.Error(t, err)

	// Side effect #1 survives the archive failure.
	assert.Equal(t, StatusNumbersAllocated, res.Status)
	rec, _ := f.meta.Get(context.Background(), metastore.KindOrder, order.ID.String(), category.FiveYear.RecordKey())
	assert.Equal(t, "0000", rec)

	// No permission without an archive.
	rows, _ := f.perms.ListByOrder(context.Background(), order.ID)
	assert.Empty(t, rows)
	assert.False(t, res.Granted)
}

// flakyMeta rejects writes for one key and delegates everything else.
type flakyMeta struct {
	metastore.Store
	failKey string
}

func (m *flakyMeta) Set(ctx context.Context, kind metastore.Kind, entityID, key, value string) error {
	if key == m.failKey {
		return errors.New("metadata write rejected")
	}
	return m.Store.Set(ctx, kind, entityID, key, value)
}

func TestFulfillOrder_RecordWriteFailureStopsPipeline(t *testing.T) {
	f := newFixture(t)
	f.seedCatalog(t, category.FiveYear, 0, 9)
	f.seedCatalog(t, category.TenYear, 0, 9)

	family := id.New()
	order := f.paidOrder(
		item(family, f.var5, "Tree Certificates", 2),
		item(family, f.var10, "Tree Certificates", 1),
	)

	flaky := &flakyMeta{Store: f.meta, failKey: category.TenYear.RecordKey()}
	builder, err := archive.NewZipBuilder(f.destDir)
	require.NoError(t, err)
	broken := NewService(
		f.source,
		allocator.New(f.counters),
		catalog.NewResolver(f.catalog),
		builder,
		flaky,
		f.perms,
		f.variations,
		nil,
		DefaultConfig(f.destDir, "https://shop.example/downloads"),
	)

	res, err := broken.FulfillOrder(context.Background(), order.ID)
	require.Error(t, err, "an unrecorded allocation must surface, not degrade silently")
	assert.Equal(t, StatusNumbersAllocated, res.Status)
	assert.False(t, res.Granted)

	// The sibling category's record survives the failed write.
	rec5, _ := f.meta.Get(context.Background(), metastore.KindOrder, order.ID.String(), category.FiveYear.RecordKey())
	assert.Equal(t, "0000, 0001", rec5)
	rec10, _ := f.meta.Get(context.Background(), metastore.KindOrder, order.ID.String(), category.TenYear.RecordKey())
	assert.Empty(t, rec10)

	// Retry with a healthy store: the recorded category is reused and the
	// unrecorded one gets a fresh block past the lost one.
	res, err = f.svc.FulfillOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPermissionsGranted, res.Status)
	assert.False(t, res.Reused)
	assert.Equal(t, "0000, 0001", res.Records[category.FiveYear])
	assert.Equal(t, "0001", res.Records[category.TenYear])

	v5, _ := f.counters.Get(context.Background(), counter.Key{Category: category.FiveYear, FamilyID: family})
	v10, _ := f.counters.Get(context.Background(), counter.Key{Category: category.TenYear, FamilyID: family})
	assert.Equal(t, int64(2), v5, "recorded category must not be reallocated")
	assert.Equal(t, int64(2), v10)
}

func TestFulfillOrder_NoDownloadableItems(t *testing.T) {
	f := newFixture(t)
	order := f.paidOrder()
	order.Items = []orders.LineItem{{
		ID: id.New(), ProductID: id.New(), VariationID: f.var5,
		ProductName: "Mug", Quantity: 1, Downloadable: false,
	}}

	res, err := f.svc.FulfillOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)
	assert.Empty(t, res.Records)
}
