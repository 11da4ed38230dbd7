package bulk

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropsync-backend/internal/catalog"
	"github.com/angelmondragon/dropsync-backend/internal/ledger"
	"github.com/angelmondragon/dropsync-backend/pkg/db"
	"github.com/angelmondragon/dropsync-backend/pkg/db/dbtest"
	"github.com/angelmondragon/dropsync-backend/pkg/db/models"
	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
	"github.com/angelmondragon/dropsync-backend/pkg/outbox"
)

// failingLedger fails flag writes for one product.
type failingLedger struct {
	ledger.Service
	failFor uuid.UUID
}

func (f failingLedger) SetLinkFlags(ctx context.Context, productID, supplierID uuid.UUID, flags ledger.Flags) (bool, error) {
	if productID == f.failFor {
		return false, pkgerrors.New(pkgerrors.CodeConcurrency, "link row is locked")
	}
	return f.Service.SetLinkFlags(ctx, productID, supplierID, flags)
}

type fakeSyncer struct {
	failFor uuid.UUID
	synced  []uuid.UUID
}

func (f *fakeSyncer) SyncProduct(_ context.Context, productID uuid.UUID) (int, error) {
	if productID == f.failFor {
		return 0, pkgerrors.New(pkgerrors.CodeTransport, "supplier unavailable")
	}
	f.synced = append(f.synced, productID)
	return 1, nil
}

type harness struct {
	conn    *gorm.DB
	ledger  ledger.Service
	catalog catalog.Store
	syncer  *fakeSyncer
}

func newHarness(t *testing.T) harness {
	t.Helper()
	conn := dbtest.Open(t)
	led, err := ledger.NewService(ledger.ServiceParams{
		DB:     db.NewFromConn(conn),
		Repo:   ledger.NewRepository(conn),
		Locker: ledger.NewMemoryRowLocker(time.Second),
		Outbox: outbox.NewService(outbox.NewRepository(conn), nil),
	})
	require.NoError(t, err)
	return harness{conn: conn, ledger: led, catalog: catalog.NewRepository(conn), syncer: &fakeSyncer{}}
}

func (h harness) service(t *testing.T, led linkLedger) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Ledger:  led,
		Catalog: h.catalog,
		Stock:   h.syncer,
		Logger:  logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc
}

func (h harness) linkedProduct(t *testing.T, supplierID uuid.UUID) uuid.UUID {
	t.Helper()
	productID := uuid.New()
	dbtest.Create(t, h.conn, &models.CatalogProduct{ProductID: productID, SKU: "P", Name: "Product", Price: decimal.RequireFromString("1.00")})
	_, err := h.ledger.UpsertLink(context.Background(), productID, supplierID, ledger.LinkFields{
		SupplierSKU:   "S-" + productID.String()[:4],
		SupplierPrice: decimal.RequireFromString("10.00"),
		MarkupType:    enums.MarkupTypeFixed,
		MarkupValue:   decimal.RequireFromString("2.00"),
		StockSync:     false,
		AutoOrder:     false,
	})
	require.NoError(t, err)
	return productID
}

func (h harness) supplier(t *testing.T) *models.Supplier {
	t.Helper()
	s := &models.Supplier{
		Name:           "Supplier",
		TransportKind:  enums.TransportKindRESTFlat,
		CommissionRate: decimal.RequireFromString("10"),
		Active:         true,
	}
	dbtest.Create(t, h.conn, s)
	return s
}

func TestBulkUpdateContinuesPastFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sup := h.supplier(t)
	p1, p2, p3 := h.linkedProduct(t, sup.ID), h.linkedProduct(t, sup.ID), h.linkedProduct(t, sup.ID)
	svc := h.service(t, failingLedger{Service: h.ledger, failFor: p2})

	result, err := svc.BulkUpdateLinks(ctx, []uuid.UUID{p1, p2, p3}, enums.LinkActionEnableStockSync, Params{})
	require.NoError(t, err)
	require.Equal(t, 2, result.Success)
	require.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	require.True(t, strings.HasPrefix(result.Errors[0], p2.String()+": "), result.Errors[0])
	require.Len(t, multierr.Errors(result.Err()), 1)
	require.True(t, pkgerrors.IsCode(errors.Unwrap(result.Err()), pkgerrors.CodeConcurrency))

	for _, p := range []uuid.UUID{p1, p3} {
		link, err := h.ledger.FindLink(ctx, p, sup.ID)
		require.NoError(t, err)
		require.True(t, link.StockSync)
	}
	link, err := h.ledger.FindLink(ctx, p2, sup.ID)
	require.NoError(t, err)
	require.False(t, link.StockSync)
}

func TestBulkUpdateUnlinkedProductIsReported(t *testing.T) {
	h := newHarness(t)
	sup := h.supplier(t)
	linked := h.linkedProduct(t, sup.ID)
	orphan := uuid.New()
	svc := h.service(t, h.ledger)

	result, err := svc.BulkUpdateLinks(context.Background(), []uuid.UUID{linked, orphan, linked}, enums.LinkActionEnableAutoOrder, Params{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Success)
	require.Equal(t, 1, result.Failed)
	require.Contains(t, result.Errors[0], orphan.String())
	require.Contains(t, result.Errors[0], "no supplier links")
}

func TestBulkUpdateMarkupRepricesCatalog(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sup := h.supplier(t)
	p := h.linkedProduct(t, sup.ID)
	svc := h.service(t, h.ledger)

	result, err := svc.BulkUpdateLinks(ctx, []uuid.UUID{p}, enums.LinkActionUpdateMarkup, Params{
		MarkupType:  enums.MarkupTypePercentage,
		MarkupValue: decimal.RequireFromString("30"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Success)

	link, err := h.ledger.FindLink(ctx, p, sup.ID)
	require.NoError(t, err)
	require.Equal(t, enums.MarkupTypePercentage, link.MarkupType)
	price, err := h.catalog.GetPrice(ctx, p)
	require.NoError(t, err)
	require.Equal(t, "13.00", price.StringFixed(2))
}

func TestBulkSyncStockDelegates(t *testing.T) {
	h := newHarness(t)
	p1, p2 := uuid.New(), uuid.New()
	h.syncer.failFor = p2
	svc := h.service(t, h.ledger)

	result, err := svc.BulkUpdateLinks(context.Background(), []uuid.UUID{p1, p2}, enums.LinkActionSyncStock, Params{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Success)
	require.Equal(t, []uuid.UUID{p1}, h.syncer.synced)
	require.Contains(t, result.Errors[0], "supplier unavailable")
}

func TestBulkUpdateRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	svc := h.service(t, h.ledger)
	ctx := context.Background()

	_, err := svc.BulkUpdateLinks(ctx, []uuid.UUID{uuid.New()}, "explode", Params{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.BulkUpdateLinks(ctx, nil, enums.LinkActionEnableAutoOrder, Params{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.BulkUpdateLinks(ctx, []uuid.UUID{uuid.New()}, enums.LinkActionUpdateMarkup, Params{MarkupType: "weird"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
