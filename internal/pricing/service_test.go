package pricing

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropsync-backend/internal/catalog"
	"github.com/angelmondragon/dropsync-backend/internal/ledger"
	"github.com/angelmondragon/dropsync-backend/pkg/db"
	"github.com/angelmondragon/dropsync-backend/pkg/db/dbtest"
	"github.com/angelmondragon/dropsync-backend/pkg/db/models"
	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
	"github.com/angelmondragon/dropsync-backend/pkg/outbox"
)

type harness struct {
	conn    *gorm.DB
	ledger  ledger.Service
	catalog catalog.Store
	svc     Service
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
	store := catalog.NewRepository(conn)
	svc, err := NewService(ServiceParams{
		Ledger:  led,
		Catalog: store,
		Policy:  DefaultPolicy(),
		Logger:  logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return harness{conn: conn, ledger: led, catalog: store, svc: svc}
}

func (h harness) supplier(t *testing.T, rate string) *models.Supplier {
	t.Helper()
	s := &models.Supplier{
		Name:           "Supplier " + uuid.NewString()[:6],
		TransportKind:  enums.TransportKindRESTFlat,
		CommissionRate: d(rate),
		Active:         true,
	}
	dbtest.Create(t, h.conn, s)
	return s
}

func (h harness) product(t *testing.T, price string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	dbtest.Create(t, h.conn, &models.CatalogProduct{ProductID: id, SKU: "SKU-" + id.String()[:4], Name: "Widget", Price: d(price)})
	return id
}

func (h harness) link(t *testing.T, productID, supplierID uuid.UUID, price string) {
	t.Helper()
	_, err := h.ledger.UpsertLink(context.Background(), productID, supplierID, ledger.LinkFields{
		SupplierSKU:   "S",
		SupplierPrice: d(price),
		MarkupType:    enums.MarkupTypePercentage,
		MarkupValue:   d("30"),
		StockSync:     true,
		AutoOrder:     true,
	})
	require.NoError(t, err)
}

func TestOptimizePricingRepricesLowMargin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sup := h.supplier(t, "10")
	low := h.product(t, "11.50")
	inBand := h.product(t, "14.00")
	h.link(t, low, sup.ID, "10.00")
	h.link(t, inBand, sup.ID, "10.00")

	repriced, err := h.svc.OptimizePricing(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 1, repriced)

	price, err := h.catalog.GetPrice(ctx, low)
	require.NoError(t, err)
	require.Equal(t, "14.30", price.StringFixed(2))

	untouched, err := h.catalog.GetPrice(ctx, inBand)
	require.NoError(t, err)
	require.Equal(t, "14.00", untouched.StringFixed(2))

	link, err := h.ledger.FindLink(ctx, low, sup.ID)
	require.NoError(t, err)
	require.Equal(t, enums.MarkupTypePercentage, link.MarkupType)
	require.True(t, link.MarkupValue.Equal(d("43")), link.MarkupValue.String())

	var events int64
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventLinkRepriced, link.ID).Count(&events).Error)
	require.EqualValues(t, 1, events)

	again, err := h.svc.OptimizePricing(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, again)
}

func TestOptimizePricingLowersOverpricedProduct(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sup := h.supplier(t, "10")
	p := h.product(t, "40.00")
	h.link(t, p, sup.ID, "10.00")

	repriced, err := h.svc.OptimizePricing(ctx, &sup.ID)
	require.NoError(t, err)
	require.Equal(t, 1, repriced)
	price, err := h.catalog.GetPrice(ctx, p)
	require.NoError(t, err)
	require.Equal(t, "14.30", price.StringFixed(2))
}

func TestOptimizePricingUsesCostliestSupplierFloor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cheap := h.supplier(t, "10")
	costly := h.supplier(t, "0")
	p := h.product(t, "5.00")
	h.link(t, p, cheap.ID, "10.00")
	h.link(t, p, costly.ID, "12.00")

	repriced, err := h.svc.OptimizePricing(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 1, repriced)

	price, err := h.catalog.GetPrice(ctx, p)
	require.NoError(t, err)
	require.Equal(t, "15.60", price.StringFixed(2))
	require.True(t, price.GreaterThanOrEqual(LandedCost(d("10.00"), d("10"))))
}

func TestOptimizePricingSupplierFilterKeepsOtherSuppliersFloor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cheap := h.supplier(t, "0")
	costly := h.supplier(t, "0")
	p := h.product(t, "26.00")
	h.link(t, p, cheap.ID, "10.00")
	h.link(t, p, costly.ID, "20.00")

	repriced, err := h.svc.OptimizePricing(ctx, &cheap.ID)
	require.NoError(t, err)
	require.Zero(t, repriced)

	price, err := h.catalog.GetPrice(ctx, p)
	require.NoError(t, err)
	require.Equal(t, "26.00", price.StringFixed(2))

	unfiltered, err := h.svc.OptimizePricing(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, unfiltered)
}

func TestOptimizePricingSupplierFilterRepricesAboveCostliestLink(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cheap := h.supplier(t, "0")
	costly := h.supplier(t, "0")
	p := h.product(t, "21.00")
	h.link(t, p, cheap.ID, "10.00")
	h.link(t, p, costly.ID, "20.00")

	repriced, err := h.svc.OptimizePricing(ctx, &cheap.ID)
	require.NoError(t, err)
	require.Equal(t, 1, repriced)

	price, err := h.catalog.GetPrice(ctx, p)
	require.NoError(t, err)
	require.Equal(t, "26.00", price.StringFixed(2))
}

func TestOptimizePricingMissingCatalogProductMarksLinkError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sup := h.supplier(t, "10")
	missing := uuid.New()
	h.link(t, missing, sup.ID, "10.00")

	repriced, err := h.svc.OptimizePricing(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, repriced)

	link, err := h.ledger.FindLink(ctx, missing, sup.ID)
	require.NoError(t, err)
	require.Equal(t, enums.SyncStatusError, link.SyncStatus)
	require.NotNil(t, link.LastError)
}

func TestNewServiceRejectsInvertedPolicy(t *testing.T) {
	_, err := NewService(ServiceParams{
		Ledger:  &struct{ linkLedger }{},
		Catalog: catalog.NewRepository(nil),
		Policy:  Policy{MinMargin: decimal.RequireFromString("0.4"), TargetMargin: decimal.RequireFromString("0.3")},
		Logger:  logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.Error(t, err)
}
