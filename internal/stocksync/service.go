package stocksync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/dropsync-backend/internal/catalog"
	"github.com/angelmondragon/dropsync-backend/internal/reporting"
	"github.com/angelmondragon/dropsync-backend/internal/transport"
	"github.com/angelmondragon/dropsync-backend/pkg/db/models"
	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
	"github.com/angelmondragon/dropsync-backend/pkg/metrics"
)

const (
	defaultWorkers = 4
	defaultTimeout = 30 * time.Second
)

type linkLedger interface {
	StockSyncLinks(ctx context.Context, supplierID *uuid.UUID) ([]models.ProductSupplierLink, error)
	LinksForProducts(ctx context.Context, productIDs []uuid.UUID) ([]models.ProductSupplierLink, error)
	UpdateLinkStock(ctx context.Context, productID, supplierID uuid.UUID, qty int) (bool, error)
	BeginLinkSync(ctx context.Context, productID, supplierID uuid.UUID) error
	MarkLinkSync(ctx context.Context, productID, supplierID uuid.UUID, status enums.SyncStatus, errMsg string) error
}

type gatewayResolver interface {
	Resolve(ctx context.Context, supplier *models.Supplier) (transport.Gateway, error)
}

type runReporter interface {
	RecordSyncRun(ctx context.Context, row reporting.SyncRunRow) error
}

// Service reconciles supplier stock into links and the catalog.
type Service interface {
	RunSync(ctx context.Context, supplierID *uuid.UUID) (int, error)
	SyncProduct(ctx context.Context, productID uuid.UUID) (int, error)
}

type ServiceParams struct {
	Ledger   linkLedger
	Catalog  catalog.Store
	Gateways gatewayResolver
	Metrics  *metrics.EngineMetrics
	Reporter runReporter
	Logger   *logger.Logger
	Workers  int
	Timeout  time.Duration
}

type service struct {
	ledger   linkLedger
	catalog  catalog.Store
	gateways gatewayResolver
	metrics  *metrics.EngineMetrics
	reporter runReporter
	logg     *logger.Logger
	workers  int
	timeout  time.Duration
}

func NewService(params ServiceParams) (Service, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog store required")
	}
	if params.Gateways == nil {
		return nil, fmt.Errorf("gateway registry required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	workers := params.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &service{
		ledger:   params.Ledger,
		catalog:  params.Catalog,
		gateways: params.Gateways,
		metrics:  params.Metrics,
		reporter: params.Reporter,
		logg:     params.Logger,
		workers:  workers,
		timeout:  timeout,
	}, nil
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeChanged
	outcomeFailed
)

// fetched is a link whose supplier reported a new quantity.
type fetched struct {
	link models.ProductSupplierLink
	qty  int
}

// RunSync fetches stock for every stock-synced link and returns how many
// links changed. Unchanged quantities are not written.
func (s *service) RunSync(ctx context.Context, supplierID *uuid.UUID) (int, error) {
	started := time.Now().UTC()
	links, err := s.ledger.StockSyncLinks(ctx, supplierID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock sync links")
	}
	updated, failed := s.syncAll(ctx, links, false)

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"examined": len(links),
		"updated":  updated,
		"failed":   failed,
	}), "stock sync finished")
	s.report(ctx, supplierID, started, len(links), updated, failed)
	return updated, nil
}

// SyncProduct resyncs every stock-synced link of one product. Links enter
// pending before the fetch.
func (s *service) SyncProduct(ctx context.Context, productID uuid.UUID) (int, error) {
	if productID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	all, err := s.ledger.LinksForProducts(ctx, []uuid.UUID{productID})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product links")
	}
	links := make([]models.ProductSupplierLink, 0, len(all))
	for _, link := range all {
		if link.StockSync && link.Supplier != nil && link.Supplier.Active {
			links = append(links, link)
		}
	}
	if len(links) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no stock synced links for product %s", productID))
	}
	updated, failed := s.syncAll(ctx, links, true)
	if failed > 0 {
		return updated, pkgerrors.New(pkgerrors.CodeTransport, fmt.Sprintf("%d of %d links failed to sync", failed, len(links)))
	}
	return updated, nil
}

// syncAll fetches concurrently, then writes each changed product once with
// its catalog stock set to the sum over its links.
func (s *service) syncAll(ctx context.Context, links []models.ProductSupplierLink, begin bool) (int, int) {
	var failed atomic.Int64
	var mu sync.Mutex
	changed := map[uuid.UUID][]fetched{}
	var products []uuid.UUID

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range links {
		link := links[i]
		g.Go(func() error {
			qty, result := s.fetchLink(gctx, link, begin)
			switch result {
			case outcomeChanged:
				mu.Lock()
				if _, ok := changed[link.ProductID]; !ok {
					products = append(products, link.ProductID)
				}
				changed[link.ProductID] = append(changed[link.ProductID], fetched{link: link, qty: qty})
				mu.Unlock()
			case outcomeFailed:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	updated := 0
	for _, productID := range products {
		ok, bad := s.writeProduct(ctx, productID, changed[productID])
		updated += ok
		failed.Add(int64(bad))
	}
	return updated, int(failed.Load())
}

func (s *service) fetchLink(ctx context.Context, link models.ProductSupplierLink, begin bool) (int, outcome) {
	ctx = s.linkContext(ctx, link)
	if begin {
		if err := s.ledger.BeginLinkSync(ctx, link.ProductID, link.SupplierID); err != nil {
			s.logg.Error(ctx, "mark link pending", err)
			return 0, outcomeFailed
		}
		link.SyncStatus = enums.SyncStatusPending
	}

	gateway, err := s.gateways.Resolve(ctx, link.Supplier)
	if err != nil {
		return 0, s.fail(ctx, link, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	qty, err := gateway.FetchStock(callCtx, link.SupplierSKU)
	cancel()
	if err != nil {
		return 0, s.fail(ctx, link, err)
	}
	if qty < 0 {
		return 0, s.fail(ctx, link, pkgerrors.New(pkgerrors.CodeTransport, fmt.Sprintf("supplier reported negative stock %d", qty)))
	}

	if qty != link.StockQuantity {
		return qty, outcomeChanged
	}
	if link.SyncStatus == enums.SyncStatusSuccess {
		return qty, outcomeUnchanged
	}
	if err := s.ledger.MarkLinkSync(ctx, link.ProductID, link.SupplierID, enums.SyncStatusSuccess, ""); err != nil {
		s.logg.Error(ctx, "mark link synced", err)
		return qty, outcomeFailed
	}
	s.metrics.IncLinkSync(string(enums.SyncStatusSuccess))
	return qty, outcomeUnchanged
}

// writeProduct sets the catalog stock to the sum over the product's links
// with an active supplier, using the fetched quantities for changed links,
// and then writes the changed links. A catalog failure leaves the links
// untouched and marks them error.
func (s *service) writeProduct(ctx context.Context, productID uuid.UUID, changes []fetched) (int, int) {
	pctx := s.logg.WithProductID(ctx, productID.String())
	links, err := s.ledger.LinksForProducts(pctx, []uuid.UUID{productID})
	if err != nil {
		return 0, s.failAll(ctx, changes, err)
	}
	next := make(map[uuid.UUID]int, len(changes))
	for _, c := range changes {
		next[c.link.SupplierID] = c.qty
	}
	total := 0
	for _, link := range links {
		if link.Supplier == nil || !link.Supplier.Active {
			continue
		}
		if qty, ok := next[link.SupplierID]; ok {
			total += qty
			continue
		}
		total += link.StockQuantity
	}
	if err := s.catalog.SetStock(pctx, productID, total); err != nil {
		return 0, s.failAll(ctx, changes, err)
	}

	updated, failed := 0, 0
	for _, c := range changes {
		lctx := s.linkContext(ctx, c.link)
		if _, err := s.ledger.UpdateLinkStock(lctx, c.link.ProductID, c.link.SupplierID, c.qty); err != nil {
			s.logg.Error(lctx, "write link stock", err)
			s.metrics.IncLinkSync(string(enums.SyncStatusError))
			failed++
			continue
		}
		s.metrics.IncLinkSync(string(enums.SyncStatusSuccess))
		updated++
	}
	return updated, failed
}

func (s *service) failAll(ctx context.Context, changes []fetched, cause error) int {
	for _, c := range changes {
		s.fail(s.linkContext(ctx, c.link), c.link, cause)
	}
	return len(changes)
}

func (s *service) linkContext(ctx context.Context, link models.ProductSupplierLink) context.Context {
	return s.logg.WithFields(ctx, map[string]any{
		"product_id":  link.ProductID.String(),
		"supplier_id": link.SupplierID.String(),
	})
}

func (s *service) fail(ctx context.Context, link models.ProductSupplierLink, cause error) outcome {
	s.metrics.IncLinkSync(string(enums.SyncStatusError))
	s.logg.Warn(s.logg.WithField(ctx, "error", cause.Error()), "stock sync failed for link")
	if err := s.ledger.MarkLinkSync(ctx, link.ProductID, link.SupplierID, enums.SyncStatusError, cause.Error()); err != nil {
		s.logg.Error(ctx, "mark link sync error", err)
	}
	return outcomeFailed
}

func (s *service) report(ctx context.Context, supplierID *uuid.UUID, started time.Time, examined, updated, failed int) {
	if s.reporter == nil {
		return
	}
	row := reporting.SyncRunRow{
		RunID:      uuid.NewString(),
		Job:        reporting.JobStockSync,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Examined:   examined,
		Updated:    updated,
		Failed:     failed,
	}
	if supplierID != nil {
		id := supplierID.String()
		row.SupplierID = &id
	}
	if err := s.reporter.RecordSyncRun(ctx, row); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "sync run report failed")
	}
}
