package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dropsync-backend/internal/catalog"
	"github.com/angelmondragon/dropsync-backend/internal/ledger"
	"github.com/angelmondragon/dropsync-backend/internal/reporting"
	"github.com/angelmondragon/dropsync-backend/pkg/db/models"
	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
	"github.com/angelmondragon/dropsync-backend/pkg/metrics"
	"github.com/angelmondragon/dropsync-backend/pkg/outbox"
	"github.com/angelmondragon/dropsync-backend/pkg/outbox/payloads"
)

const eventSource = "pricing"

type linkLedger interface {
	Links(ctx context.Context, supplierID *uuid.UUID) ([]models.ProductSupplierLink, error)
	LinksForProducts(ctx context.Context, productIDs []uuid.UUID) ([]models.ProductSupplierLink, error)
	UpdateLinkPricing(ctx context.Context, productID, supplierID uuid.UUID, markupType enums.MarkupType, markupValue decimal.Decimal, opts ...ledger.WriteOption) (*models.ProductSupplierLink, error)
	MarkLinkSync(ctx context.Context, productID, supplierID uuid.UUID, status enums.SyncStatus, errMsg string) error
}

type runReporter interface {
	RecordSyncRun(ctx context.Context, row reporting.SyncRunRow) error
}

// Service keeps catalog sale prices inside the margin policy.
type Service interface {
	OptimizePricing(ctx context.Context, supplierID *uuid.UUID) (int, error)
}

type ServiceParams struct {
	Ledger   linkLedger
	Catalog  catalog.Store
	Policy   Policy
	Metrics  *metrics.EngineMetrics
	Reporter runReporter
	Logger   *logger.Logger
}

type service struct {
	ledger   linkLedger
	catalog  catalog.Store
	policy   Policy
	metrics  *metrics.EngineMetrics
	reporter runReporter
	logg     *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	policy := params.Policy
	if policy.TargetMargin.IsZero() && policy.MinMargin.IsZero() {
		policy = DefaultPolicy()
	}
	if policy.TargetMargin.LessThan(policy.MinMargin) {
		return nil, fmt.Errorf("target margin %s is below minimum margin %s", policy.TargetMargin, policy.MinMargin)
	}
	return &service{
		ledger:   params.Ledger,
		catalog:  params.Catalog,
		policy:   policy,
		metrics:  params.Metrics,
		reporter: params.Reporter,
		logg:     params.Logger,
	}, nil
}

// candidate is the link whose landed cost bounds a product's price.
type candidate struct {
	link   models.ProductSupplierLink
	landed decimal.Decimal
}

// OptimizePricing reprices products whose margin left the policy band and
// returns how many were repriced.
func (s *service) OptimizePricing(ctx context.Context, supplierID *uuid.UUID) (int, error) {
	started := time.Now().UTC()
	links, err := s.candidateLinks(ctx, supplierID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load links")
	}

	products, order := costliestLinks(links)
	repriced, failed := 0, 0
	for _, productID := range order {
		ok, err := s.optimize(ctx, products[productID])
		if err != nil {
			failed++
			continue
		}
		if ok {
			repriced++
		}
	}

	s.metrics.AddReprices(repriced)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"examined": len(order),
		"repriced": repriced,
		"failed":   failed,
	}), "pricing run finished")
	s.report(ctx, supplierID, started, len(order), repriced, failed)
	return repriced, nil
}

// candidateLinks returns every link of the products in scope. A supplier
// filter narrows the products, never the links a product's floor is taken from.
func (s *service) candidateLinks(ctx context.Context, supplierID *uuid.UUID) ([]models.ProductSupplierLink, error) {
	links, err := s.ledger.Links(ctx, supplierID)
	if err != nil || supplierID == nil || len(links) == 0 {
		return links, err
	}
	seen := make(map[uuid.UUID]struct{}, len(links))
	productIDs := make([]uuid.UUID, 0, len(links))
	for _, link := range links {
		if _, ok := seen[link.ProductID]; ok {
			continue
		}
		seen[link.ProductID] = struct{}{}
		productIDs = append(productIDs, link.ProductID)
	}
	return s.ledger.LinksForProducts(ctx, productIDs)
}

// costliestLinks keeps, per product, the active link with the highest landed
// cost so a repriced product stays above every supplier's floor.
func costliestLinks(links []models.ProductSupplierLink) (map[uuid.UUID]candidate, []uuid.UUID) {
	out := map[uuid.UUID]candidate{}
	var order []uuid.UUID
	for _, link := range links {
		if link.Supplier == nil || !link.Supplier.Active {
			continue
		}
		landed := LandedCost(link.SupplierPrice, link.Supplier.CommissionRate)
		current, seen := out[link.ProductID]
		if !seen {
			order = append(order, link.ProductID)
		}
		if !seen || landed.GreaterThan(current.landed) {
			out[link.ProductID] = candidate{link: link, landed: landed}
		}
	}
	return out, order
}

func (s *service) optimize(ctx context.Context, c candidate) (bool, error) {
	link := c.link
	ctx = s.logg.WithFields(ctx, map[string]any{
		"product_id":  link.ProductID.String(),
		"supplier_id": link.SupplierID.String(),
	})
	if !c.landed.IsPositive() {
		return false, nil
	}

	price, err := s.catalog.GetPrice(ctx, link.ProductID)
	if err != nil {
		s.markError(ctx, link, err)
		return false, err
	}
	margin := Margin(price, c.landed)
	if !s.policy.NeedsReprice(margin) {
		return false, nil
	}

	newPrice := s.policy.TargetPrice(c.landed)
	if newPrice.Equal(price) {
		return false, nil
	}
	markup := PercentageMarkup(newPrice, link.SupplierPrice)
	event := outbox.DomainEvent{
		EventType:     enums.EventLinkRepriced,
		AggregateType: enums.AggregateSupplierLink,
		AggregateID:   link.ID,
		Source:        eventSource,
		Data: payloads.LinkRepricedEvent{
			LinkID:       link.ID,
			ProductID:    link.ProductID,
			SupplierID:   link.SupplierID,
			OldSalePrice: price.StringFixed(2),
			NewSalePrice: newPrice.StringFixed(2),
			OldMargin:    margin.StringFixed(4),
			NewMargin:    Margin(newPrice, c.landed).StringFixed(4),
		},
	}
	if _, err := s.ledger.UpdateLinkPricing(ctx, link.ProductID, link.SupplierID, enums.MarkupTypePercentage, markup, ledger.WithEvent(event)); err != nil {
		s.logg.Error(ctx, "update link pricing", err)
		return false, err
	}
	if err := s.catalog.SetPrice(ctx, link.ProductID, newPrice); err != nil {
		s.markError(ctx, link, err)
		return false, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"old_price": price.StringFixed(2),
		"new_price": newPrice.StringFixed(2),
	}), "product repriced")
	return true, nil
}

func (s *service) markError(ctx context.Context, link models.ProductSupplierLink, cause error) {
	s.logg.Warn(s.logg.WithField(ctx, "error", cause.Error()), "pricing failed for product")
	if err := s.ledger.MarkLinkSync(ctx, link.ProductID, link.SupplierID, enums.SyncStatusError, cause.Error()); err != nil {
		s.logg.Error(ctx, "mark link pricing error", err)
	}
}

func (s *service) report(ctx context.Context, supplierID *uuid.UUID, started time.Time, examined, repriced, failed int) {
	if s.reporter == nil {
		return
	}
	row := reporting.SyncRunRow{
		RunID:      uuid.NewString(),
		Job:        reporting.JobPricing,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Examined:   examined,
		Updated:    repriced,
		Failed:     failed,
	}
	if supplierID != nil {
		id := supplierID.String()
		row.SupplierID = &id
	}
	if err := s.reporter.RecordSyncRun(ctx, row); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "pricing run report failed")
	}
}
