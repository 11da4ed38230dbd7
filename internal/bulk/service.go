package bulk

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/dropsync-backend/internal/catalog"
	"github.com/angelmondragon/dropsync-backend/internal/ledger"
	"github.com/angelmondragon/dropsync-backend/internal/pricing"
	"github.com/angelmondragon/dropsync-backend/pkg/db/models"
	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
)

type linkLedger interface {
	LinksForProducts(ctx context.Context, productIDs []uuid.UUID) ([]models.ProductSupplierLink, error)
	SetLinkFlags(ctx context.Context, productID, supplierID uuid.UUID, flags ledger.Flags) (bool, error)
	UpdateLinkPricing(ctx context.Context, productID, supplierID uuid.UUID, markupType enums.MarkupType, markupValue decimal.Decimal, opts ...ledger.WriteOption) (*models.ProductSupplierLink, error)
}

type stockSyncer interface {
	SyncProduct(ctx context.Context, productID uuid.UUID) (int, error)
}

// Params carries action arguments. SupplierID narrows the action to one
// supplier's links.
type Params struct {
	MarkupType  enums.MarkupType `json:"markup_type,omitempty"`
	MarkupValue decimal.Decimal  `json:"markup_value"`
	SupplierID  *uuid.UUID       `json:"supplier_id,omitempty"`
}

// Result counts per-product outcomes. Errors are "<productID>: <message>".
type Result struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`

	errs error
}

// Err combines the per-product failures.
func (r Result) Err() error {
	return r.errs
}

type Service interface {
	BulkUpdateLinks(ctx context.Context, productIDs []uuid.UUID, action enums.LinkAction, params Params) (Result, error)
}

type ServiceParams struct {
	Ledger  linkLedger
	Catalog catalog.Store
	Stock   stockSyncer
	Logger  *logger.Logger
}

type service struct {
	ledger  linkLedger
	catalog catalog.Store
	stock   stockSyncer
	logg    *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog store required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock syncer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{ledger: params.Ledger, catalog: params.Catalog, stock: params.Stock, logg: params.Logger}, nil
}

// BulkUpdateLinks applies action to every product, continuing past failures.
func (s *service) BulkUpdateLinks(ctx context.Context, productIDs []uuid.UUID, action enums.LinkAction, params Params) (Result, error) {
	if !action.IsValid() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid action %q", action))
	}
	if len(productIDs) == 0 {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "product_ids required")
	}
	if action == enums.LinkActionUpdateMarkup {
		if !params.MarkupType.IsValid() {
			return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "markup_type must be fixed or percentage")
		}
		if params.MarkupValue.IsNegative() {
			return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "markup_value must be >= 0")
		}
	}

	result := Result{Errors: []string{}}
	seen := map[uuid.UUID]struct{}{}
	for _, productID := range productIDs {
		if _, dup := seen[productID]; dup {
			continue
		}
		seen[productID] = struct{}{}

		if err := s.applyOne(ctx, productID, action, params); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", productID, err.Error()))
			result.errs = multierr.Append(result.errs, fmt.Errorf("%s: %w", productID, err))
			continue
		}
		result.Success++
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"action":  string(action),
		"success": result.Success,
		"failed":  result.Failed,
	}), "bulk link update finished")
	return result, nil
}

func (s *service) applyOne(ctx context.Context, productID uuid.UUID, action enums.LinkAction, params Params) error {
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if action == enums.LinkActionSyncStock {
		_, err := s.stock.SyncProduct(ctx, productID)
		return err
	}

	links, err := s.ledger.LinksForProducts(ctx, []uuid.UUID{productID})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product links")
	}
	if params.SupplierID != nil {
		narrowed := links[:0:0]
		for _, l := range links {
			if l.SupplierID == *params.SupplierID {
				narrowed = append(narrowed, l)
			}
		}
		links = narrowed
	}
	if len(links) == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no supplier links for product")
	}

	if flags, ok := ledger.FlagsFor(action); ok {
		for _, link := range links {
			if _, err := s.ledger.SetLinkFlags(ctx, productID, link.SupplierID, flags); err != nil {
				return err
			}
		}
		return nil
	}
	return s.updateMarkup(ctx, productID, links, params)
}

// updateMarkup rewrites the markup of each link and moves the catalog price
// to the highest resulting sale price.
func (s *service) updateMarkup(ctx context.Context, productID uuid.UUID, links []models.ProductSupplierLink, params Params) error {
	price := decimal.Zero
	for _, link := range links {
		if _, err := s.ledger.UpdateLinkPricing(ctx, productID, link.SupplierID, params.MarkupType, params.MarkupValue); err != nil {
			return err
		}
		rate := decimal.Zero
		if link.Supplier != nil {
			rate = link.Supplier.CommissionRate
		}
		sale := pricing.SalePrice(link.SupplierPrice, rate, params.MarkupType, params.MarkupValue)
		if sale.GreaterThan(price) {
			price = sale
		}
	}
	return s.catalog.SetPrice(ctx, productID, price)
}
