package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dropsync-backend/api/responses"
	"github.com/angelmondragon/dropsync-backend/api/validators"
	"github.com/angelmondragon/dropsync-backend/internal/bulk"
	"github.com/angelmondragon/dropsync-backend/internal/ledger"
	"github.com/angelmondragon/dropsync-backend/pkg/db/models"
	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
)

// LinkWriter is the slice of the ledger the link endpoints need.
type LinkWriter interface {
	UpsertLink(ctx context.Context, productID, supplierID uuid.UUID, fields ledger.LinkFields) (*models.ProductSupplierLink, error)
	DeleteLink(ctx context.Context, productID, supplierID uuid.UUID) error
}

type UpsertLinkRequest struct {
	ProductID     uuid.UUID       `json:"product_id"`
	SupplierID    uuid.UUID       `json:"supplier_id"`
	SupplierSKU   string          `json:"supplier_sku" validate:"required,max=128"`
	SupplierPrice decimal.Decimal `json:"supplier_price"`
	MarkupType    string          `json:"markup_type" validate:"required,oneof=fixed percentage"`
	MarkupValue   decimal.Decimal `json:"markup_value"`
	StockQuantity int             `json:"stock_quantity" validate:"min=0"`
	StockSync     bool            `json:"stock_sync"`
	AutoOrder     bool            `json:"auto_order"`
}

type BulkLinksRequest struct {
	ProductIDs  []uuid.UUID     `json:"product_ids" validate:"required,min=1,max=500"`
	Action      string          `json:"action" validate:"required"`
	MarkupType  string          `json:"markup_type,omitempty" validate:"omitempty,oneof=fixed percentage"`
	MarkupValue decimal.Decimal `json:"markup_value"`
	SupplierID  *uuid.UUID      `json:"supplier_id,omitempty"`
}

func AdminUpsertLink(links LinkWriter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpsertLinkRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := requireIDs(map[string]uuid.UUID{"product_id": req.ProductID, "supplier_id": req.SupplierID}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		link, err := links.UpsertLink(r.Context(), req.ProductID, req.SupplierID, ledger.LinkFields{
			SupplierSKU:   validators.SanitizeString(req.SupplierSKU, 128),
			SupplierPrice: req.SupplierPrice,
			MarkupType:    enums.MarkupType(req.MarkupType),
			MarkupValue:   req.MarkupValue,
			StockQuantity: req.StockQuantity,
			StockSync:     req.StockSync,
			AutoOrder:     req.AutoOrder,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newLinkView(link))
	}
}

func AdminDeleteLink(links LinkWriter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := uuidParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		supplierID, err := uuidParam(r, "supplierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := links.DeleteLink(r.Context(), productID, supplierID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"deleted": true, "product_id": productID, "supplier_id": supplierID})
	}
}

// AdminBulkLinks applies one action across many products. Per-product
// failures are reported in the result rather than failing the request.
func AdminBulkLinks(svc bulk.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BulkLinksRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		action, err := enums.ParseLinkAction(req.Action)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action").WithDetails(map[string]string{"action": "is invalid"}))
			return
		}
		result, err := svc.BulkUpdateLinks(r.Context(), req.ProductIDs, action, bulk.Params{
			MarkupType:  enums.MarkupType(req.MarkupType),
			MarkupValue: req.MarkupValue,
			SupplierID:  req.SupplierID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.Errors == nil {
			result.Errors = []string{}
		}
		responses.WriteSuccess(w, result)
	}
}
