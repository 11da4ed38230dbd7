package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropsync-backend/api/responses"
	"github.com/angelmondragon/dropsync-backend/api/validators"
	"github.com/angelmondragon/dropsync-backend/internal/pricing"
	"github.com/angelmondragon/dropsync-backend/internal/stocksync"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
)

// SyncRequest optionally narrows a run to one supplier or one product.
type SyncRequest struct {
	SupplierID *uuid.UUID `json:"supplier_id,omitempty"`
	ProductID  *uuid.UUID `json:"product_id,omitempty"`
}

// AdminRunStockSync runs stock reconciliation on demand. A product_id syncs
// every link of that product regardless of the stock_sync flag.
func AdminRunStockSync(svc stocksync.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SyncRequest
		if hasBody(r) {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		var (
			updated int
			err     error
		)
		if req.ProductID != nil && *req.ProductID != uuid.Nil {
			updated, err = svc.SyncProduct(r.Context(), *req.ProductID)
		} else {
			updated, err = svc.RunSync(r.Context(), req.SupplierID)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int{"updated": updated})
	}
}

func AdminRunPricing(svc pricing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SyncRequest
		if hasBody(r) {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		repriced, err := svc.OptimizePricing(r.Context(), req.SupplierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int{"repriced": repriced})
	}
}
