package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dropsync-backend/api/responses"
	"github.com/angelmondragon/dropsync-backend/api/validators"
	"github.com/angelmondragon/dropsync-backend/internal/suppliers"
	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
)

type SupplierRequest struct {
	Name               string          `json:"name" validate:"required,max=200"`
	TransportKind      string          `json:"transport_kind" validate:"required"`
	CommissionRate     decimal.Decimal `json:"commission_rate"`
	MinimumOrder       decimal.Decimal `json:"minimum_order"`
	ShippingCost       decimal.Decimal `json:"shipping_cost"`
	ProcessingTimeDays int             `json:"processing_time_days" validate:"min=0,max=365"`
	Active             *bool           `json:"active"`
	FieldMapping       json.RawMessage `json:"field_mapping,omitempty"`
	TransportConfig    json.RawMessage `json:"transport_config,omitempty"`
}

func (req SupplierRequest) input() suppliers.Input {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return suppliers.Input{
		Name:               validators.SanitizeString(req.Name, 200),
		TransportKind:      enums.TransportKind(req.TransportKind),
		CommissionRate:     req.CommissionRate,
		MinimumOrder:       req.MinimumOrder,
		ShippingCost:       req.ShippingCost,
		ProcessingTimeDays: req.ProcessingTimeDays,
		Active:             active,
		FieldMapping:       req.FieldMapping,
		TransportConfig:    req.TransportConfig,
	}
}

func AdminListSuppliers(svc suppliers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 100, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		activeOnly := r.URL.Query().Get("active") == "true"
		list, err := svc.List(r.Context(), activeOnly)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if len(list) > limit {
			list = list[:limit]
		}
		views := make([]SupplierView, 0, len(list))
		for i := range list {
			views = append(views, newSupplierView(&list[i]))
		}
		responses.WriteSuccess(w, views)
	}
}

func AdminGetSupplier(svc suppliers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "supplierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		supplier, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSupplierView(supplier))
	}
}

func AdminCreateSupplier(svc suppliers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SupplierRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		supplier, err := svc.Create(r.Context(), req.input())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newSupplierView(supplier))
	}
}

func AdminUpdateSupplier(svc suppliers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "supplierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req SupplierRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		supplier, err := svc.Update(r.Context(), id, req.input())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSupplierView(supplier))
	}
}

// AdminDeleteSupplier removes the supplier together with its links.
func AdminDeleteSupplier(svc suppliers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "supplierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"deleted": true, "supplier_id": id})
	}
}
