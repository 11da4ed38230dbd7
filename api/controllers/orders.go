package controllers

import (
	"context"
	"net/http"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropsync-backend/api/responses"
	"github.com/angelmondragon/dropsync-backend/api/validators"
	"github.com/angelmondragon/dropsync-backend/internal/dispatch"
	"github.com/angelmondragon/dropsync-backend/internal/ledger"
	"github.com/angelmondragon/dropsync-backend/pkg/db/models"
	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
)

// SupplierOrderLedger is the slice of the ledger the order endpoints need.
type SupplierOrderLedger interface {
	SupplierOrdersForOrder(ctx context.Context, localOrderID string) ([]models.SupplierOrder, error)
	AdvanceSupplierOrder(ctx context.Context, localOrderID string, supplierID uuid.UUID, update ledger.StatusUpdate) (*models.SupplierOrder, error)
}

type AdvanceStatusRequest struct {
	Status         string  `json:"status" validate:"required"`
	TrackingNumber *string `json:"tracking_number,omitempty" validate:"omitempty,max=128"`
	Reason         *string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// OutcomeView is one supplier branch of a dispatch.
type OutcomeView struct {
	SupplierID       uuid.UUID            `json:"supplier_id"`
	Status           string               `json:"status"`
	SupplierOrderID  string               `json:"supplier_order_id,omitempty"`
	RecordID         uuid.UUID            `json:"record_id,omitempty"`
	AlreadySubmitted bool                 `json:"already_submitted,omitempty"`
	Lines            []dispatch.OrderLine `json:"lines"`
	ErrorCode        string               `json:"error_code,omitempty"`
	Error            string               `json:"error,omitempty"`
}

type DispatchView struct {
	LocalOrderID string               `json:"local_order_id"`
	Succeeded    bool                 `json:"succeeded"`
	Outcomes     []OutcomeView        `json:"outcomes"`
	Unrouted     []dispatch.OrderLine `json:"unrouted"`
}

func newDispatchView(localOrderID string, result dispatch.Result) DispatchView {
	view := DispatchView{
		LocalOrderID: localOrderID,
		Succeeded:    result.Succeeded(),
		Outcomes:     make([]OutcomeView, 0, len(result.Outcomes)),
		Unrouted:     result.Unrouted,
	}
	if view.Unrouted == nil {
		view.Unrouted = []dispatch.OrderLine{}
	}
	for supplierID, outcome := range result.Outcomes {
		ov := OutcomeView{
			SupplierID:       supplierID,
			Status:           "submitted",
			SupplierOrderID:  outcome.SupplierOrderID,
			RecordID:         outcome.RecordID,
			AlreadySubmitted: outcome.AlreadySubmitted,
			Lines:            outcome.Lines,
		}
		if outcome.Err != nil {
			ov.Status = "failed"
			ov.ErrorCode = string(pkgerrors.CodeOf(outcome.Err))
			ov.Error = outcome.Err.Error()
		}
		view.Outcomes = append(view.Outcomes, ov)
	}
	sort.Slice(view.Outcomes, func(i, j int) bool {
		return view.Outcomes[i].SupplierID.String() < view.Outcomes[j].SupplierID.String()
	})
	return view
}

// AdminDispatchOrder fans an order out to its suppliers. Branch failures are
// reported per supplier; only order-level errors fail the request.
func AdminDispatchOrder(dispatcher dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var order dispatch.Order
		if err := validators.DecodeJSONBody(r, &order); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, order.LocalOrderID)
		}
		result, err := dispatcher.Dispatch(ctx, order)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newDispatchView(order.LocalOrderID, result))
	}
}

func AdminCancelOrder(dispatcher dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := stringParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := dispatcher.Cancel(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminSupplierOrders(orders SupplierOrderLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := stringParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := orders.SupplierOrdersForOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]SupplierOrderView, 0, len(rows))
		for i := range rows {
			views = append(views, newSupplierOrderView(&rows[i]))
		}
		responses.WriteSuccess(w, views)
	}
}

// AdminAdvanceSupplierOrder records a supplier-side lifecycle change such as
// shipment or delivery.
func AdminAdvanceSupplierOrder(orders SupplierOrderLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := stringParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		supplierID, err := uuidParam(r, "supplierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req AdvanceStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseSupplierOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").WithDetails(map[string]string{"status": "is invalid"}))
			return
		}
		row, err := orders.AdvanceSupplierOrder(r.Context(), orderID, supplierID, ledger.StatusUpdate{
			Status:         status,
			TrackingNumber: req.TrackingNumber,
			Reason:         req.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSupplierOrderView(row))
	}
}
