package controllers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dropsync-backend/internal/dispatch"
	"github.com/angelmondragon/dropsync-backend/internal/ledger"
	"github.com/angelmondragon/dropsync-backend/pkg/db/models"
	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
)

type stubDispatcher struct {
	dispatchFn func(ctx context.Context, order dispatch.Order) (dispatch.Result, error)
	cancelFn   func(ctx context.Context, localOrderID string) (dispatch.CancelResult, error)
}

func (s stubDispatcher) Dispatch(ctx context.Context, order dispatch.Order) (dispatch.Result, error) {
	return s.dispatchFn(ctx, order)
}

func (s stubDispatcher) Cancel(ctx context.Context, localOrderID string) (dispatch.CancelResult, error) {
	return s.cancelFn(ctx, localOrderID)
}

func (stubDispatcher) Wait() {}

type stubOrderLedger struct {
	rows      []models.SupplierOrder
	advanceFn func(ctx context.Context, localOrderID string, supplierID uuid.UUID, update ledger.StatusUpdate) (*models.SupplierOrder, error)
}

func (s stubOrderLedger) SupplierOrdersForOrder(ctx context.Context, localOrderID string) ([]models.SupplierOrder, error) {
	var out []models.SupplierOrder
	for _, row := range s.rows {
		if row.LocalOrderID == localOrderID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s stubOrderLedger) AdvanceSupplierOrder(ctx context.Context, localOrderID string, supplierID uuid.UUID, update ledger.StatusUpdate) (*models.SupplierOrder, error) {
	return s.advanceFn(ctx, localOrderID, supplierID, update)
}

const orderBody = `{
	"local_order_id": "ORD-1001",
	"currency": "USD",
	"buyer_address": {"shipping": {"name": "Sam Doe", "line1": "1 Main St", "city": "Austin", "state": "TX", "postal_code": "78701", "country": "US"}},
	"lines": [
		{"product_id": %q, "quantity": 2, "unit_price": "10.00"},
		{"product_id": %q, "quantity": 1, "unit_price": "4.00"}
	]
}`

func TestAdminDispatchOrderReportsEachBranch(t *testing.T) {
	okSupplier, failedSupplier := uuid.New(), uuid.New()
	p1, p2 := uuid.New(), uuid.New()
	svc := stubDispatcher{
		dispatchFn: func(ctx context.Context, order dispatch.Order) (dispatch.Result, error) {
			if order.LocalOrderID != "ORD-1001" || len(order.Lines) != 2 {
				t.Errorf("unexpected order %+v", order)
			}
			if !order.Lines[0].UnitPrice.Equal(decimal.RequireFromString("10")) {
				t.Errorf("unexpected unit price %s", order.Lines[0].UnitPrice)
			}
			return dispatch.Result{Outcomes: map[uuid.UUID]dispatch.Outcome{
				okSupplier:     {SupplierID: okSupplier, SupplierOrderID: "SUP-9", Lines: order.Lines[:1]},
				failedSupplier: {SupplierID: failedSupplier, Lines: order.Lines[1:], Err: pkgerrors.New(pkgerrors.CodeTransport, "supplier returned 503")},
			}}, nil
		},
	}
	resp := serve(t, http.MethodPost, "/orders/dispatch", "/orders/dispatch", fmt.Sprintf(orderBody, p1, p2), AdminDispatchOrder(svc, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var view DispatchView
	decodeData(t, resp, &view)
	if !view.Succeeded || len(view.Outcomes) != 2 {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.Unrouted == nil {
		t.Fatalf("unrouted should be an empty list")
	}
	for _, outcome := range view.Outcomes {
		switch outcome.SupplierID {
		case okSupplier:
			if outcome.Status != "submitted" || outcome.SupplierOrderID != "SUP-9" {
				t.Fatalf("unexpected ok outcome %+v", outcome)
			}
		case failedSupplier:
			if outcome.Status != "failed" || outcome.ErrorCode != string(pkgerrors.CodeTransport) {
				t.Fatalf("unexpected failed outcome %+v", outcome)
			}
		default:
			t.Fatalf("unexpected supplier %s", outcome.SupplierID)
		}
	}
}

func TestAdminDispatchOrderValidationError(t *testing.T) {
	svc := stubDispatcher{
		dispatchFn: func(ctx context.Context, order dispatch.Order) (dispatch.Result, error) {
			return dispatch.Result{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid order")
		},
	}
	resp := serve(t, http.MethodPost, "/orders/dispatch", "/orders/dispatch", `{"local_order_id":"","currency":"USD","lines":[]}`, AdminDispatchOrder(svc, nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminCancelOrder(t *testing.T) {
	supplierID := uuid.New()
	svc := stubDispatcher{
		cancelFn: func(ctx context.Context, localOrderID string) (dispatch.CancelResult, error) {
			if localOrderID != "ORD-7" {
				t.Errorf("unexpected order id %q", localOrderID)
			}
			return dispatch.CancelResult{LocalOrderID: localOrderID, Cancelled: []uuid.UUID{supplierID}}, nil
		},
	}
	resp := serve(t, http.MethodPost, "/orders/{orderId}/cancel", "/orders/ORD-7/cancel", "", AdminCancelOrder(svc, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var result dispatch.CancelResult
	decodeData(t, resp, &result)
	if len(result.Cancelled) != 1 || result.Cancelled[0] != supplierID {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestAdminSupplierOrders(t *testing.T) {
	ref := "SUP-1"
	orders := stubOrderLedger{rows: []models.SupplierOrder{
		{ID: uuid.New(), LocalOrderID: "ORD-1", SupplierID: uuid.New(), SupplierOrderID: &ref, Status: enums.SupplierOrderStatusProcessing, Currency: enums.CurrencyUSD, TotalAmount: decimal.RequireFromString("20.00")},
		{ID: uuid.New(), LocalOrderID: "ORD-2", SupplierID: uuid.New(), Status: enums.SupplierOrderStatusError},
	}}
	resp := serve(t, http.MethodGet, "/orders/{orderId}/supplier-orders", "/orders/ORD-1/supplier-orders", "", AdminSupplierOrders(orders, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var views []SupplierOrderView
	decodeData(t, resp, &views)
	if len(views) != 1 || views[0].SupplierOrderID == nil || *views[0].SupplierOrderID != "SUP-1" {
		t.Fatalf("unexpected views %+v", views)
	}
}

func TestAdminAdvanceSupplierOrder(t *testing.T) {
	supplierID := uuid.New()
	orders := stubOrderLedger{
		advanceFn: func(ctx context.Context, localOrderID string, got uuid.UUID, update ledger.StatusUpdate) (*models.SupplierOrder, error) {
			if got != supplierID || localOrderID != "ORD-3" {
				t.Errorf("unexpected target %s %s", localOrderID, got)
			}
			if update.Status != enums.SupplierOrderStatusShipped || update.TrackingNumber == nil || *update.TrackingNumber != "1Z999" {
				t.Errorf("unexpected update %+v", update)
			}
			return &models.SupplierOrder{ID: uuid.New(), LocalOrderID: localOrderID, SupplierID: got, Status: update.Status, TrackingNumber: update.TrackingNumber}, nil
		},
	}
	target := fmt.Sprintf("/orders/ORD-3/supplier-orders/%s/status", supplierID)
	resp := serve(t, http.MethodPut, "/orders/{orderId}/supplier-orders/{supplierId}/status", target, `{"status":"shipped","tracking_number":"1Z999"}`, AdminAdvanceSupplierOrder(orders, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var view SupplierOrderView
	decodeData(t, resp, &view)
	if view.Status != enums.SupplierOrderStatusShipped {
		t.Fatalf("unexpected status %s", view.Status)
	}
}

func TestAdminAdvanceSupplierOrderRejectsUnknownStatus(t *testing.T) {
	orders := stubOrderLedger{
		advanceFn: func(ctx context.Context, localOrderID string, got uuid.UUID, update ledger.StatusUpdate) (*models.SupplierOrder, error) {
			t.Errorf("ledger should not be called")
			return nil, nil
		},
	}
	target := fmt.Sprintf("/orders/ORD-3/supplier-orders/%s/status", uuid.New())
	resp := serve(t, http.MethodPut, "/orders/{orderId}/supplier-orders/{supplierId}/status", target, `{"status":"lost"}`, AdminAdvanceSupplierOrder(orders, nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
