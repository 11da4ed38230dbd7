package controllers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
)

type stubStockSync struct {
	runSupplier *uuid.UUID
	runCalled   bool
	product     uuid.UUID
	err         error
}

func (s *stubStockSync) RunSync(ctx context.Context, supplierID *uuid.UUID) (int, error) {
	s.runCalled = true
	s.runSupplier = supplierID
	return 3, s.err
}

func (s *stubStockSync) SyncProduct(ctx context.Context, productID uuid.UUID) (int, error) {
	s.product = productID
	return 1, s.err
}

type stubPricing struct {
	supplierID *uuid.UUID
}

func (s *stubPricing) OptimizePricing(ctx context.Context, supplierID *uuid.UUID) (int, error) {
	s.supplierID = supplierID
	return 2, nil
}

func TestAdminRunStockSyncWithoutBody(t *testing.T) {
	svc := &stubStockSync{}
	resp := serve(t, http.MethodPost, "/sync/stock", "/sync/stock", "", AdminRunStockSync(svc, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !svc.runCalled || svc.runSupplier != nil {
		t.Fatalf("expected full run, got called=%v supplier=%v", svc.runCalled, svc.runSupplier)
	}
	var out map[string]int
	decodeData(t, resp, &out)
	if out["updated"] != 3 {
		t.Fatalf("unexpected payload %v", out)
	}
}

func TestAdminRunStockSyncForProduct(t *testing.T) {
	svc := &stubStockSync{}
	productID := uuid.New()
	resp := serve(t, http.MethodPost, "/sync/stock", "/sync/stock", fmt.Sprintf(`{"product_id":%q}`, productID), AdminRunStockSync(svc, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.runCalled || svc.product != productID {
		t.Fatalf("expected product sync for %s", productID)
	}
}

func TestAdminRunStockSyncPropagatesErrors(t *testing.T) {
	svc := &stubStockSync{err: pkgerrors.New(pkgerrors.CodeDependency, "list links")}
	resp := serve(t, http.MethodPost, "/sync/stock", "/sync/stock", "", AdminRunStockSync(svc, nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestAdminRunPricingForSupplier(t *testing.T) {
	svc := &stubPricing{}
	supplierID := uuid.New()
	resp := serve(t, http.MethodPost, "/sync/pricing", "/sync/pricing", fmt.Sprintf(`{"supplier_id":%q}`, supplierID), AdminRunPricing(svc, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.supplierID == nil || *svc.supplierID != supplierID {
		t.Fatalf("expected supplier scope %s", supplierID)
	}
	var out map[string]int
	decodeData(t, resp, &out)
	if out["repriced"] != 2 {
		t.Fatalf("unexpected payload %v", out)
	}
}
