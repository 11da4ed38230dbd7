package controllers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropsync-backend/internal/bulk"
	"github.com/angelmondragon/dropsync-backend/internal/ledger"
	"github.com/angelmondragon/dropsync-backend/pkg/db/models"
	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
)

type stubLinkWriter struct {
	upsertFn func(ctx context.Context, productID, supplierID uuid.UUID, fields ledger.LinkFields) (*models.ProductSupplierLink, error)
	deleteFn func(ctx context.Context, productID, supplierID uuid.UUID) error
}

func (s stubLinkWriter) UpsertLink(ctx context.Context, productID, supplierID uuid.UUID, fields ledger.LinkFields) (*models.ProductSupplierLink, error) {
	return s.upsertFn(ctx, productID, supplierID, fields)
}

func (s stubLinkWriter) DeleteLink(ctx context.Context, productID, supplierID uuid.UUID) error {
	return s.deleteFn(ctx, productID, supplierID)
}

type stubBulkService struct {
	fn func(ctx context.Context, productIDs []uuid.UUID, action enums.LinkAction, params bulk.Params) (bulk.Result, error)
}

func (s stubBulkService) BulkUpdateLinks(ctx context.Context, productIDs []uuid.UUID, action enums.LinkAction, params bulk.Params) (bulk.Result, error) {
	return s.fn(ctx, productIDs, action, params)
}

func TestAdminUpsertLink(t *testing.T) {
	productID, supplierID := uuid.New(), uuid.New()
	writer := stubLinkWriter{
		upsertFn: func(ctx context.Context, p, s uuid.UUID, fields ledger.LinkFields) (*models.ProductSupplierLink, error) {
			if p != productID || s != supplierID {
				t.Errorf("unexpected pair %s/%s", p, s)
			}
			if fields.MarkupType != enums.MarkupTypePercentage || fields.SupplierSKU != "SKU-1" || !fields.AutoOrder {
				t.Errorf("unexpected fields %+v", fields)
			}
			return &models.ProductSupplierLink{ID: uuid.New(), ProductID: p, SupplierID: s, SupplierSKU: fields.SupplierSKU, MarkupType: fields.MarkupType, SyncStatus: enums.SyncStatusPending, Version: 1}, nil
		},
	}
	body := fmt.Sprintf(`{"product_id":%q,"supplier_id":%q,"supplier_sku":"SKU-1","supplier_price":"12.50","markup_type":"percentage","markup_value":"30","stock_quantity":4,"auto_order":true}`, productID, supplierID)
	resp := serve(t, http.MethodPut, "/links", "/links", body, AdminUpsertLink(writer, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var view LinkView
	decodeData(t, resp, &view)
	if view.ProductID != productID || view.Version != 1 || view.SyncStatus != enums.SyncStatusPending {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestAdminUpsertLinkValidation(t *testing.T) {
	writer := stubLinkWriter{
		upsertFn: func(ctx context.Context, p, s uuid.UUID, fields ledger.LinkFields) (*models.ProductSupplierLink, error) {
			t.Errorf("ledger should not be called")
			return nil, nil
		},
	}
	cases := map[string]string{
		"missing ids":      `{"supplier_sku":"SKU-1","markup_type":"fixed"}`,
		"bad markup type":  fmt.Sprintf(`{"product_id":%q,"supplier_id":%q,"supplier_sku":"SKU-1","markup_type":"flat"}`, uuid.New(), uuid.New()),
		"negative stock":   fmt.Sprintf(`{"product_id":%q,"supplier_id":%q,"supplier_sku":"SKU-1","markup_type":"fixed","stock_quantity":-1}`, uuid.New(), uuid.New()),
		"unknown property": `{"supplier_sku":"SKU-1","markup_type":"fixed","colour":"red"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := serve(t, http.MethodPut, "/links", "/links", body, AdminUpsertLink(writer, nil))
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", resp.Code)
			}
		})
	}
}

func TestAdminDeleteLink(t *testing.T) {
	productID, supplierID := uuid.New(), uuid.New()
	writer := stubLinkWriter{
		deleteFn: func(ctx context.Context, p, s uuid.UUID) error {
			if p != productID || s != supplierID {
				t.Errorf("unexpected pair %s/%s", p, s)
			}
			return pkgerrors.New(pkgerrors.CodeNotFound, "link not found")
		},
	}
	target := fmt.Sprintf("/links/%s/%s", productID, supplierID)
	resp := serve(t, http.MethodDelete, "/links/{productId}/{supplierId}", target, "", AdminDeleteLink(writer, nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestAdminBulkLinks(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	svc := stubBulkService{
		fn: func(ctx context.Context, productIDs []uuid.UUID, action enums.LinkAction, params bulk.Params) (bulk.Result, error) {
			if action != enums.LinkActionUpdateMarkup {
				t.Errorf("unexpected action %s", action)
			}
			if len(productIDs) != 2 || params.MarkupType != enums.MarkupTypeFixed {
				t.Errorf("unexpected input %v %+v", productIDs, params)
			}
			return bulk.Result{Success: 1, Failed: 1, Errors: []string{productIDs[1].String() + ": link not found"}}, nil
		},
	}
	body := fmt.Sprintf(`{"product_ids":[%q,%q],"action":"update_markup","markup_type":"fixed","markup_value":"5"}`, ids[0], ids[1])
	resp := serve(t, http.MethodPost, "/links/bulk", "/links/bulk", body, AdminBulkLinks(svc, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var result bulk.Result
	decodeData(t, resp, &result)
	if result.Success != 1 || result.Failed != 1 || len(result.Errors) != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestAdminBulkLinksRejectsUnknownAction(t *testing.T) {
	svc := stubBulkService{
		fn: func(ctx context.Context, productIDs []uuid.UUID, action enums.LinkAction, params bulk.Params) (bulk.Result, error) {
			t.Errorf("service should not be called")
			return bulk.Result{}, nil
		},
	}
	body := fmt.Sprintf(`{"product_ids":[%q],"action":"delete_everything"}`, uuid.New())
	resp := serve(t, http.MethodPost, "/links/bulk", "/links/bulk", body, AdminBulkLinks(svc, nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
