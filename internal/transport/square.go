package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/dropsync-backend/internal/payload"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
	"github.com/angelmondragon/dropsync-backend/pkg/square"
)

type squareAPI interface {
	CreateOrder(ctx context.Context, params square.OrderCreateParams) (*sq.Order, error)
	CancelOrder(ctx context.Context, orderID string) (*sq.Order, error)
	InventoryCount(ctx context.Context, catalogObjectID, locationID string) (int, error)
}

// SquareGateway submits orders through the Square Orders API and reads
// stock from Square Inventory at one location.
type SquareGateway struct {
	api        squareAPI
	locationID string
}

func NewSquareGateway(api squareAPI, locationID string) (*SquareGateway, error) {
	if api == nil {
		return nil, fmt.Errorf("square client required")
	}
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "location_id is required for square suppliers").
			WithDetails(map[string]any{"transport_config": "location_id is required"})
	}
	return &SquareGateway{api: api, locationID: locationID}, nil
}

func (g *SquareGateway) CreateOrder(ctx context.Context, p payload.Payload) (string, json.RawMessage, error) {
	sp, ok := p.(*payload.SquareOrderPayload)
	if !ok || sp == nil {
		return "", nil, pkgerrors.New(pkgerrors.CodeMapping, fmt.Sprintf("square gateway cannot send %T", p))
	}
	location := sp.LocationID
	if location == "" {
		location = g.locationID
	}

	params := square.OrderCreateParams{
		LocationID:     location,
		ReferenceID:    sp.ReferenceID,
		Currency:       sp.Currency,
		IdempotencyKey: fmt.Sprintf("order-%s-%s", location, sp.ReferenceID),
	}
	for _, line := range sp.Lines {
		params.Lines = append(params.Lines, square.OrderLineParams{
			CatalogObjectID: line.CatalogObjectID,
			Quantity:        line.Quantity,
			UnitAmountCents: line.BasePriceCents,
		})
	}
	if r := sp.Recipient; r != nil {
		params.Recipient = &square.RecipientParams{
			DisplayName:  r.DisplayName,
			EmailAddress: r.Email,
			PhoneNumber:  r.Phone,
			AddressLine1: r.Address.Line1,
			AddressLine2: deref(r.Address.Line2),
			Locality:     r.Address.City,
			Region:       r.Address.State,
			PostalCode:   r.Address.PostalCode,
			Country:      r.Address.Country,
		}
	}

	order, err := g.api.CreateOrder(ctx, params)
	if err != nil {
		return "", nil, asTransport("create_order", err)
	}
	id := ""
	if order != nil && order.GetID() != nil {
		id = *order.GetID()
	}
	if id == "" {
		return "", nil, pkgerrors.New(pkgerrors.CodeTransport, "square returned an order without id")
	}
	raw, err := json.Marshal(order)
	if err != nil {
		return "", nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode square order")
	}
	return id, raw, nil
}

// FetchStock treats the supplier sku as the Square catalog variation id.
func (g *SquareGateway) FetchStock(ctx context.Context, sku string) (int, error) {
	qty, err := g.api.InventoryCount(ctx, sku, g.locationID)
	if err != nil {
		return 0, asTransport("fetch_stock", err)
	}
	return qty, nil
}

func (g *SquareGateway) CancelOrder(ctx context.Context, supplierOrderID string) error {
	if _, err := g.api.CancelOrder(ctx, supplierOrderID); err != nil {
		return asTransport("cancel_order", err)
	}
	return nil
}

// asTransport normalizes SDK failures to TRANSPORT_ERROR while keeping the
// original code in the details.
func asTransport(op string, err error) error {
	code := pkgerrors.CodeOf(err)
	if code == pkgerrors.CodeTransport || code == pkgerrors.CodeMapping {
		return err
	}
	return transportError(op, err, map[string]any{"cause_code": string(code)})
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
