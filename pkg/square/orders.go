package square

import (
	"context"
	"strings"

	sq "github.com/square/square-go-sdk"
)

// CreateOrder submits an order to the supplier's Square location.
func (c *Client) CreateOrder(ctx context.Context, params OrderCreateParams) (*sq.Order, error) {
	if c == nil || c.sdk == nil {
		return nil, errClientNotConfigured
	}
	req := params.toSquareRequest(c.ensureIdempotencyKey("order.create", params.IdempotencyKey))
	c.log(ctx, "request", "create_order", map[string]any{
		"location_id":  params.LocationID,
		"reference_id": params.ReferenceID,
		"line_count":   len(params.Lines),
	})

	resp, err := c.sdk.Orders.Create(ctx, req)
	if err != nil {
		c.log(ctx, "error", "create_order", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "create order")
	}

	order := resp.GetOrder()
	c.log(ctx, "response", "create_order", map[string]any{
		"order_id": stringValue(order.GetID()),
	})
	return order, nil
}

// CancelOrder moves an existing order to CANCELED. The current version is
// read first since Square rejects updates against a stale version.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*sq.Order, error) {
	if c == nil || c.sdk == nil {
		return nil, errClientNotConfigured
	}
	orderID = strings.TrimSpace(orderID)
	c.log(ctx, "request", "cancel_order", map[string]any{"order_id": orderID})

	current, err := c.sdk.Orders.Get(ctx, &sq.GetOrdersRequest{OrderID: orderID})
	if err != nil {
		c.log(ctx, "error", "cancel_order", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "get order")
	}
	existing := current.GetOrder()

	state := sq.OrderStateCanceled
	resp, err := c.sdk.Orders.Update(ctx, &sq.UpdateOrderRequest{
		OrderID: orderID,
		Order: &sq.Order{
			LocationID: existing.GetLocationID(),
			Version:    existing.GetVersion(),
			State:      &state,
		},
		IdempotencyKey: ptrString(c.NewIdempotencyKey("order.cancel")),
	})
	if err != nil {
		c.log(ctx, "error", "cancel_order", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "cancel order")
	}

	order := resp.GetOrder()
	c.log(ctx, "response", "cancel_order", map[string]any{"order_id": stringValue(order.GetID())})
	return order, nil
}
