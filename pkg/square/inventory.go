package square

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"

	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
)

// InventoryCount returns the IN_STOCK quantity for a catalog object, summed
// across locations, or for one location when locationID is set.
func (c *Client) InventoryCount(ctx context.Context, catalogObjectID, locationID string) (int, error) {
	if c == nil || c.sdk == nil {
		return 0, errClientNotConfigured
	}
	req := &sq.GetInventoryRequest{CatalogObjectID: strings.TrimSpace(catalogObjectID)}
	if trimmed := strings.TrimSpace(locationID); trimmed != "" {
		req.LocationIDs = &trimmed
	}
	c.log(ctx, "request", "inventory_count", map[string]any{
		"catalog_object_id": catalogObjectID,
		"location_id":       locationID,
	})

	page, err := c.sdk.Inventory.Get(ctx, req)
	if err != nil {
		c.log(ctx, "error", "inventory_count", map[string]any{"error": err.Error()})
		return 0, c.mapSquareError(err, "inventory count")
	}

	total, err := sumInStock(page.Results)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeTransport, err, "square inventory count unparseable")
	}
	c.log(ctx, "response", "inventory_count", map[string]any{"quantity": total})
	return total, nil
}

func sumInStock(counts []*sq.InventoryCount) (int, error) {
	total := decimal.Zero
	for _, count := range counts {
		if count == nil {
			continue
		}
		if state := count.GetState(); state != nil && *state != sq.InventoryStateInStock {
			continue
		}
		raw := strings.TrimSpace(stringValue(count.GetQuantity()))
		if raw == "" {
			continue
		}
		qty, err := decimal.NewFromString(raw)
		if err != nil {
			return 0, fmt.Errorf("quantity %q: %w", raw, err)
		}
		total = total.Add(qty)
	}
	if total.IsNegative() {
		return 0, nil
	}
	return int(total.Floor().IntPart()), nil
}
