package payloads

import (
	"time"

	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	"github.com/google/uuid"
)

// SupplierOrderSubmittedEvent reports a sub-order accepted by the supplier.
type SupplierOrderSubmittedEvent struct {
	SupplierOrderID  uuid.UUID      `json:"supplier_order_id"`
	LocalOrderID     string         `json:"local_order_id"`
	SupplierID       uuid.UUID      `json:"supplier_id"`
	SupplierRef      string         `json:"supplier_ref"`
	TotalAmount      string         `json:"total_amount"`
	CommissionAmount string         `json:"commission_amount"`
	Currency         enums.Currency `json:"currency"`
}

// SupplierOrderFailedEvent reports a sub-order the supplier could not take.
type SupplierOrderFailedEvent struct {
	SupplierOrderID uuid.UUID `json:"supplier_order_id"`
	LocalOrderID    string    `json:"local_order_id"`
	SupplierID      uuid.UUID `json:"supplier_id"`
	Code            string    `json:"code"`
	Error           string    `json:"error"`
}

// SupplierOrderCancelledEvent is emitted when a sub-order is cancelled locally.
type SupplierOrderCancelledEvent struct {
	SupplierOrderID uuid.UUID `json:"supplier_order_id"`
	LocalOrderID    string    `json:"local_order_id"`
	SupplierID      uuid.UUID `json:"supplier_id"`
	CancelledAt     time.Time `json:"cancelled_at"`
}

// LinkSyncFailedEvent reports a stock fetch failure for one link.
type LinkSyncFailedEvent struct {
	LinkID     uuid.UUID `json:"link_id"`
	ProductID  uuid.UUID `json:"product_id"`
	SupplierID uuid.UUID `json:"supplier_id"`
	Error      string    `json:"error"`
}

// LinkRepricedEvent carries the before/after sale price of a repriced link.
type LinkRepricedEvent struct {
	LinkID       uuid.UUID `json:"link_id"`
	ProductID    uuid.UUID `json:"product_id"`
	SupplierID   uuid.UUID `json:"supplier_id"`
	OldSalePrice string    `json:"old_sale_price"`
	NewSalePrice string    `json:"new_sale_price"`
	OldMargin    string    `json:"old_margin"`
	NewMargin    string    `json:"new_margin"`
}
