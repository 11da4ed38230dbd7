package payload

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	"github.com/angelmondragon/dropsync-backend/pkg/types"
)

// Payload is a supplier order body for one transport kind.
type Payload interface {
	Kind() enums.TransportKind
	// Reference is the order reference the supplier sees.
	Reference() string
}

// Header carries the order-level data a payload may reference.
type Header struct {
	LocalOrderID       string
	MarketplaceOrderID string
	Currency           enums.Currency
	Address            types.BuyerAddress
}

// Line is one routed order line priced at the supplier's cost.
type Line struct {
	ProductID   uuid.UUID
	SupplierSKU string
	Quantity    int
	UnitPrice   decimal.Decimal
}

type FlatOrderPayload struct {
	OrderReference string        `json:"order_reference"`
	Currency       string        `json:"currency"`
	Email          string        `json:"email,omitempty"`
	Address        types.Address `json:"address"`
	Items          []FlatItem    `json:"items"`
}

type FlatItem struct {
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

func (*FlatOrderPayload) Kind() enums.TransportKind { return enums.TransportKindRESTFlat }
func (p *FlatOrderPayload) Reference() string       { return p.OrderReference }

type NestedOrderPayload struct {
	ReferenceID string         `json:"reference"`
	Currency    string         `json:"currency"`
	Shipment    NestedShipment `json:"shipment"`
}

type NestedShipment struct {
	Recipient NestedRecipient `json:"recipient"`
	Packages  []NestedPackage `json:"packages"`
}

type NestedRecipient struct {
	FullName string        `json:"full_name"`
	Email    string        `json:"email,omitempty"`
	Phone    string        `json:"phone,omitempty"`
	Address  types.Address `json:"address"`
}

type NestedPackage struct {
	Items []NestedItem `json:"items"`
}

type NestedItem struct {
	ContentID string `json:"content_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

func (*NestedOrderPayload) Kind() enums.TransportKind { return enums.TransportKindRESTNested }
func (p *NestedOrderPayload) Reference() string       { return p.ReferenceID }

type SquareOrderPayload struct {
	LocationID  string           `json:"location_id"`
	ReferenceID string           `json:"reference_id"`
	Currency    string           `json:"currency"`
	Lines       []SquareLine     `json:"lines"`
	Recipient   *SquareRecipient `json:"recipient,omitempty"`
}

type SquareLine struct {
	CatalogObjectID string `json:"catalog_object_id"`
	Quantity        int    `json:"quantity"`
	BasePriceCents  int64  `json:"base_price_cents"`
}

type SquareRecipient struct {
	DisplayName string        `json:"display_name"`
	Email       string        `json:"email,omitempty"`
	Phone       string        `json:"phone,omitempty"`
	Address     types.Address `json:"address"`
}

func (*SquareOrderPayload) Kind() enums.TransportKind { return enums.TransportKindSquare }
func (p *SquareOrderPayload) Reference() string       { return p.ReferenceID }
