package payload

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
	"github.com/angelmondragon/dropsync-backend/pkg/types"
)

func sampleHeader() Header {
	billing := types.Address{
		Name:       "Ada Billing",
		Line1:      "1 Invoice St",
		City:       "Austin",
		State:      "TX",
		PostalCode: "73301",
		Country:    "US",
	}
	return Header{
		LocalOrderID:       "L-100",
		MarketplaceOrderID: "MP-9",
		Currency:           enums.CurrencyUSD,
		Address: types.BuyerAddress{
			Shipping: types.Address{
				Name:       "Ada Ship",
				Line1:      "2 Dock Rd",
				City:       "Dallas",
				State:      "TX",
				PostalCode: "75001",
				Country:    "US",
				Phone:      "555-0100",
			},
			Billing: &billing,
			Email:   "ada@example.com",
		},
	}
}

func sampleLines() []Line {
	return []Line{
		{ProductID: uuid.New(), SupplierSKU: "SKU-1", Quantity: 2, UnitPrice: decimal.RequireFromString("10.50")},
		{ProductID: uuid.New(), SupplierSKU: "SKU-2", Quantity: 1, UnitPrice: decimal.RequireFromString("3.005")},
	}
}

func requireMappingError(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMapping), "got %v", err)
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	require.Equal(t, field, details["field"])
}

func TestBuildFlatUsesBillingBlockBySupplierSKU(t *testing.T) {
	p, err := Build(enums.TransportKindRESTFlat, FieldMapping{}, sampleHeader(), sampleLines())
	require.NoError(t, err)

	flat, ok := p.(*FlatOrderPayload)
	require.True(t, ok)
	require.Equal(t, enums.TransportKindRESTFlat, flat.Kind())
	require.Equal(t, "L-100", flat.OrderReference)
	require.Equal(t, "USD", flat.Currency)
	require.Equal(t, "1 Invoice St", flat.Address.Line1)
	require.Equal(t, "ada@example.com", flat.Email)
	require.Len(t, flat.Items, 2)
	require.Equal(t, FlatItem{SKU: "SKU-1", Quantity: 2, UnitPrice: "10.50"}, flat.Items[0])
	require.Equal(t, "3.01", flat.Items[1].UnitPrice)
}

func TestBuildFlatFallsBackToShippingWithoutBilling(t *testing.T) {
	header := sampleHeader()
	header.Address.Billing = nil

	p, err := Build(enums.TransportKindRESTFlat, FieldMapping{}, header, sampleLines())
	require.NoError(t, err)
	require.Equal(t, "2 Dock Rd", p.(*FlatOrderPayload).Address.Line1)
}

func TestBuildNestedShapesShipment(t *testing.T) {
	mapping := FieldMapping{OrderReference: OrderRefMarketplaceOrderID}
	p, err := Build(enums.TransportKindRESTNested, mapping, sampleHeader(), sampleLines())
	require.NoError(t, err)

	nested := p.(*NestedOrderPayload)
	require.Equal(t, "MP-9", nested.Reference())
	require.Equal(t, "Ada Ship", nested.Shipment.Recipient.FullName)
	require.Equal(t, "555-0100", nested.Shipment.Recipient.Phone)
	require.Len(t, nested.Shipment.Packages, 1)
	require.Equal(t, NestedItem{ContentID: "SKU-1", Quantity: 2, Price: "10.50"}, nested.Shipment.Packages[0].Items[0])

	raw, err := json.Marshal(nested)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"content_id":"SKU-2"`)
}

func TestBuildSquareUsesMinorUnitsAndLocation(t *testing.T) {
	lines := sampleLines()
	mapping := FieldMapping{LocationID: "LOC-1", ItemKey: ItemKeyProductID, CurrencyOverride: "eur"}

	p, err := Build(enums.TransportKindSquare, mapping, sampleHeader(), lines)
	require.NoError(t, err)

	sq := p.(*SquareOrderPayload)
	require.Equal(t, "LOC-1", sq.LocationID)
	require.Equal(t, "EUR", sq.Currency)
	require.Equal(t, lines[0].ProductID.String(), sq.Lines[0].CatalogObjectID)
	require.Equal(t, int64(1050), sq.Lines[0].BasePriceCents)
	require.Equal(t, int64(301), sq.Lines[1].BasePriceCents)
	require.Equal(t, "Ada Ship", sq.Recipient.DisplayName)
}

func TestBuildRejectsBadInput(t *testing.T) {
	cases := []struct {
		name    string
		kind    enums.TransportKind
		mapping FieldMapping
		header  func(*Header)
		lines   func([]Line) []Line
		field   string
	}{
		{name: "unknown kind", kind: "ftp", field: "transport_kind"},
		{name: "no lines", kind: enums.TransportKindRESTFlat, lines: func([]Line) []Line { return nil }, field: "lines"},
		{name: "zero quantity", kind: enums.TransportKindRESTFlat, lines: func(l []Line) []Line { l[1].Quantity = 0; return l }, field: "quantity"},
		{name: "blank sku", kind: enums.TransportKindRESTNested, lines: func(l []Line) []Line { l[0].SupplierSKU = " "; return l }, field: "supplier_sku"},
		{name: "square without location", kind: enums.TransportKindSquare, field: "location_id"},
		{name: "location on rest", kind: enums.TransportKindRESTFlat, mapping: FieldMapping{LocationID: "X"}, field: "location_id"},
		{name: "bad address block", kind: enums.TransportKindRESTFlat, mapping: FieldMapping{AddressBlock: "office"}, field: "address_block"},
		{name: "bad currency override", kind: enums.TransportKindRESTFlat, mapping: FieldMapping{CurrencyOverride: "XXX"}, field: "currency_override"},
		{name: "missing marketplace id", kind: enums.TransportKindRESTFlat, mapping: FieldMapping{OrderReference: OrderRefMarketplaceOrderID},
			header: func(h *Header) { h.MarketplaceOrderID = "" }, field: "marketplace_order_id"},
		{name: "incomplete shipping", kind: enums.TransportKindRESTNested,
			header: func(h *Header) { h.Address.Shipping.PostalCode = "" }, field: "shipping_address"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header := sampleHeader()
			if tc.header != nil {
				tc.header(&header)
			}
			lines := sampleLines()
			if tc.lines != nil {
				lines = tc.lines(lines)
			}
			_, err := Build(tc.kind, tc.mapping, header, lines)
			requireMappingError(t, err, tc.field)
		})
	}
}

func TestParseFieldMapping(t *testing.T) {
	m, err := ParseFieldMapping(json.RawMessage(`{"address_block":"billing","location_id":"L1"}`))
	require.NoError(t, err)
	require.Equal(t, AddressBlockBilling, m.AddressBlock)
	require.Equal(t, "L1", m.LocationID)

	m, err = ParseFieldMapping(nil)
	require.NoError(t, err)
	require.Equal(t, FieldMapping{}, m)

	_, err = ParseFieldMapping(json.RawMessage(`{"shipping_field":"x"}`))
	requireMappingError(t, err, "field_mapping")
}

func TestValidateFieldMapping(t *testing.T) {
	require.NoError(t, ValidateFieldMapping(enums.TransportKindSquare, json.RawMessage(`{"location_id":"L1"}`)))
	require.Error(t, ValidateFieldMapping(enums.TransportKindSquare, json.RawMessage(`{}`)))
	require.NoError(t, ValidateFieldMapping(enums.TransportKindRESTNested, nil))
}

func TestDefaultMappingByKind(t *testing.T) {
	require.Equal(t, AddressBlockBilling, DefaultMapping(enums.TransportKindRESTFlat).AddressBlock)
	require.Equal(t, AddressBlockShipping, DefaultMapping(enums.TransportKindRESTNested).AddressBlock)
	require.Equal(t, AddressBlockShipping, DefaultMapping(enums.TransportKindSquare).AddressBlock)
}

func TestMinorUnits(t *testing.T) {
	require.Equal(t, int64(1999), MinorUnits(decimal.RequireFromString("19.99")))
	require.Equal(t, int64(1), MinorUnits(decimal.RequireFromString("0.005")))
	require.Equal(t, int64(0), MinorUnits(decimal.Zero))
}
