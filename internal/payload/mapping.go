package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
)

const (
	AddressBlockShipping = "shipping"
	AddressBlockBilling  = "billing"

	ItemKeySupplierSKU = "supplier_sku"
	ItemKeyProductID   = "product_id"

	OrderRefLocalOrderID       = "local_order_id"
	OrderRefMarketplaceOrderID = "marketplace_order_id"
)

// FieldMapping is the per-supplier payload configuration stored as JSON on
// suppliers.field_mapping. Empty fields take the transport kind's default.
type FieldMapping struct {
	AddressBlock     string `json:"address_block,omitempty"`
	ItemKey          string `json:"item_key,omitempty"`
	OrderReference   string `json:"order_reference,omitempty"`
	LocationID       string `json:"location_id,omitempty"`
	CurrencyOverride string `json:"currency_override,omitempty"`
}

// DefaultMapping returns the mapping used for a kind when a supplier stores none.
func DefaultMapping(kind enums.TransportKind) FieldMapping {
	m := FieldMapping{
		ItemKey:        ItemKeySupplierSKU,
		OrderReference: OrderRefLocalOrderID,
	}
	switch kind {
	case enums.TransportKindRESTFlat:
		m.AddressBlock = AddressBlockBilling
	default:
		m.AddressBlock = AddressBlockShipping
	}
	return m
}

// ParseFieldMapping decodes a stored mapping. Unknown keys are rejected.
func ParseFieldMapping(raw json.RawMessage) (FieldMapping, error) {
	var m FieldMapping
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return m, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return m, mappingError("field_mapping", fmt.Sprintf("invalid field mapping: %v", err))
	}
	return m, nil
}

// Resolve fills defaults for kind and validates every value.
func (m FieldMapping) Resolve(kind enums.TransportKind) (FieldMapping, error) {
	if !kind.IsValid() {
		return m, mappingError("transport_kind", fmt.Sprintf("unknown transport kind %q", kind))
	}
	def := DefaultMapping(kind)
	out := FieldMapping{
		AddressBlock:     orDefault(m.AddressBlock, def.AddressBlock),
		ItemKey:          orDefault(m.ItemKey, def.ItemKey),
		OrderReference:   orDefault(m.OrderReference, def.OrderReference),
		LocationID:       strings.TrimSpace(m.LocationID),
		CurrencyOverride: strings.TrimSpace(m.CurrencyOverride),
	}

	switch out.AddressBlock {
	case AddressBlockShipping, AddressBlockBilling:
	default:
		return out, mappingError("address_block", fmt.Sprintf("unknown address_block %q", out.AddressBlock))
	}
	switch out.ItemKey {
	case ItemKeySupplierSKU, ItemKeyProductID:
	default:
		return out, mappingError("item_key", fmt.Sprintf("unknown item_key %q", out.ItemKey))
	}
	switch out.OrderReference {
	case OrderRefLocalOrderID, OrderRefMarketplaceOrderID:
	default:
		return out, mappingError("order_reference", fmt.Sprintf("unknown order_reference %q", out.OrderReference))
	}

	if kind == enums.TransportKindSquare {
		if out.LocationID == "" {
			return out, mappingError("location_id", "location_id is required for square suppliers")
		}
	} else if out.LocationID != "" {
		return out, mappingError("location_id", fmt.Sprintf("location_id is not supported for %s suppliers", kind))
	}

	if out.CurrencyOverride != "" {
		currency, err := enums.ParseCurrency(out.CurrencyOverride)
		if err != nil {
			return out, mappingError("currency_override", err.Error())
		}
		out.CurrencyOverride = string(currency)
	}
	return out, nil
}

// ValidateFieldMapping parses and resolves raw for kind; used on supplier writes.
func ValidateFieldMapping(kind enums.TransportKind, raw json.RawMessage) error {
	m, err := ParseFieldMapping(raw)
	if err != nil {
		return err
	}
	_, err = m.Resolve(kind)
	return err
}

func orDefault(value, def string) string {
	if trimmed := strings.ToLower(strings.TrimSpace(value)); trimmed != "" {
		return trimmed
	}
	return def
}

func mappingError(field, msg string) error {
	return pkgerrors.New(pkgerrors.CodeMapping, msg).WithDetails(map[string]any{"field": field})
}
