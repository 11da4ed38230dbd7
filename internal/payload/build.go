package payload

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	"github.com/angelmondragon/dropsync-backend/pkg/types"
)

var hundred = decimal.NewFromInt(100)

// Build translates one supplier's slice of an order into that supplier's
// payload. It has no side effects; every configuration or data gap is a
// MAPPING_ERROR.
func Build(kind enums.TransportKind, mapping FieldMapping, header Header, lines []Line) (Payload, error) {
	resolved, err := mapping.Resolve(kind)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, mappingError("lines", "no lines to submit")
	}

	ref, err := orderReference(resolved, header)
	if err != nil {
		return nil, err
	}
	currency := string(header.Currency)
	if resolved.CurrencyOverride != "" {
		currency = resolved.CurrencyOverride
	}
	if currency == "" {
		return nil, mappingError("currency", "currency is required")
	}
	addr, err := addressBlock(resolved, header.Address)
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(lines))
	for i, line := range lines {
		if line.Quantity <= 0 {
			return nil, mappingError("quantity", fmt.Sprintf("line %d has non-positive quantity", i))
		}
		if line.UnitPrice.IsNegative() {
			return nil, mappingError("unit_price", fmt.Sprintf("line %d has negative price", i))
		}
		key, err := itemKey(resolved, line)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}

	phone := strings.TrimSpace(header.Address.Phone)
	if phone == "" {
		phone = addr.Phone
	}

	switch kind {
	case enums.TransportKindRESTFlat:
		out := &FlatOrderPayload{
			OrderReference: ref,
			Currency:       currency,
			Email:          header.Address.Email,
			Address:        addr,
		}
		for i, line := range lines {
			out.Items = append(out.Items, FlatItem{
				SKU:       keys[i],
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice.StringFixed(2),
			})
		}
		return out, nil

	case enums.TransportKindRESTNested:
		pkg := NestedPackage{}
		for i, line := range lines {
			pkg.Items = append(pkg.Items, NestedItem{
				ContentID: keys[i],
				Quantity:  line.Quantity,
				Price:     line.UnitPrice.StringFixed(2),
			})
		}
		return &NestedOrderPayload{
			ReferenceID: ref,
			Currency:    currency,
			Shipment: NestedShipment{
				Recipient: NestedRecipient{
					FullName: addr.Name,
					Email:    header.Address.Email,
					Phone:    phone,
					Address:  addr,
				},
				Packages: []NestedPackage{pkg},
			},
		}, nil

	case enums.TransportKindSquare:
		out := &SquareOrderPayload{
			LocationID:  resolved.LocationID,
			ReferenceID: ref,
			Currency:    currency,
			Recipient: &SquareRecipient{
				DisplayName: addr.Name,
				Email:       header.Address.Email,
				Phone:       phone,
				Address:     addr,
			},
		}
		for i, line := range lines {
			out.Lines = append(out.Lines, SquareLine{
				CatalogObjectID: keys[i],
				Quantity:        line.Quantity,
				BasePriceCents:  MinorUnits(line.UnitPrice),
			})
		}
		return out, nil
	}
	return nil, mappingError("transport_kind", fmt.Sprintf("unknown transport kind %q", kind))
}

// MinorUnits converts a money amount into cents, rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func orderReference(m FieldMapping, header Header) (string, error) {
	switch m.OrderReference {
	case OrderRefMarketplaceOrderID:
		ref := strings.TrimSpace(header.MarketplaceOrderID)
		if ref == "" {
			return "", mappingError("marketplace_order_id", "marketplace_order_id is required by the supplier mapping")
		}
		return ref, nil
	default:
		ref := strings.TrimSpace(header.LocalOrderID)
		if ref == "" {
			return "", mappingError("local_order_id", "local_order_id is required")
		}
		return ref, nil
	}
}

func addressBlock(m FieldMapping, buyer types.BuyerAddress) (types.Address, error) {
	addr := buyer.Shipping
	if m.AddressBlock == AddressBlockBilling {
		addr = buyer.BillingOrShipping()
	}
	if missing := addr.MissingFields(); len(missing) > 0 {
		return addr, mappingError(m.AddressBlock+"_address", fmt.Sprintf("%s address missing %s", m.AddressBlock, strings.Join(missing, ", ")))
	}
	return addr, nil
}

func itemKey(m FieldMapping, line Line) (string, error) {
	if m.ItemKey == ItemKeyProductID {
		return line.ProductID.String(), nil
	}
	sku := strings.TrimSpace(line.SupplierSKU)
	if sku == "" {
		return "", mappingError("supplier_sku", fmt.Sprintf("supplier sku missing for product %s", line.ProductID))
	}
	return sku, nil
}
