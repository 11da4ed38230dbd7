package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dropsync-backend/internal/ledger"
	"github.com/angelmondragon/dropsync-backend/pkg/enums"
)

var hundred = decimal.NewFromInt(100)

// Policy bounds the margin the optimizer keeps products at. Values are ratios
// (0.30 means 30%).
type Policy struct {
	MinMargin    decimal.Decimal
	TargetMargin decimal.Decimal
	Tolerance    decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		MinMargin:    decimal.RequireFromString("0.15"),
		TargetMargin: decimal.RequireFromString("0.30"),
		Tolerance:    decimal.RequireFromString("0.05"),
	}
}

// LandedCost is the supplier unit price plus the commission owed on one unit.
func LandedCost(supplierPrice, commissionRate decimal.Decimal) decimal.Decimal {
	return supplierPrice.Add(ledger.Commission(supplierPrice, commissionRate)).Round(2)
}

// SalePrice applies the link markup to the supplier price. The result never
// drops below the landed cost.
func SalePrice(supplierPrice, commissionRate decimal.Decimal, markupType enums.MarkupType, markupValue decimal.Decimal) decimal.Decimal {
	var price decimal.Decimal
	switch markupType {
	case enums.MarkupTypeFixed:
		price = supplierPrice.Add(markupValue)
	default:
		price = supplierPrice.Mul(decimal.NewFromInt(1).Add(markupValue.Div(hundred)))
	}
	price = price.Round(2)
	if landed := LandedCost(supplierPrice, commissionRate); price.LessThan(landed) {
		return landed
	}
	return price
}

// Margin is (price - landed) / landed. A zero landed cost yields zero.
func Margin(price, landed decimal.Decimal) decimal.Decimal {
	if !landed.IsPositive() {
		return decimal.Zero
	}
	return price.Sub(landed).Div(landed)
}

// NeedsReprice reports whether margin falls outside the policy band.
func (p Policy) NeedsReprice(margin decimal.Decimal) bool {
	if margin.LessThan(p.MinMargin) {
		return true
	}
	return margin.Sub(p.TargetMargin).Abs().GreaterThan(p.Tolerance)
}

// TargetPrice is landed x (1 + target), floored at landed.
func (p Policy) TargetPrice(landed decimal.Decimal) decimal.Decimal {
	price := landed.Mul(decimal.NewFromInt(1).Add(p.TargetMargin)).Round(2)
	if price.LessThan(landed) {
		return landed
	}
	return price
}

// PercentageMarkup expresses price as a percentage markup over supplierPrice.
func PercentageMarkup(price, supplierPrice decimal.Decimal) decimal.Decimal {
	if !supplierPrice.IsPositive() {
		return decimal.Zero
	}
	return price.Div(supplierPrice).Sub(decimal.NewFromInt(1)).Mul(hundred).Round(2)
}
