package ledger

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// LinkFields are the writable columns of a ProductSupplierLink.
type LinkFields struct {
	SupplierSKU   string           `json:"supplier_sku"`
	SupplierPrice decimal.Decimal  `json:"supplier_price"`
	MarkupType    enums.MarkupType `json:"markup_type"`
	MarkupValue   decimal.Decimal  `json:"markup_value"`
	StockQuantity int              `json:"stock_quantity"`
	StockSync     bool             `json:"stock_sync"`
	AutoOrder     bool             `json:"auto_order"`
}

func (f LinkFields) validate() error {
	details := map[string]any{}
	if strings.TrimSpace(f.SupplierSKU) == "" {
		details["supplier_sku"] = "required"
	}
	if f.SupplierPrice.IsNegative() {
		details["supplier_price"] = "must be >= 0"
	}
	if !f.MarkupType.IsValid() {
		details["markup_type"] = "must be fixed or percentage"
	}
	if f.MarkupValue.IsNegative() {
		details["markup_value"] = "must be >= 0"
	}
	if f.StockQuantity < 0 {
		details["stock_quantity"] = "must be >= 0"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid link fields").WithDetails(details)
	}
	return nil
}

// Flags toggles link switches; nil fields are left untouched.
type Flags struct {
	AutoOrder *bool `json:"auto_order,omitempty"`
	StockSync *bool `json:"stock_sync,omitempty"`
}

func (f Flags) IsEmpty() bool {
	return f.AutoOrder == nil && f.StockSync == nil
}

// FlagsFor maps a flag toggle action to the flag it sets.
func FlagsFor(action enums.LinkAction) (Flags, bool) {
	on, off := true, false
	switch action {
	case enums.LinkActionEnableAutoOrder:
		return Flags{AutoOrder: &on}, true
	case enums.LinkActionDisableAutoOrder:
		return Flags{AutoOrder: &off}, true
	case enums.LinkActionEnableStockSync:
		return Flags{StockSync: &on}, true
	case enums.LinkActionDisableStockSync:
		return Flags{StockSync: &off}, true
	}
	return Flags{}, false
}

// SupplierOrderResult is the outcome of one supplier submission.
type SupplierOrderResult struct {
	SupplierOrderID  *string
	Status           enums.SupplierOrderStatus
	Currency         enums.Currency
	TotalAmount      decimal.Decimal
	CommissionAmount decimal.Decimal
	TrackingNumber   *string
	RawResponse      json.RawMessage
	LastError        *string
}

// StatusUpdate moves a supplier order forward in its lifecycle.
type StatusUpdate struct {
	Status         enums.SupplierOrderStatus `json:"status"`
	TrackingNumber *string                   `json:"tracking_number,omitempty"`
	Reason         *string                   `json:"reason,omitempty"`
}

// Commission returns amount × rate / 100 rounded to cents.
func Commission(amount, ratePercent decimal.Decimal) decimal.Decimal {
	c := amount.Mul(ratePercent).Div(hundred).Round(2)
	if c.IsNegative() {
		return decimal.Zero
	}
	return c
}
