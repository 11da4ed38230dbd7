package dispatch

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
	"github.com/angelmondragon/dropsync-backend/pkg/types"
)

// Order is a customer order as received from the marketplace.
type Order struct {
	LocalOrderID       string             `json:"local_order_id"`
	MarketplaceOrderID string             `json:"marketplace_order_id,omitempty"`
	Currency           enums.Currency     `json:"currency"`
	BuyerAddress       types.BuyerAddress `json:"buyer_address"`
	Lines              []OrderLine        `json:"lines"`
}

type OrderLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (o Order) validate() error {
	details := map[string]any{}
	if strings.TrimSpace(o.LocalOrderID) == "" {
		details["local_order_id"] = "required"
	}
	if !o.Currency.IsValid() {
		details["currency"] = fmt.Sprintf("unsupported currency %q", o.Currency)
	}
	if len(o.Lines) == 0 {
		details["lines"] = "at least one line is required"
	}
	for i, line := range o.Lines {
		if line.ProductID == uuid.Nil {
			details[fmt.Sprintf("lines[%d].product_id", i)] = "required"
		}
		if line.Quantity <= 0 {
			details[fmt.Sprintf("lines[%d].quantity", i)] = "must be > 0"
		}
		if line.UnitPrice.IsNegative() {
			details[fmt.Sprintf("lines[%d].unit_price", i)] = "must be >= 0"
		}
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order").WithDetails(details)
	}
	return nil
}

// Outcome is the result of one supplier branch.
type Outcome struct {
	SupplierID      uuid.UUID   `json:"supplier_id"`
	SupplierOrderID string      `json:"supplier_order_id,omitempty"`
	RecordID        uuid.UUID   `json:"record_id,omitempty"`
	Lines           []OrderLine `json:"lines"`
	// AlreadySubmitted marks a branch recorded by an earlier dispatch.
	AlreadySubmitted bool  `json:"already_submitted,omitempty"`
	Err              error `json:"-"`
}

func (o Outcome) OK() bool { return o.Err == nil }

// Result maps each routed supplier to its outcome.
type Result struct {
	Outcomes map[uuid.UUID]Outcome `json:"outcomes"`
	Unrouted []OrderLine           `json:"unrouted"`
}

// Succeeded reports whether at least one supplier branch went through.
func (r Result) Succeeded() bool {
	for _, outcome := range r.Outcomes {
		if outcome.OK() {
			return true
		}
	}
	return false
}

// Failed returns the supplier ids whose branch failed.
func (r Result) Failed() []uuid.UUID {
	var out []uuid.UUID
	for id, outcome := range r.Outcomes {
		if !outcome.OK() {
			out = append(out, id)
		}
	}
	return out
}

// CancelResult lists what a cancellation touched.
type CancelResult struct {
	LocalOrderID string               `json:"local_order_id"`
	Cancelled    []uuid.UUID          `json:"cancelled"`
	Skipped      []uuid.UUID          `json:"skipped"`
	Errors       map[uuid.UUID]string `json:"errors,omitempty"`
}
