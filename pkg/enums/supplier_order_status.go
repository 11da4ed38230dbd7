package enums

import "fmt"

// SupplierOrderStatus tracks the lifecycle of an order placed with a supplier.
type SupplierOrderStatus string

const (
	SupplierOrderStatusPending    SupplierOrderStatus = "pending"
	SupplierOrderStatusProcessing SupplierOrderStatus = "processing"
	SupplierOrderStatusShipped    SupplierOrderStatus = "shipped"
	SupplierOrderStatusDelivered  SupplierOrderStatus = "delivered"
	SupplierOrderStatusCancelled  SupplierOrderStatus = "cancelled"
	SupplierOrderStatusError      SupplierOrderStatus = "error"
)

var validSupplierOrderStatuses = []SupplierOrderStatus{
	SupplierOrderStatusPending,
	SupplierOrderStatusProcessing,
	SupplierOrderStatusShipped,
	SupplierOrderStatusDelivered,
	SupplierOrderStatusCancelled,
	SupplierOrderStatusError,
}

// supplierOrderRank orders the forward path; cancelled/error sit outside it.
var supplierOrderRank = map[SupplierOrderStatus]int{
	SupplierOrderStatusPending:    0,
	SupplierOrderStatusProcessing: 1,
	SupplierOrderStatusShipped:    2,
	SupplierOrderStatusDelivered:  3,
}

// String implements fmt.Stringer.
func (s SupplierOrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SupplierOrderStatus.
func (s SupplierOrderStatus) IsValid() bool {
	for _, candidate := range validSupplierOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s SupplierOrderStatus) IsTerminal() bool {
	return s == SupplierOrderStatusDelivered || s == SupplierOrderStatusCancelled
}

// CanAdvanceTo reports whether moving from s to next keeps the status monotone.
// Error may be re-submitted, which moves it back to pending or processing.
func (s SupplierOrderStatus) CanAdvanceTo(next SupplierOrderStatus) bool {
	if !next.IsValid() || s.IsTerminal() {
		return false
	}
	if s == next {
		return false
	}
	switch next {
	case SupplierOrderStatusCancelled, SupplierOrderStatusError:
		return true
	}
	if s == SupplierOrderStatusError {
		return next == SupplierOrderStatusPending || next == SupplierOrderStatusProcessing
	}
	return supplierOrderRank[next] > supplierOrderRank[s]
}

// ParseSupplierOrderStatus converts raw input into a SupplierOrderStatus.
func ParseSupplierOrderStatus(value string) (SupplierOrderStatus, error) {
	for _, candidate := range validSupplierOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid supplier order status %q", value)
}
