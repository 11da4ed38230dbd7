package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateSupplierOrder OutboxAggregateType = "supplier_order"
	AggregateSupplierLink  OutboxAggregateType = "product_supplier_link"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateSupplierOrder,
	AggregateSupplierLink,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventSupplierOrderSubmitted OutboxEventType = "supplier_order_submitted"
	EventSupplierOrderFailed    OutboxEventType = "supplier_order_failed"
	EventSupplierOrderCancelled OutboxEventType = "supplier_order_cancelled"
	EventLinkSyncFailed         OutboxEventType = "link_sync_failed"
	EventLinkRepriced           OutboxEventType = "link_repriced"
)

var validOutboxEventTypes = []OutboxEventType{
	EventSupplierOrderSubmitted,
	EventSupplierOrderFailed,
	EventSupplierOrderCancelled,
	EventLinkSyncFailed,
	EventLinkRepriced,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
