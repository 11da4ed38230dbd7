package enums

import "fmt"

// LinkAction is an operation applied to product-supplier links by automation
// rules and bulk updates.
type LinkAction string

const (
	LinkActionUpdateMarkup     LinkAction = "update_markup"
	LinkActionSyncStock        LinkAction = "sync_stock"
	LinkActionEnableAutoOrder  LinkAction = "enable_auto_order"
	LinkActionDisableAutoOrder LinkAction = "disable_auto_order"
	LinkActionEnableStockSync  LinkAction = "enable_stock_sync"
	LinkActionDisableStockSync LinkAction = "disable_stock_sync"
)

var validLinkActions = []LinkAction{
	LinkActionUpdateMarkup,
	LinkActionSyncStock,
	LinkActionEnableAutoOrder,
	LinkActionDisableAutoOrder,
	LinkActionEnableStockSync,
	LinkActionDisableStockSync,
}

// String implements fmt.Stringer.
func (a LinkAction) String() string {
	return string(a)
}

// IsValid reports whether the action is recognized.
func (a LinkAction) IsValid() bool {
	for _, candidate := range validLinkActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// IsFlagToggle reports whether the action only flips a link flag, which is
// the subset automation rules may apply.
func (a LinkAction) IsFlagToggle() bool {
	switch a {
	case LinkActionEnableAutoOrder, LinkActionDisableAutoOrder, LinkActionEnableStockSync, LinkActionDisableStockSync:
		return true
	}
	return false
}

// ParseLinkAction converts raw input into a LinkAction.
func ParseLinkAction(value string) (LinkAction, error) {
	for _, candidate := range validLinkActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid link action %q", value)
}
