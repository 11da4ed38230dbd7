package enums

import "testing"

func TestParseTransportKindNormalizes(t *testing.T) {
	kind, err := ParseTransportKind("  REST_Nested ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != TransportKindRESTNested {
		t.Fatalf("expected rest_nested, got %s", kind)
	}
	if _, err := ParseTransportKind("acme supplier"); err == nil {
		t.Fatalf("expected free-text supplier names to be rejected")
	}
}

func TestSupplierOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from SupplierOrderStatus
		to   SupplierOrderStatus
		want bool
	}{
		{SupplierOrderStatusPending, SupplierOrderStatusProcessing, true},
		{SupplierOrderStatusProcessing, SupplierOrderStatusShipped, true},
		{SupplierOrderStatusShipped, SupplierOrderStatusDelivered, true},
		{SupplierOrderStatusShipped, SupplierOrderStatusProcessing, false},
		{SupplierOrderStatusProcessing, SupplierOrderStatusCancelled, true},
		{SupplierOrderStatusDelivered, SupplierOrderStatusCancelled, false},
		{SupplierOrderStatusCancelled, SupplierOrderStatusProcessing, false},
		{SupplierOrderStatusError, SupplierOrderStatusProcessing, true},
		{SupplierOrderStatusError, SupplierOrderStatusShipped, false},
		{SupplierOrderStatusProcessing, SupplierOrderStatusProcessing, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanAdvanceTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestLinkActionFlagToggles(t *testing.T) {
	if LinkActionUpdateMarkup.IsFlagToggle() || LinkActionSyncStock.IsFlagToggle() {
		t.Fatalf("markup and stock sync are not flag toggles")
	}
	if !LinkActionEnableStockSync.IsFlagToggle() || !LinkActionDisableAutoOrder.IsFlagToggle() {
		t.Fatalf("expected flag toggles")
	}
	if _, err := ParseLinkAction("delete_everything"); err == nil {
		t.Fatalf("expected unknown action to fail")
	}
}
