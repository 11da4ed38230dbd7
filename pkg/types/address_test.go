package types

import (
	"sort"
	"testing"
)

func TestAddressMissingFields(t *testing.T) {
	addr := Address{Name: "Ada", Line1: "1 Main St", City: " "}
	missing := addr.MissingFields()
	sort.Strings(missing)
	want := []string{"city", "country", "postal_code"}
	if len(missing) != len(want) {
		t.Fatalf("expected %v, got %v", want, missing)
	}
	for i := range want {
		if missing[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, missing)
		}
	}
}

func TestBuyerAddressBillingFallback(t *testing.T) {
	shipping := Address{Name: "Ada", Line1: "1 Main St", City: "Austin", PostalCode: "78701", Country: "US"}
	buyer := BuyerAddress{Shipping: shipping}
	if got := buyer.BillingOrShipping(); got.Line1 != shipping.Line1 {
		t.Fatalf("expected shipping fallback, got %+v", got)
	}

	billing := Address{Name: "Ada Corp", Line1: "9 Office Rd", City: "Dallas", PostalCode: "75201", Country: "US"}
	buyer.Billing = &billing
	if got := buyer.BillingOrShipping(); got.Line1 != billing.Line1 {
		t.Fatalf("expected billing block, got %+v", got)
	}
}
