package pricing

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dropsync-backend/pkg/enums"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLandedCostAndSalePricePercentage(t *testing.T) {
	landed := LandedCost(d("10.00"), d("10"))
	if !landed.Equal(d("11.00")) {
		t.Fatalf("expected landed 11.00, got %s", landed)
	}
	sale := SalePrice(d("10.00"), d("10"), enums.MarkupTypePercentage, d("30"))
	if !sale.Equal(d("13.00")) {
		t.Fatalf("expected sale 13.00, got %s", sale)
	}
}

func TestSalePriceFixedAndFloor(t *testing.T) {
	if got := SalePrice(d("10.00"), d("0"), enums.MarkupTypeFixed, d("2.50")); !got.Equal(d("12.50")) {
		t.Fatalf("expected 12.50, got %s", got)
	}
	// a 5% markup cannot cover a 20% commission
	if got := SalePrice(d("10.00"), d("20"), enums.MarkupTypePercentage, d("5")); !got.Equal(d("12.00")) {
		t.Fatalf("expected landed floor 12.00, got %s", got)
	}
}

func TestPolicyNeverPricesBelowLandedCost(t *testing.T) {
	policies := []Policy{
		DefaultPolicy(),
		{MinMargin: d("0"), TargetMargin: d("0"), Tolerance: d("0")},
		{MinMargin: d("0.5"), TargetMargin: d("1.2"), Tolerance: d("0.01")},
	}
	prices := []string{"0.01", "0.99", "10.00", "19.99", "123.45", "9999.99"}
	rates := []string{"0", "2.5", "10", "33.33", "100"}
	for _, p := range policies {
		for _, price := range prices {
			for _, rate := range rates {
				landed := LandedCost(d(price), d(rate))
				if got := p.TargetPrice(landed); got.LessThan(landed) {
					t.Fatalf("target %s below landed %s (price %s rate %s)", got, landed, price, rate)
				}
				if got := SalePrice(d(price), d(rate), enums.MarkupTypePercentage, d("0")); got.LessThan(landed) {
					t.Fatalf("sale %s below landed %s", got, landed)
				}
			}
		}
	}
}

func TestMarginAndNeedsReprice(t *testing.T) {
	p := DefaultPolicy()
	cases := []struct {
		price, landed string
		want          bool
	}{
		{"11.50", "11.00", true},
		{"14.00", "11.00", false},
		{"14.30", "11.00", false},
		{"20.00", "11.00", true},
	}
	for _, tc := range cases {
		m := Margin(d(tc.price), d(tc.landed))
		if got := p.NeedsReprice(m); got != tc.want {
			t.Fatalf("price %s landed %s margin %s: expected %v", tc.price, tc.landed, m, tc.want)
		}
	}
	if !Margin(d("5"), decimal.Zero).IsZero() {
		t.Fatalf("expected zero margin for zero landed cost")
	}
}

func TestPercentageMarkupRoundTrips(t *testing.T) {
	markup := PercentageMarkup(d("14.30"), d("10.00"))
	if !markup.Equal(d("43")) {
		t.Fatalf("expected 43, got %s", markup)
	}
	if got := SalePrice(d("10.00"), d("10"), enums.MarkupTypePercentage, markup); !got.Equal(d("14.30")) {
		t.Fatalf("expected 14.30, got %s", got)
	}
}
