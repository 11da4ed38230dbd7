package types

import "strings"

// Address is a postal address block carried on orders and supplier payloads.
type Address struct {
	Name       string  `json:"name"`
	Company    *string `json:"company,omitempty"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Phone      string  `json:"phone,omitempty"`
}

// MissingFields returns the json names of required fields that are blank.
func (a Address) MissingFields() []string {
	missing := []string{}
	for _, field := range []struct{ name, value string }{
		{"name", a.Name},
		{"line1", a.Line1},
		{"city", a.City},
		{"postal_code", a.PostalCode},
		{"country", a.Country},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}

// IsZero reports whether no address data was supplied.
func (a Address) IsZero() bool {
	return strings.TrimSpace(a.Line1) == "" && strings.TrimSpace(a.City) == "" && strings.TrimSpace(a.Name) == ""
}

// BuyerAddress groups the address blocks and contact details of the buyer.
type BuyerAddress struct {
	Shipping Address  `json:"shipping"`
	Billing  *Address `json:"billing,omitempty"`
	Email    string   `json:"email,omitempty"`
	Phone    string   `json:"phone,omitempty"`
}

// BillingOrShipping returns the billing block, falling back to shipping when absent.
func (b BuyerAddress) BillingOrShipping() Address {
	if b.Billing != nil && !b.Billing.IsZero() {
		return *b.Billing
	}
	return b.Shipping
}
