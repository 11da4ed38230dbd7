package square

import (
	"strconv"
	"strings"

	sq "github.com/square/square-go-sdk"
)

// OrderLineParams is one Square order line referencing a catalog variation.
type OrderLineParams struct {
	CatalogObjectID string
	Name            string
	Quantity        int
	UnitAmountCents int64
}

// RecipientParams describes the shipment recipient of an order.
type RecipientParams struct {
	DisplayName  string
	EmailAddress string
	PhoneNumber  string
	AddressLine1 string
	AddressLine2 string
	Locality     string
	Region       string
	PostalCode   string
	Country      string
}

// OrderCreateParams contains the fields required to create a Square order.
type OrderCreateParams struct {
	LocationID     string
	ReferenceID    string
	Currency       string
	Lines          []OrderLineParams
	Recipient      *RecipientParams
	IdempotencyKey string
}

func (p OrderCreateParams) toSquareRequest(idempotencyKey string) *sq.CreateOrderRequest {
	order := &sq.Order{
		LocationID:  p.LocationID,
		ReferenceID: ptrString(p.ReferenceID),
	}
	for _, line := range p.Lines {
		item := &sq.OrderLineItem{
			Quantity:        strconv.Itoa(line.Quantity),
			CatalogObjectID: ptrString(line.CatalogObjectID),
			Name:            ptrString(line.Name),
		}
		if line.UnitAmountCents > 0 {
			item.BasePriceMoney = moneyPtr(line.UnitAmountCents, p.Currency)
		}
		order.LineItems = append(order.LineItems, item)
	}
	if p.Recipient != nil {
		fulfillmentType := sq.FulfillmentTypeShipment
		order.Fulfillments = []*sq.Fulfillment{{
			Type: &fulfillmentType,
			ShipmentDetails: &sq.FulfillmentShipmentDetails{
				Recipient: p.Recipient.toSquare(),
			},
		}}
	}
	return &sq.CreateOrderRequest{
		Order:          order,
		IdempotencyKey: ptrString(idempotencyKey),
	}
}

func (r RecipientParams) toSquare() *sq.FulfillmentRecipient {
	addr := &sq.Address{
		AddressLine1:                 ptrString(r.AddressLine1),
		AddressLine2:                 ptrString(r.AddressLine2),
		Locality:                     ptrString(r.Locality),
		AdministrativeDistrictLevel1: ptrString(r.Region),
		PostalCode:                   ptrString(r.PostalCode),
	}
	if trimmed := strings.ToUpper(strings.TrimSpace(r.Country)); trimmed != "" {
		country := sq.Country(trimmed)
		addr.Country = &country
	}
	return &sq.FulfillmentRecipient{
		DisplayName:  ptrString(r.DisplayName),
		EmailAddress: ptrString(r.EmailAddress),
		PhoneNumber:  ptrString(r.PhoneNumber),
		Address:      addr,
	}
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "USD"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
