package controllers

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dropsync-backend/pkg/db/models"
	"github.com/angelmondragon/dropsync-backend/pkg/enums"
)

type SupplierView struct {
	ID                 uuid.UUID           `json:"id"`
	Name               string              `json:"name"`
	TransportKind      enums.TransportKind `json:"transport_kind"`
	CommissionRate     decimal.Decimal     `json:"commission_rate"`
	MinimumOrder       decimal.Decimal     `json:"minimum_order"`
	ShippingCost       decimal.Decimal     `json:"shipping_cost"`
	ProcessingTimeDays int                 `json:"processing_time_days"`
	Active             bool                `json:"active"`
	FieldMapping       json.RawMessage     `json:"field_mapping,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// newSupplierView omits transport_config since it may name credential sources.
func newSupplierView(s *models.Supplier) SupplierView {
	return SupplierView{
		ID:                 s.ID,
		Name:               s.Name,
		TransportKind:      s.TransportKind,
		CommissionRate:     s.CommissionRate,
		MinimumOrder:       s.MinimumOrder,
		ShippingCost:       s.ShippingCost,
		ProcessingTimeDays: s.ProcessingTimeDays,
		Active:             s.Active,
		FieldMapping:       s.FieldMapping,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

type LinkView struct {
	ID            uuid.UUID        `json:"id"`
	ProductID     uuid.UUID        `json:"product_id"`
	SupplierID    uuid.UUID        `json:"supplier_id"`
	SupplierSKU   string           `json:"supplier_sku"`
	SupplierPrice decimal.Decimal  `json:"supplier_price"`
	MarkupType    enums.MarkupType `json:"markup_type"`
	MarkupValue   decimal.Decimal  `json:"markup_value"`
	StockQuantity int              `json:"stock_quantity"`
	StockSync     bool             `json:"stock_sync"`
	AutoOrder     bool             `json:"auto_order"`
	LastSync      *time.Time       `json:"last_sync,omitempty"`
	SyncStatus    enums.SyncStatus `json:"sync_status"`
	LastError     *string          `json:"last_error,omitempty"`
	Version       int              `json:"version"`
}

func newLinkView(l *models.ProductSupplierLink) LinkView {
	return LinkView{
		ID:            l.ID,
		ProductID:     l.ProductID,
		SupplierID:    l.SupplierID,
		SupplierSKU:   l.SupplierSKU,
		SupplierPrice: l.SupplierPrice,
		MarkupType:    l.MarkupType,
		MarkupValue:   l.MarkupValue,
		StockQuantity: l.StockQuantity,
		StockSync:     l.StockSync,
		AutoOrder:     l.AutoOrder,
		LastSync:      l.LastSync,
		SyncStatus:    l.SyncStatus,
		LastError:     l.LastError,
		Version:       l.Version,
	}
}

type SupplierOrderView struct {
	ID               uuid.UUID                 `json:"id"`
	LocalOrderID     string                    `json:"local_order_id"`
	SupplierID       uuid.UUID                 `json:"supplier_id"`
	SupplierOrderID  *string                   `json:"supplier_order_id,omitempty"`
	Status           enums.SupplierOrderStatus `json:"status"`
	Currency         enums.Currency            `json:"currency"`
	TotalAmount      decimal.Decimal           `json:"total_amount"`
	CommissionAmount decimal.Decimal           `json:"commission_amount"`
	TrackingNumber   *string                   `json:"tracking_number,omitempty"`
	LastError        *string                   `json:"last_error,omitempty"`
	SubmittedAt      *time.Time                `json:"submitted_at,omitempty"`
	ShippedAt        *time.Time                `json:"shipped_at,omitempty"`
	DeliveredAt      *time.Time                `json:"delivered_at,omitempty"`
	CancelledAt      *time.Time                `json:"cancelled_at,omitempty"`
	UpdatedAt        time.Time                 `json:"updated_at"`
}

func newSupplierOrderView(o *models.SupplierOrder) SupplierOrderView {
	return SupplierOrderView{
		ID:               o.ID,
		LocalOrderID:     o.LocalOrderID,
		SupplierID:       o.SupplierID,
		SupplierOrderID:  o.SupplierOrderID,
		Status:           o.Status,
		Currency:         o.Currency,
		TotalAmount:      o.TotalAmount,
		CommissionAmount: o.CommissionAmount,
		TrackingNumber:   o.TrackingNumber,
		LastError:        o.LastError,
		SubmittedAt:      o.SubmittedAt,
		ShippedAt:        o.ShippedAt,
		DeliveredAt:      o.DeliveredAt,
		CancelledAt:      o.CancelledAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

type RuleView struct {
	ID          uuid.UUID        `json:"id"`
	Name        string           `json:"name"`
	Marketplace *string          `json:"marketplace,omitempty"`
	SupplierID  *uuid.UUID       `json:"supplier_id,omitempty"`
	CategoryID  *string          `json:"category_id,omitempty"`
	Condition   string           `json:"condition"`
	Action      enums.LinkAction `json:"action"`
	Priority    int              `json:"priority"`
	Active      bool             `json:"active"`
	CreatedAt   time.Time        `json:"created_at"`
}

func newRuleView(r *models.AutomationRule) RuleView {
	return RuleView{
		ID:          r.ID,
		Name:        r.Name,
		Marketplace: r.Marketplace,
		SupplierID:  r.SupplierID,
		CategoryID:  r.CategoryID,
		Condition:   r.Condition,
		Action:      r.Action,
		Priority:    r.Priority,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
	}
}
