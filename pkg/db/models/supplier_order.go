package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropsync-backend/pkg/enums"
)

// SupplierOrder is the per-supplier slice of a customer order. One row exists
// per (local_order_id, supplier_id); re-submission updates it in place.
type SupplierOrder struct {
	ID               uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	LocalOrderID     string                    `gorm:"column:local_order_id;not null;uniqueIndex:ux_supplier_orders_pair,priority:1;<-:create"`
	SupplierID       uuid.UUID                 `gorm:"column:supplier_id;type:uuid;not null;uniqueIndex:ux_supplier_orders_pair,priority:2;index"`
	SupplierOrderID  *string                   `gorm:"column:supplier_order_id"`
	Status           enums.SupplierOrderStatus `gorm:"column:status;type:text;not null"`
	Currency         enums.Currency            `gorm:"column:currency;type:text;not null"`
	TotalAmount      decimal.Decimal           `gorm:"column:total_amount;type:numeric(12,2);not null"`
	CommissionAmount decimal.Decimal           `gorm:"column:commission_amount;type:numeric(12,2);not null"`
	TrackingNumber   *string                   `gorm:"column:tracking_number"`
	RawResponse      json.RawMessage           `gorm:"column:raw_response;type:jsonb"`
	LastError        *string                   `gorm:"column:last_error"`
	SubmittedAt      *time.Time                `gorm:"column:submitted_at"`
	ShippedAt        *time.Time                `gorm:"column:shipped_at"`
	DeliveredAt      *time.Time                `gorm:"column:delivered_at"`
	CancelledAt      *time.Time                `gorm:"column:cancelled_at"`
	CreatedAt        time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                 `gorm:"column:updated_at;autoUpdateTime"`

	Supplier *Supplier `gorm:"foreignKey:SupplierID;constraint:OnDelete:CASCADE"`
}

func (SupplierOrder) TableName() string { return "supplier_orders" }

func (o *SupplierOrder) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	if o.Status == "" {
		o.Status = enums.SupplierOrderStatusPending
	}
	return nil
}
