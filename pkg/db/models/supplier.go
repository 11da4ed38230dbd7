package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropsync-backend/pkg/enums"
)

// Supplier is an upstream dropshipping partner reached through one transport kind.
type Supplier struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Name               string              `gorm:"column:name;not null"`
	TransportKind      enums.TransportKind `gorm:"column:transport_kind;type:text;not null"`
	CommissionRate     decimal.Decimal     `gorm:"column:commission_rate;type:numeric(5,2);not null;default:0"`
	MinimumOrder       decimal.Decimal     `gorm:"column:minimum_order;type:numeric(10,2);not null;default:0"`
	ShippingCost       decimal.Decimal     `gorm:"column:shipping_cost;type:numeric(10,2);not null;default:0"`
	ProcessingTimeDays int                 `gorm:"column:processing_time_days;not null;default:0"`
	Active             bool                `gorm:"column:active;not null"`
	FieldMapping       json.RawMessage     `gorm:"column:field_mapping;type:jsonb"`
	TransportConfig    json.RawMessage     `gorm:"column:transport_config;type:jsonb"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Supplier) TableName() string { return "suppliers" }

func (s *Supplier) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
