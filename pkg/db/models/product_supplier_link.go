package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropsync-backend/pkg/enums"
)

// ProductSupplierLink ties a catalog product to the supplier that can fulfill it.
// (product_id, supplier_id) is unique.
type ProductSupplierLink struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	ProductID     uuid.UUID        `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_product_supplier_links_pair,priority:1"`
	SupplierID    uuid.UUID        `gorm:"column:supplier_id;type:uuid;not null;uniqueIndex:ux_product_supplier_links_pair,priority:2;index"`
	SupplierSKU   string           `gorm:"column:supplier_sku;not null"`
	SupplierPrice decimal.Decimal  `gorm:"column:supplier_price;type:numeric(10,2);not null"`
	MarkupType    enums.MarkupType `gorm:"column:markup_type;type:text;not null"`
	MarkupValue   decimal.Decimal  `gorm:"column:markup_value;type:numeric(10,2);not null;default:0"`
	StockQuantity int              `gorm:"column:stock_quantity;not null;default:0"`
	StockSync     bool             `gorm:"column:stock_sync;not null"`
	AutoOrder     bool             `gorm:"column:auto_order;not null"`
	LastSync      *time.Time       `gorm:"column:last_sync"`
	SyncStatus    enums.SyncStatus `gorm:"column:sync_status;type:text;not null"`
	LastError     *string          `gorm:"column:last_error"`
	Version       int              `gorm:"column:version;not null;default:1"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`

	Supplier *Supplier `gorm:"foreignKey:SupplierID;constraint:OnDelete:CASCADE"`
}

func (ProductSupplierLink) TableName() string { return "product_supplier_links" }

func (l *ProductSupplierLink) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	if l.SyncStatus == "" {
		l.SyncStatus = enums.SyncStatusPending
	}
	if l.Version == 0 {
		l.Version = 1
	}
	return nil
}
