package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CatalogProduct is the storefront view of a product: sale price and stock.
type CatalogProduct struct {
	ProductID     uuid.UUID       `gorm:"column:product_id;type:uuid;primaryKey"`
	SKU           string          `gorm:"column:sku;not null"`
	Name          string          `gorm:"column:name;not null"`
	CategoryID    *string         `gorm:"column:category_id;index"`
	Price         decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null;default:0"`
	StockQuantity int             `gorm:"column:stock_quantity;not null;default:0"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (CatalogProduct) TableName() string { return "catalog_products" }
