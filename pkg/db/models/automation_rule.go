package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropsync-backend/pkg/enums"
)

// AutomationRule toggles link flags when its scope and condition match an event.
type AutomationRule struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Name        string           `gorm:"column:name;not null"`
	Marketplace *string          `gorm:"column:marketplace"`
	SupplierID  *uuid.UUID       `gorm:"column:supplier_id;type:uuid;index"`
	CategoryID  *string          `gorm:"column:category_id"`
	Condition   string           `gorm:"column:condition;not null;default:''"`
	Action      enums.LinkAction `gorm:"column:action;type:text;not null"`
	Priority    int              `gorm:"column:priority;not null;default:0"`
	Active      bool             `gorm:"column:active;not null"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (AutomationRule) TableName() string { return "automation_rules" }

func (r *AutomationRule) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
