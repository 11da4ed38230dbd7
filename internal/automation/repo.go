package automation

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/dropsync-backend/pkg/db/models"
)

// Repository persists automation rules.
type Repository interface {
	Create(ctx context.Context, rule *models.AutomationRule) error
	ActiveRules(ctx context.Context) ([]models.AutomationRule, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, rule *models.AutomationRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

// ActiveRules returns active rules by descending priority, oldest first on ties.
func (r *repository) ActiveRules(ctx context.Context) ([]models.AutomationRule, error) {
	var rules []models.AutomationRule
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("priority DESC").
		Order("created_at ASC").
		Order("id ASC").
		Find(&rules).Error
	return rules, err
}
