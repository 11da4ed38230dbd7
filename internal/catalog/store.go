package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropsync-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
)

// Store is the catalog surface the sync engine reads and writes. Prices and
// stock belong to the catalog; the engine only proposes new values.
type Store interface {
	GetPrice(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error)
	SetPrice(ctx context.Context, productID uuid.UUID, price decimal.Decimal) error
	GetStock(ctx context.Context, productID uuid.UUID) (int, error)
	SetStock(ctx context.Context, productID uuid.UUID, qty int) error
	CategoryOf(ctx context.Context, productID uuid.UUID) (*string, error)
	FilterByCategory(ctx context.Context, productIDs []uuid.UUID, categoryID string) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns the gorm-backed catalog store.
func NewRepository(db *gorm.DB) Store {
	return &repository{db: db}
}

func (r *repository) find(ctx context.Context, productID uuid.UUID) (*models.CatalogProduct, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	var product models.CatalogProduct
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("catalog product %s not found", productID))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog product")
	}
	return &product, nil
}

func (r *repository) GetPrice(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error) {
	product, err := r.find(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return product.Price, nil
}

func (r *repository) SetPrice(ctx context.Context, productID uuid.UUID, price decimal.Decimal) error {
	if price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must be non-negative")
	}
	return r.update(ctx, productID, map[string]any{"price": price.Round(2)})
}

func (r *repository) GetStock(ctx context.Context, productID uuid.UUID) (int, error) {
	product, err := r.find(ctx, productID)
	if err != nil {
		return 0, err
	}
	return product.StockQuantity, nil
}

func (r *repository) SetStock(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock must be non-negative")
	}
	return r.update(ctx, productID, map[string]any{"stock_quantity": qty})
}

func (r *repository) CategoryOf(ctx context.Context, productID uuid.UUID) (*string, error) {
	product, err := r.find(ctx, productID)
	if err != nil {
		return nil, err
	}
	return product.CategoryID, nil
}

func (r *repository) FilterByCategory(ctx context.Context, productIDs []uuid.UUID, categoryID string) ([]uuid.UUID, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.CatalogProduct{}).
		Where("product_id IN ? AND category_id = ?", productIDs, categoryID).
		Pluck("product_id", &ids).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "filter catalog by category")
	}
	return ids, nil
}

func (r *repository) update(ctx context.Context, productID uuid.UUID, values map[string]any) error {
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	res := r.db.WithContext(ctx).
		Model(&models.CatalogProduct{}).
		Where("product_id = ?", productID).
		Updates(values)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update catalog product")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("catalog product %s not found", productID))
	}
	return nil
}
