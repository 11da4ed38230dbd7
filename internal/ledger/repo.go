package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/dropsync-backend/pkg/db"
	"github.com/angelmondragon/dropsync-backend/pkg/db/models"
)

// Repository manages persistence for links, supplier orders and suppliers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindSupplier(ctx context.Context, supplierID uuid.UUID) (*models.Supplier, error)
	FindLink(ctx context.Context, productID, supplierID uuid.UUID, forUpdate bool) (*models.ProductSupplierLink, error)
	UpsertLink(ctx context.Context, link *models.ProductSupplierLink) error
	UpdateLinkVersioned(ctx context.Context, linkID uuid.UUID, version int, updates map[string]any) (bool, error)
	DeleteLink(ctx context.Context, productID, supplierID uuid.UUID) (int64, error)
	DeleteSupplierCascade(ctx context.Context, supplierID uuid.UUID) (int64, error)

	FindSupplierOrder(ctx context.Context, localOrderID string, supplierID uuid.UUID, forUpdate bool) (*models.SupplierOrder, error)
	CreateSupplierOrder(ctx context.Context, order *models.SupplierOrder) error
	UpdateSupplierOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error

	ActiveLinksForProducts(ctx context.Context, productIDs []uuid.UUID) ([]models.ProductSupplierLink, error)
	StockSyncLinks(ctx context.Context, supplierID *uuid.UUID) ([]models.ProductSupplierLink, error)
	Links(ctx context.Context, supplierID *uuid.UUID) ([]models.ProductSupplierLink, error)
	LinksForProducts(ctx context.Context, productIDs []uuid.UUID) ([]models.ProductSupplierLink, error)
	SupplierOrdersForOrder(ctx context.Context, localOrderID string) ([]models.SupplierOrder, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) locking(q *gorm.DB, forUpdate bool) *gorm.DB {
	if forUpdate && db.SupportsRowLocks(r.db) {
		return q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func (r *repository) FindSupplier(ctx context.Context, supplierID uuid.UUID) (*models.Supplier, error) {
	var supplier models.Supplier
	if err := r.db.WithContext(ctx).Where("id = ?", supplierID).First(&supplier).Error; err != nil {
		return nil, err
	}
	return &supplier, nil
}

func (r *repository) FindLink(ctx context.Context, productID, supplierID uuid.UUID, forUpdate bool) (*models.ProductSupplierLink, error) {
	var link models.ProductSupplierLink
	q := r.db.WithContext(ctx).Where("product_id = ? AND supplier_id = ?", productID, supplierID)
	if err := r.locking(q, forUpdate).First(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

// UpsertLink inserts link or, when the (product, supplier) pair exists,
// overwrites its writable fields and bumps the version.
func (r *repository) UpsertLink(ctx context.Context, link *models.ProductSupplierLink) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "product_id"}, {Name: "supplier_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"supplier_sku":   link.SupplierSKU,
			"supplier_price": link.SupplierPrice,
			"markup_type":    link.MarkupType,
			"markup_value":   link.MarkupValue,
			"stock_quantity": link.StockQuantity,
			"stock_sync":     link.StockSync,
			"auto_order":     link.AutoOrder,
			"version":        gorm.Expr("product_supplier_links.version + 1"),
			"updated_at":     time.Now().UTC(),
		}),
	}).Create(link).Error
}

// UpdateLinkVersioned applies updates only when the stored version still
// matches; it reports false when another writer got there first.
func (r *repository) UpdateLinkVersioned(ctx context.Context, linkID uuid.UUID, version int, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = version + 1
	values["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&models.ProductSupplierLink{}).
		Where("id = ? AND version = ?", linkID, version).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) DeleteLink(ctx context.Context, productID, supplierID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("product_id = ? AND supplier_id = ?", productID, supplierID).
		Delete(&models.ProductSupplierLink{})
	return res.RowsAffected, res.Error
}

// DeleteSupplierCascade removes the supplier with its orders and links.
func (r *repository) DeleteSupplierCascade(ctx context.Context, supplierID uuid.UUID) (int64, error) {
	conn := r.db.WithContext(ctx)
	if err := conn.Where("supplier_id = ?", supplierID).Delete(&models.SupplierOrder{}).Error; err != nil {
		return 0, err
	}
	if err := conn.Where("supplier_id = ?", supplierID).Delete(&models.ProductSupplierLink{}).Error; err != nil {
		return 0, err
	}
	res := conn.Where("id = ?", supplierID).Delete(&models.Supplier{})
	return res.RowsAffected, res.Error
}

func (r *repository) FindSupplierOrder(ctx context.Context, localOrderID string, supplierID uuid.UUID, forUpdate bool) (*models.SupplierOrder, error) {
	var order models.SupplierOrder
	q := r.db.WithContext(ctx).Where("local_order_id = ? AND supplier_id = ?", localOrderID, supplierID)
	if err := r.locking(q, forUpdate).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) CreateSupplierOrder(ctx context.Context, order *models.SupplierOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) UpdateSupplierOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.SupplierOrder{}).
		Where("id = ?", orderID).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) linkQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.ProductSupplierLink{}).
		Select("product_supplier_links.*").
		Joins("JOIN suppliers ON suppliers.id = product_supplier_links.supplier_id").
		Preload("Supplier")
}

func (r *repository) ActiveLinksForProducts(ctx context.Context, productIDs []uuid.UUID) ([]models.ProductSupplierLink, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var links []models.ProductSupplierLink
	err := r.linkQuery(ctx).
		Where("product_supplier_links.product_id IN ?", productIDs).
		Where("product_supplier_links.auto_order = ?", true).
		Where("suppliers.active = ?", true).
		Order("product_supplier_links.supplier_price ASC").
		Order("product_supplier_links.created_at ASC").
		Order("product_supplier_links.id ASC").
		Find(&links).Error
	return links, err
}

func (r *repository) StockSyncLinks(ctx context.Context, supplierID *uuid.UUID) ([]models.ProductSupplierLink, error) {
	q := r.linkQuery(ctx).
		Where("product_supplier_links.stock_sync = ?", true).
		Where("suppliers.active = ?", true)
	if supplierID != nil {
		q = q.Where("product_supplier_links.supplier_id = ?", *supplierID)
	}
	var links []models.ProductSupplierLink
	err := q.Order("product_supplier_links.created_at ASC").Find(&links).Error
	return links, err
}

func (r *repository) Links(ctx context.Context, supplierID *uuid.UUID) ([]models.ProductSupplierLink, error) {
	q := r.linkQuery(ctx)
	if supplierID != nil {
		q = q.Where("product_supplier_links.supplier_id = ?", *supplierID)
	}
	var links []models.ProductSupplierLink
	err := q.Order("product_supplier_links.created_at ASC").Find(&links).Error
	return links, err
}

func (r *repository) LinksForProducts(ctx context.Context, productIDs []uuid.UUID) ([]models.ProductSupplierLink, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var links []models.ProductSupplierLink
	err := r.linkQuery(ctx).
		Where("product_supplier_links.product_id IN ?", productIDs).
		Order("product_supplier_links.created_at ASC").
		Find(&links).Error
	return links, err
}

func (r *repository) SupplierOrdersForOrder(ctx context.Context, localOrderID string) ([]models.SupplierOrder, error) {
	var orders []models.SupplierOrder
	err := r.db.WithContext(ctx).
		Preload("Supplier").
		Where("local_order_id = ?", localOrderID).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
