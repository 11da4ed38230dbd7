package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropsync-backend/pkg/db"
	"github.com/angelmondragon/dropsync-backend/pkg/db/models"
	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
	"github.com/angelmondragon/dropsync-backend/pkg/outbox"
	"github.com/angelmondragon/dropsync-backend/pkg/outbox/payloads"
)

const eventSource = "ledger"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the single writer of links and supplier orders.
type Service interface {
	UpsertLink(ctx context.Context, productID, supplierID uuid.UUID, fields LinkFields) (*models.ProductSupplierLink, error)
	RecordSupplierOrder(ctx context.Context, localOrderID string, supplierID uuid.UUID, result SupplierOrderResult) (*models.SupplierOrder, error)
	AdvanceSupplierOrder(ctx context.Context, localOrderID string, supplierID uuid.UUID, update StatusUpdate) (*models.SupplierOrder, error)
	UpdateLinkStock(ctx context.Context, productID, supplierID uuid.UUID, qty int) (bool, error)
	BeginLinkSync(ctx context.Context, productID, supplierID uuid.UUID) error
	MarkLinkSync(ctx context.Context, productID, supplierID uuid.UUID, status enums.SyncStatus, errMsg string) error
	UpdateLinkPricing(ctx context.Context, productID, supplierID uuid.UUID, markupType enums.MarkupType, markupValue decimal.Decimal, opts ...WriteOption) (*models.ProductSupplierLink, error)
	SetLinkFlags(ctx context.Context, productID, supplierID uuid.UUID, flags Flags) (bool, error)
	DeleteLink(ctx context.Context, productID, supplierID uuid.UUID) error
	DeleteSupplier(ctx context.Context, supplierID uuid.UUID) error
	EmitEvent(ctx context.Context, event outbox.DomainEvent) error

	FindLink(ctx context.Context, productID, supplierID uuid.UUID) (*models.ProductSupplierLink, error)
	ActiveLinksForProducts(ctx context.Context, productIDs []uuid.UUID) ([]models.ProductSupplierLink, error)
	StockSyncLinks(ctx context.Context, supplierID *uuid.UUID) ([]models.ProductSupplierLink, error)
	Links(ctx context.Context, supplierID *uuid.UUID) ([]models.ProductSupplierLink, error)
	LinksForProducts(ctx context.Context, productIDs []uuid.UUID) ([]models.ProductSupplierLink, error)
	SupplierOrdersForOrder(ctx context.Context, localOrderID string) ([]models.SupplierOrder, error)
}

// WriteOption adjusts a single ledger write.
type WriteOption func(*writeOptions)

type writeOptions struct {
	events []outbox.DomainEvent
}

// WithEvent emits event in the same transaction as the write.
func WithEvent(event outbox.DomainEvent) WriteOption {
	return func(o *writeOptions) {
		o.events = append(o.events, event)
	}
}

type ServiceParams struct {
	DB     txRunner
	Repo   Repository
	Locker RowLocker
	Outbox outbox.Emitter
	Logger *logger.Logger
}

type service struct {
	tx     txRunner
	repo   Repository
	locker RowLocker
	outbox outbox.Emitter
	logg   *logger.Logger
	now    func() time.Time
}

// NewService wires the ledger. Outbox and Logger are optional.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("row locker required")
	}
	return &service{
		tx:     params.DB,
		repo:   params.Repo,
		locker: params.Locker,
		outbox: params.Outbox,
		logg:   params.Logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) UpsertLink(ctx context.Context, productID, supplierID uuid.UUID, fields LinkFields) (*models.ProductSupplierLink, error) {
	if err := requirePair(productID, supplierID); err != nil {
		return nil, err
	}
	if err := fields.validate(); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, "link", productID.String(), supplierID.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	var saved *models.ProductSupplierLink
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := s.loadSupplier(ctx, repo, supplierID); err != nil {
			return err
		}
		if _, err := repo.FindLink(ctx, productID, supplierID, true); err != nil && !isNotFound(err) {
			return dependency(err, "load link")
		}
		link := &models.ProductSupplierLink{
			ProductID:     productID,
			SupplierID:    supplierID,
			SupplierSKU:   strings.TrimSpace(fields.SupplierSKU),
			SupplierPrice: fields.SupplierPrice.Round(2),
			MarkupType:    fields.MarkupType,
			MarkupValue:   fields.MarkupValue.Round(2),
			StockQuantity: fields.StockQuantity,
			StockSync:     fields.StockSync,
			AutoOrder:     fields.AutoOrder,
		}
		if err := repo.UpsertLink(ctx, link); err != nil {
			if db.IsUniqueViolation(err, "") {
				return concurrency("link was created concurrently")
			}
			return dependency(err, "upsert link")
		}
		reloaded, err := repo.FindLink(ctx, productID, supplierID, false)
		if err != nil {
			return dependency(err, "reload link")
		}
		saved = reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *service) RecordSupplierOrder(ctx context.Context, localOrderID string, supplierID uuid.UUID, result SupplierOrderResult) (*models.SupplierOrder, error) {
	localOrderID = strings.TrimSpace(localOrderID)
	if localOrderID == "" {
		return nil, validation("local_order_id", "required")
	}
	if supplierID == uuid.Nil {
		return nil, validation("supplier_id", "required")
	}
	if !result.Status.IsValid() {
		return nil, validation("status", fmt.Sprintf("invalid status %q", result.Status))
	}
	if !result.Currency.IsValid() {
		return nil, validation("currency", fmt.Sprintf("invalid currency %q", result.Currency))
	}
	if result.TotalAmount.IsNegative() || result.CommissionAmount.IsNegative() {
		return nil, validation("amount", "amounts must be >= 0")
	}

	unlock, err := s.locker.Lock(ctx, "supplier_order", localOrderID, supplierID.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	var saved *models.SupplierOrder
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := s.loadSupplier(ctx, repo, supplierID); err != nil {
			return err
		}
		now := s.now()
		total := result.TotalAmount.Round(2)
		commission := result.CommissionAmount.Round(2)

		existing, err := repo.FindSupplierOrder(ctx, localOrderID, supplierID, true)
		switch {
		case err == nil:
			if existing.Status.IsTerminal() {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "supplier order is already final").
					WithDetails(map[string]any{"status": existing.Status})
			}
			updates := map[string]any{
				"supplier_order_id": result.SupplierOrderID,
				"status":            result.Status,
				"currency":          result.Currency,
				"total_amount":      total,
				"commission_amount": commission,
				"tracking_number":   result.TrackingNumber,
				"raw_response":      rawJSON(result.RawResponse),
				"last_error":        result.LastError,
			}
			if result.Status == enums.SupplierOrderStatusProcessing {
				updates["submitted_at"] = now
			}
			if err := repo.UpdateSupplierOrder(ctx, existing.ID, updates); err != nil {
				return dependency(err, "update supplier order")
			}
		case isNotFound(err):
			order := &models.SupplierOrder{
				LocalOrderID:     localOrderID,
				SupplierID:       supplierID,
				SupplierOrderID:  result.SupplierOrderID,
				Status:           result.Status,
				Currency:         result.Currency,
				TotalAmount:      total,
				CommissionAmount: commission,
				TrackingNumber:   result.TrackingNumber,
				RawResponse:      result.RawResponse,
				LastError:        result.LastError,
			}
			if result.Status == enums.SupplierOrderStatusProcessing {
				order.SubmittedAt = &now
			}
			if err := repo.CreateSupplierOrder(ctx, order); err != nil {
				if db.IsUniqueViolation(err, "") {
					return concurrency("supplier order was recorded concurrently")
				}
				return dependency(err, "create supplier order")
			}
		default:
			return dependency(err, "load supplier order")
		}

		saved, err = repo.FindSupplierOrder(ctx, localOrderID, supplierID, false)
		if err != nil {
			return dependency(err, "reload supplier order")
		}
		if saved.Status == enums.SupplierOrderStatusProcessing {
			return s.emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventSupplierOrderSubmitted,
				AggregateType: enums.AggregateSupplierOrder,
				AggregateID:   saved.ID,
				Data: payloads.SupplierOrderSubmittedEvent{
					SupplierOrderID:  saved.ID,
					LocalOrderID:     saved.LocalOrderID,
					SupplierID:       saved.SupplierID,
					SupplierRef:      derefString(saved.SupplierOrderID),
					TotalAmount:      saved.TotalAmount.StringFixed(2),
					CommissionAmount: saved.CommissionAmount.StringFixed(2),
					Currency:         saved.Currency,
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *service) AdvanceSupplierOrder(ctx context.Context, localOrderID string, supplierID uuid.UUID, update StatusUpdate) (*models.SupplierOrder, error) {
	localOrderID = strings.TrimSpace(localOrderID)
	if localOrderID == "" || supplierID == uuid.Nil {
		return nil, validation("supplier_order", "local_order_id and supplier_id are required")
	}
	if !update.Status.IsValid() {
		return nil, validation("status", fmt.Sprintf("invalid status %q", update.Status))
	}

	unlock, err := s.locker.Lock(ctx, "supplier_order", localOrderID, supplierID.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	var saved *models.SupplierOrder
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindSupplierOrder(ctx, localOrderID, supplierID, true)
		if err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "supplier order not found")
			}
			return dependency(err, "load supplier order")
		}
		if !current.Status.CanAdvanceTo(update.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "supplier order status cannot move backwards").
				WithDetails(map[string]any{"from": current.Status, "to": update.Status})
		}

		now := s.now()
		updates := map[string]any{"status": update.Status}
		switch update.Status {
		case enums.SupplierOrderStatusProcessing:
			updates["submitted_at"] = now
		case enums.SupplierOrderStatusShipped:
			updates["shipped_at"] = now
		case enums.SupplierOrderStatusDelivered:
			updates["delivered_at"] = now
		case enums.SupplierOrderStatusCancelled:
			updates["cancelled_at"] = now
		}
		if update.TrackingNumber != nil {
			updates["tracking_number"] = strings.TrimSpace(*update.TrackingNumber)
		}
		if update.Reason != nil {
			updates["last_error"] = *update.Reason
		}
		if err := repo.UpdateSupplierOrder(ctx, current.ID, updates); err != nil {
			return dependency(err, "advance supplier order")
		}

		saved, err = repo.FindSupplierOrder(ctx, localOrderID, supplierID, false)
		if err != nil {
			return dependency(err, "reload supplier order")
		}
		if update.Status == enums.SupplierOrderStatusCancelled {
			return s.emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventSupplierOrderCancelled,
				AggregateType: enums.AggregateSupplierOrder,
				AggregateID:   saved.ID,
				Data: payloads.SupplierOrderCancelledEvent{
					SupplierOrderID: saved.ID,
					LocalOrderID:    saved.LocalOrderID,
					SupplierID:      saved.SupplierID,
					CancelledAt:     now,
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *service) UpdateLinkStock(ctx context.Context, productID, supplierID uuid.UUID, qty int) (bool, error) {
	if qty < 0 {
		return false, validation("stock_quantity", "must be >= 0")
	}
	changed := false
	err := s.withLink(ctx, productID, supplierID, func(ctx context.Context, repo Repository, _ *gorm.DB, link *models.ProductSupplierLink) error {
		if link.StockQuantity == qty {
			return nil
		}
		changed = true
		return s.versioned(ctx, repo, link, map[string]any{
			"stock_quantity": qty,
			"last_sync":      s.now(),
			"sync_status":    enums.SyncStatusSuccess,
			"last_error":     nil,
		})
	})
	return changed, err
}

func (s *service) BeginLinkSync(ctx context.Context, productID, supplierID uuid.UUID) error {
	return s.MarkLinkSync(ctx, productID, supplierID, enums.SyncStatusPending, "")
}

func (s *service) MarkLinkSync(ctx context.Context, productID, supplierID uuid.UUID, status enums.SyncStatus, errMsg string) error {
	if !status.IsValid() {
		return validation("sync_status", fmt.Sprintf("invalid sync status %q", status))
	}
	return s.withLink(ctx, productID, supplierID, func(ctx context.Context, repo Repository, tx *gorm.DB, link *models.ProductSupplierLink) error {
		updates := map[string]any{"sync_status": status}
		switch status {
		case enums.SyncStatusError:
			msg := strings.TrimSpace(errMsg)
			updates["last_error"] = msg
		case enums.SyncStatusSuccess:
			updates["last_error"] = nil
			updates["last_sync"] = s.now()
		}
		if err := s.versioned(ctx, repo, link, updates); err != nil {
			return err
		}
		if status != enums.SyncStatusError {
			return nil
		}
		return s.emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLinkSyncFailed,
			AggregateType: enums.AggregateSupplierLink,
			AggregateID:   link.ID,
			Data: payloads.LinkSyncFailedEvent{
				LinkID:     link.ID,
				ProductID:  link.ProductID,
				SupplierID: link.SupplierID,
				Error:      strings.TrimSpace(errMsg),
			},
		})
	})
}

func (s *service) UpdateLinkPricing(ctx context.Context, productID, supplierID uuid.UUID, markupType enums.MarkupType, markupValue decimal.Decimal, opts ...WriteOption) (*models.ProductSupplierLink, error) {
	if !markupType.IsValid() {
		return nil, validation("markup_type", "must be fixed or percentage")
	}
	if markupValue.IsNegative() {
		return nil, validation("markup_value", "must be >= 0")
	}
	options := writeOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	var saved *models.ProductSupplierLink
	err := s.withLink(ctx, productID, supplierID, func(ctx context.Context, repo Repository, tx *gorm.DB, link *models.ProductSupplierLink) error {
		if err := s.versioned(ctx, repo, link, map[string]any{
			"markup_type":  markupType,
			"markup_value": markupValue.Round(2),
		}); err != nil {
			return err
		}
		for _, event := range options.events {
			if event.AggregateID == uuid.Nil {
				event.AggregateID = link.ID
			}
			if err := s.emit(ctx, tx, event); err != nil {
				return err
			}
		}
		reloaded, err := repo.FindLink(ctx, productID, supplierID, false)
		if err != nil {
			return dependency(err, "reload link")
		}
		saved = reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *service) SetLinkFlags(ctx context.Context, productID, supplierID uuid.UUID, flags Flags) (bool, error) {
	if flags.IsEmpty() {
		return false, validation("flags", "at least one flag is required")
	}
	changed := false
	err := s.withLink(ctx, productID, supplierID, func(ctx context.Context, repo Repository, _ *gorm.DB, link *models.ProductSupplierLink) error {
		updates := map[string]any{}
		if flags.AutoOrder != nil && *flags.AutoOrder != link.AutoOrder {
			updates["auto_order"] = *flags.AutoOrder
		}
		if flags.StockSync != nil && *flags.StockSync != link.StockSync {
			updates["stock_sync"] = *flags.StockSync
		}
		if len(updates) == 0 {
			return nil
		}
		changed = true
		return s.versioned(ctx, repo, link, updates)
	})
	return changed, err
}

func (s *service) DeleteLink(ctx context.Context, productID, supplierID uuid.UUID) error {
	if err := requirePair(productID, supplierID); err != nil {
		return err
	}
	unlock, err := s.locker.Lock(ctx, "link", productID.String(), supplierID.String())
	if err != nil {
		return err
	}
	defer unlock()

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := s.repo.WithTx(tx).DeleteLink(ctx, productID, supplierID)
		if err != nil {
			return dependency(err, "delete link")
		}
		if n == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "link not found")
		}
		return nil
	})
}

func (s *service) DeleteSupplier(ctx context.Context, supplierID uuid.UUID) error {
	if supplierID == uuid.Nil {
		return validation("supplier_id", "required")
	}
	unlock, err := s.locker.Lock(ctx, "supplier", supplierID.String())
	if err != nil {
		return err
	}
	defer unlock()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := s.loadSupplier(ctx, repo, supplierID); err != nil {
			return err
		}
		if _, err := repo.DeleteSupplierCascade(ctx, supplierID); err != nil {
			return dependency(err, "delete supplier")
		}
		return nil
	})
	if err == nil && s.logg != nil {
		s.logg.Info(s.logg.WithSupplierID(ctx, supplierID.String()), "supplier deleted with links and orders")
	}
	return err
}

// EmitEvent writes a standalone outbox event, used for outcomes that leave
// no ledger row behind.
func (s *service) EmitEvent(ctx context.Context, event outbox.DomainEvent) error {
	if s.outbox == nil {
		return nil
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.emit(ctx, tx, event)
	})
}

func (s *service) FindLink(ctx context.Context, productID, supplierID uuid.UUID) (*models.ProductSupplierLink, error) {
	link, err := s.repo.FindLink(ctx, productID, supplierID, false)
	if err != nil {
		if isNotFound(err) {
			return nil, linkNotFound(productID, supplierID)
		}
		return nil, dependency(err, "load link")
	}
	return link, nil
}

func (s *service) ActiveLinksForProducts(ctx context.Context, productIDs []uuid.UUID) ([]models.ProductSupplierLink, error) {
	links, err := s.repo.ActiveLinksForProducts(ctx, productIDs)
	if err != nil {
		return nil, dependency(err, "load active links")
	}
	return links, nil
}

func (s *service) StockSyncLinks(ctx context.Context, supplierID *uuid.UUID) ([]models.ProductSupplierLink, error) {
	links, err := s.repo.StockSyncLinks(ctx, supplierID)
	if err != nil {
		return nil, dependency(err, "load stock sync links")
	}
	return links, nil
}

func (s *service) Links(ctx context.Context, supplierID *uuid.UUID) ([]models.ProductSupplierLink, error) {
	links, err := s.repo.Links(ctx, supplierID)
	if err != nil {
		return nil, dependency(err, "load links")
	}
	return links, nil
}

func (s *service) LinksForProducts(ctx context.Context, productIDs []uuid.UUID) ([]models.ProductSupplierLink, error) {
	links, err := s.repo.LinksForProducts(ctx, productIDs)
	if err != nil {
		return nil, dependency(err, "load links")
	}
	return links, nil
}

func (s *service) SupplierOrdersForOrder(ctx context.Context, localOrderID string) ([]models.SupplierOrder, error) {
	orders, err := s.repo.SupplierOrdersForOrder(ctx, strings.TrimSpace(localOrderID))
	if err != nil {
		return nil, dependency(err, "load supplier orders")
	}
	return orders, nil
}

// withLink runs fn under the row lock and a transaction holding the link row.
func (s *service) withLink(ctx context.Context, productID, supplierID uuid.UUID, fn func(context.Context, Repository, *gorm.DB, *models.ProductSupplierLink) error) error {
	if err := requirePair(productID, supplierID); err != nil {
		return err
	}
	unlock, err := s.locker.Lock(ctx, "link", productID.String(), supplierID.String())
	if err != nil {
		return err
	}
	defer unlock()

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		link, err := repo.FindLink(ctx, productID, supplierID, true)
		if err != nil {
			if isNotFound(err) {
				return linkNotFound(productID, supplierID)
			}
			return dependency(err, "load link")
		}
		return fn(ctx, repo, tx, link)
	})
}

func (s *service) versioned(ctx context.Context, repo Repository, link *models.ProductSupplierLink, updates map[string]any) error {
	ok, err := repo.UpdateLinkVersioned(ctx, link.ID, link.Version, updates)
	if err != nil {
		return dependency(err, "update link")
	}
	if !ok {
		return concurrency("link was modified by another writer")
	}
	return nil
}

func (s *service) loadSupplier(ctx context.Context, repo Repository, supplierID uuid.UUID) (*models.Supplier, error) {
	supplier, err := repo.FindSupplier(ctx, supplierID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("supplier %s not found", supplierID))
		}
		return nil, dependency(err, "load supplier")
	}
	return supplier, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if s.outbox == nil {
		return nil
	}
	if event.Source == "" {
		event.Source = eventSource
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit outbox event")
	}
	return nil
}

func requirePair(productID, supplierID uuid.UUID) error {
	if productID == uuid.Nil {
		return validation("product_id", "required")
	}
	if supplierID == uuid.Nil {
		return validation("supplier_id", "required")
	}
	return nil
}

func validation(field, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, field+" "+msg).WithDetails(map[string]any{field: msg})
}

func concurrency(msg string) error {
	return pkgerrors.New(pkgerrors.CodeConcurrency, msg)
}

func dependency(err error, msg string) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func linkNotFound(productID, supplierID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("link %s/%s not found", productID, supplierID))
}

func rawJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
