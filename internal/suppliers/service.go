package suppliers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropsync-backend/internal/payload"
	"github.com/angelmondragon/dropsync-backend/internal/transport"
	"github.com/angelmondragon/dropsync-backend/pkg/db/models"
	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
)

var maxCommission = decimal.NewFromInt(100)

type supplierDeleter interface {
	DeleteSupplier(ctx context.Context, supplierID uuid.UUID) error
}

type gatewayCache interface {
	Invalidate(supplierID uuid.UUID)
}

// Input carries the writable supplier fields.
type Input struct {
	Name               string              `json:"name"`
	TransportKind      enums.TransportKind `json:"transport_kind"`
	CommissionRate     decimal.Decimal     `json:"commission_rate"`
	MinimumOrder       decimal.Decimal     `json:"minimum_order"`
	ShippingCost       decimal.Decimal     `json:"shipping_cost"`
	ProcessingTimeDays int                 `json:"processing_time_days"`
	Active             bool                `json:"active"`
	FieldMapping       json.RawMessage     `json:"field_mapping,omitempty"`
	TransportConfig    json.RawMessage     `json:"transport_config,omitempty"`
}

type Service interface {
	Create(ctx context.Context, input Input) (*models.Supplier, error)
	Update(ctx context.Context, id uuid.UUID, input Input) (*models.Supplier, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*models.Supplier, error)
	List(ctx context.Context, activeOnly bool) ([]models.Supplier, error)
}

type ServiceParams struct {
	Repo     Repository
	Ledger   supplierDeleter
	Gateways gatewayCache
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	ledger   supplierDeleter
	gateways gatewayCache
	logg     *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("supplier repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	return &service{repo: params.Repo, ledger: params.Ledger, gateways: params.Gateways, logg: params.Logger}, nil
}

func (s *service) Create(ctx context.Context, input Input) (*models.Supplier, error) {
	if err := validate(input); err != nil {
		return nil, err
	}
	supplier := &models.Supplier{}
	apply(supplier, input)
	if err := s.repo.Create(ctx, supplier); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create supplier")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithSupplierID(ctx, supplier.ID.String()), "supplier created")
	}
	return supplier, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input Input) (*models.Supplier, error) {
	if err := validate(input); err != nil {
		return nil, err
	}
	supplier, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	apply(supplier, input)
	if err := s.repo.Save(ctx, supplier); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update supplier")
	}
	if s.gateways != nil {
		s.gateways.Invalidate(id)
	}
	return supplier, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.ledger.DeleteSupplier(ctx, id); err != nil {
		return err
	}
	if s.gateways != nil {
		s.gateways.Invalidate(id)
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Supplier, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier id required")
	}
	supplier, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("supplier %s not found", id))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load supplier")
	}
	return supplier, nil
}

func (s *service) List(ctx context.Context, activeOnly bool) ([]models.Supplier, error) {
	out, err := s.repo.List(ctx, activeOnly)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list suppliers")
	}
	return out, nil
}

func validate(input Input) error {
	details := map[string]any{}
	if strings.TrimSpace(input.Name) == "" {
		details["name"] = "required"
	}
	if !input.TransportKind.IsValid() {
		details["transport_kind"] = fmt.Sprintf("unknown transport kind %q", input.TransportKind)
	}
	if input.CommissionRate.IsNegative() || input.CommissionRate.GreaterThan(maxCommission) {
		details["commission_rate"] = "must be between 0 and 100"
	}
	if input.MinimumOrder.IsNegative() {
		details["minimum_order"] = "must be >= 0"
	}
	if input.ShippingCost.IsNegative() {
		details["shipping_cost"] = "must be >= 0"
	}
	if input.ProcessingTimeDays < 0 {
		details["processing_time_days"] = "must be >= 0"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid supplier").WithDetails(details)
	}

	if err := payload.ValidateFieldMapping(input.TransportKind, input.FieldMapping); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid field mapping").
			WithDetails(map[string]any{"field_mapping": pkgerrors.As(err).Message()})
	}
	if _, err := transport.ParseConfig(input.TransportConfig); err != nil {
		return err
	}
	return nil
}

func apply(supplier *models.Supplier, input Input) {
	supplier.Name = strings.TrimSpace(input.Name)
	supplier.TransportKind = input.TransportKind
	supplier.CommissionRate = input.CommissionRate.Round(2)
	supplier.MinimumOrder = input.MinimumOrder.Round(2)
	supplier.ShippingCost = input.ShippingCost.Round(2)
	supplier.ProcessingTimeDays = input.ProcessingTimeDays
	supplier.Active = input.Active
	supplier.FieldMapping = input.FieldMapping
	supplier.TransportConfig = input.TransportConfig
}
