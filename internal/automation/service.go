package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropsync-backend/internal/catalog"
	"github.com/angelmondragon/dropsync-backend/internal/ledger"
	"github.com/angelmondragon/dropsync-backend/pkg/db/models"
	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
)

type linkLedger interface {
	Links(ctx context.Context, supplierID *uuid.UUID) ([]models.ProductSupplierLink, error)
	LinksForProducts(ctx context.Context, productIDs []uuid.UUID) ([]models.ProductSupplierLink, error)
	SetLinkFlags(ctx context.Context, productID, supplierID uuid.UUID, flags ledger.Flags) (bool, error)
}

type supplierLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Supplier, error)
}

// EvalContext describes the catalog or marketplace event being evaluated.
type EvalContext struct {
	Marketplace string                     `json:"marketplace"`
	SupplierID  *uuid.UUID                 `json:"supplier_id,omitempty"`
	CategoryID  *string                    `json:"category_id,omitempty"`
	ProductIDs  []uuid.UUID                `json:"product_ids,omitempty"`
	Attributes  map[string]decimal.Decimal `json:"attributes,omitempty"`
}

// ActionApplied reports the rule that fired, if any.
type ActionApplied struct {
	Matched      bool             `json:"matched"`
	RuleID       uuid.UUID        `json:"rule_id,omitempty"`
	RuleName     string           `json:"rule_name,omitempty"`
	Action       enums.LinkAction `json:"action,omitempty"`
	LinksUpdated int              `json:"links_updated"`
}

// RuleInput is the administrator-supplied definition of a rule.
type RuleInput struct {
	Name        string
	Marketplace *string
	SupplierID  *uuid.UUID
	CategoryID  *string
	Condition   string
	Action      enums.LinkAction
	Priority    int
	Active      *bool
}

type Service interface {
	CreateRule(ctx context.Context, input RuleInput) (*models.AutomationRule, error)
	Evaluate(ctx context.Context, ec EvalContext) (ActionApplied, error)
}

type ServiceParams struct {
	Repo      Repository
	Ledger    linkLedger
	Catalog   catalog.Store
	Suppliers supplierLookup
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	ledger    linkLedger
	catalog   catalog.Store
	suppliers supplierLookup
	logg      *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("rule repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      params.Repo,
		ledger:    params.Ledger,
		catalog:   params.Catalog,
		suppliers: params.Suppliers,
		logg:      params.Logger,
	}, nil
}

func (s *service) CreateRule(ctx context.Context, input RuleInput) (*models.AutomationRule, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, invalid("name", "required")
	}
	if !input.Action.IsFlagToggle() {
		return nil, invalid("action", fmt.Sprintf("%q is not a flag toggle action", input.Action))
	}
	if _, err := ParseCondition(input.Condition); err != nil {
		return nil, invalid("condition", err.Error())
	}
	if input.SupplierID != nil && s.suppliers != nil {
		if _, err := s.suppliers.FindByID(ctx, *input.SupplierID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "supplier not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load supplier")
		}
	}

	active := true
	if input.Active != nil {
		active = *input.Active
	}
	rule := &models.AutomationRule{
		Name:        name,
		Marketplace: trimmed(input.Marketplace),
		SupplierID:  input.SupplierID,
		CategoryID:  trimmed(input.CategoryID),
		Condition:   strings.TrimSpace(input.Condition),
		Action:      input.Action,
		Priority:    input.Priority,
		Active:      active,
	}
	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create automation rule")
	}
	return rule, nil
}

// Evaluate applies the first matching rule. Rules are not cumulative.
func (s *service) Evaluate(ctx context.Context, ec EvalContext) (ActionApplied, error) {
	rules, err := s.repo.ActiveRules(ctx)
	if err != nil {
		return ActionApplied{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load automation rules")
	}
	attrs := make(map[string]decimal.Decimal, len(ec.Attributes))
	for k, v := range ec.Attributes {
		attrs[strings.ToLower(strings.TrimSpace(k))] = v
	}

	for _, rule := range rules {
		if !inScope(rule, ec) {
			continue
		}
		cond, err := ParseCondition(rule.Condition)
		if err != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"rule_id": rule.ID.String(),
				"error":   err.Error(),
			}), "skipping automation rule with malformed condition")
			continue
		}
		if !cond.Matches(attrs) {
			continue
		}
		return s.apply(ctx, rule, ec)
	}
	return ActionApplied{}, nil
}

func inScope(rule models.AutomationRule, ec EvalContext) bool {
	if rule.Marketplace != nil && !strings.EqualFold(*rule.Marketplace, strings.TrimSpace(ec.Marketplace)) {
		return false
	}
	if rule.SupplierID != nil && (ec.SupplierID == nil || *ec.SupplierID != *rule.SupplierID) {
		return false
	}
	if rule.CategoryID != nil && (ec.CategoryID == nil || *ec.CategoryID != *rule.CategoryID) {
		return false
	}
	return true
}

func (s *service) apply(ctx context.Context, rule models.AutomationRule, ec EvalContext) (ActionApplied, error) {
	applied := ActionApplied{Matched: true, RuleID: rule.ID, RuleName: rule.Name, Action: rule.Action}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"rule_id": rule.ID.String(),
		"action":  string(rule.Action),
	})

	flags, ok := ledger.FlagsFor(rule.Action)
	if !ok {
		return applied, invalid("action", fmt.Sprintf("%q is not a flag toggle action", rule.Action))
	}
	links, err := s.targetLinks(ctx, rule, ec)
	if err != nil {
		return applied, err
	}

	var errs error
	for _, link := range links {
		changed, err := s.ledger.SetLinkFlags(ctx, link.ProductID, link.SupplierID, flags)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s/%s: %w", link.ProductID, link.SupplierID, err))
			continue
		}
		if changed {
			applied.LinksUpdated++
		}
	}
	s.logg.Info(s.logg.WithField(ctx, "links_updated", applied.LinksUpdated), "automation rule applied")
	return applied, errs
}

// targetLinks resolves the links a matched rule acts on: the event's products
// when given, otherwise the supplier in scope, narrowed by category.
func (s *service) targetLinks(ctx context.Context, rule models.AutomationRule, ec EvalContext) ([]models.ProductSupplierLink, error) {
	supplierID := rule.SupplierID
	if supplierID == nil {
		supplierID = ec.SupplierID
	}

	var links []models.ProductSupplierLink
	var err error
	switch {
	case len(ec.ProductIDs) > 0:
		links, err = s.ledger.LinksForProducts(ctx, ec.ProductIDs)
	case supplierID != nil:
		links, err = s.ledger.Links(ctx, supplierID)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load rule links")
	}
	if supplierID != nil {
		links = filterLinks(links, func(l models.ProductSupplierLink) bool { return l.SupplierID == *supplierID })
	}

	category := rule.CategoryID
	if category == nil {
		category = ec.CategoryID
	}
	if category == nil || len(links) == 0 {
		return links, nil
	}
	productIDs := make([]uuid.UUID, 0, len(links))
	for _, l := range links {
		productIDs = append(productIDs, l.ProductID)
	}
	inCategory, err := s.catalog.FilterByCategory(ctx, productIDs, *category)
	if err != nil {
		return nil, err
	}
	keep := make(map[uuid.UUID]struct{}, len(inCategory))
	for _, id := range inCategory {
		keep[id] = struct{}{}
	}
	return filterLinks(links, func(l models.ProductSupplierLink) bool {
		_, ok := keep[l.ProductID]
		return ok
	}), nil
}

func filterLinks(links []models.ProductSupplierLink, keep func(models.ProductSupplierLink) bool) []models.ProductSupplierLink {
	out := links[:0:0]
	for _, l := range links {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

func invalid(field, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s: %s", field, msg)).
		WithDetails(map[string]any{"field": field})
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
