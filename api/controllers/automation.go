package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dropsync-backend/api/responses"
	"github.com/angelmondragon/dropsync-backend/api/validators"
	"github.com/angelmondragon/dropsync-backend/internal/automation"
	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
)

type CreateRuleRequest struct {
	Name        string     `json:"name" validate:"required,max=200"`
	Marketplace *string    `json:"marketplace,omitempty" validate:"omitempty,max=64"`
	SupplierID  *uuid.UUID `json:"supplier_id,omitempty"`
	CategoryID  *string    `json:"category_id,omitempty" validate:"omitempty,max=128"`
	Condition   string     `json:"condition" validate:"max=500"`
	Action      string     `json:"action" validate:"required"`
	Priority    int        `json:"priority"`
	Active      *bool      `json:"active,omitempty"`
}

type EvaluateRequest struct {
	Marketplace string                     `json:"marketplace" validate:"required,max=64"`
	SupplierID  *uuid.UUID                 `json:"supplier_id,omitempty"`
	CategoryID  *string                    `json:"category_id,omitempty"`
	ProductIDs  []uuid.UUID                `json:"product_ids,omitempty" validate:"max=500"`
	Attributes  map[string]decimal.Decimal `json:"attributes,omitempty"`
}

func AdminCreateRule(svc automation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRuleRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		action, err := enums.ParseLinkAction(req.Action)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action").WithDetails(map[string]string{"action": "is invalid"}))
			return
		}
		rule, err := svc.CreateRule(r.Context(), automation.RuleInput{
			Name:        validators.SanitizeString(req.Name, 200),
			Marketplace: req.Marketplace,
			SupplierID:  req.SupplierID,
			CategoryID:  req.CategoryID,
			Condition:   req.Condition,
			Action:      action,
			Priority:    req.Priority,
			Active:      req.Active,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newRuleView(rule))
	}
}

// AdminEvaluateRules runs the highest-priority matching rule for an event.
func AdminEvaluateRules(svc automation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EvaluateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		applied, err := svc.Evaluate(r.Context(), automation.EvalContext{
			Marketplace: req.Marketplace,
			SupplierID:  req.SupplierID,
			CategoryID:  req.CategoryID,
			ProductIDs:  req.ProductIDs,
			Attributes:  req.Attributes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, applied)
	}
}
