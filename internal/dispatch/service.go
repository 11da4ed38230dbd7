package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/dropsync-backend/internal/ledger"
	"github.com/angelmondragon/dropsync-backend/internal/payload"
	"github.com/angelmondragon/dropsync-backend/internal/reporting"
	"github.com/angelmondragon/dropsync-backend/internal/transport"
	"github.com/angelmondragon/dropsync-backend/pkg/db/models"
	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
	"github.com/angelmondragon/dropsync-backend/pkg/metrics"
	"github.com/angelmondragon/dropsync-backend/pkg/outbox"
	"github.com/angelmondragon/dropsync-backend/pkg/outbox/payloads"
)

const (
	defaultWorkers          = 8
	defaultTransportTimeout = 30 * time.Second
	defaultCancelTimeout    = 30 * time.Second
	eventSource             = "dispatch"

	outcomeSubmitted = "submitted"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
	outcomeExisting  = "already_submitted"
)

// ErrCancelled is the outcome of a branch skipped because its order was cancelled.
var ErrCancelled = pkgerrors.New(pkgerrors.CodeStateConflict, "order was cancelled before submission")

// ErrCancelledInFlight is the outcome of a branch whose order was cancelled
// while the supplier call was in flight. The supplier order was recorded and
// then cancelled.
var ErrCancelledInFlight = pkgerrors.New(pkgerrors.CodeStateConflict, "order was cancelled during submission")

type orderLedger interface {
	ActiveLinksForProducts(ctx context.Context, productIDs []uuid.UUID) ([]models.ProductSupplierLink, error)
	SupplierOrdersForOrder(ctx context.Context, localOrderID string) ([]models.SupplierOrder, error)
	RecordSupplierOrder(ctx context.Context, localOrderID string, supplierID uuid.UUID, result ledger.SupplierOrderResult) (*models.SupplierOrder, error)
	AdvanceSupplierOrder(ctx context.Context, localOrderID string, supplierID uuid.UUID, update ledger.StatusUpdate) (*models.SupplierOrder, error)
	EmitEvent(ctx context.Context, event outbox.DomainEvent) error
}

type gatewayResolver interface {
	Resolve(ctx context.Context, supplier *models.Supplier) (transport.Gateway, error)
}

type outcomeReporter interface {
	RecordDispatch(ctx context.Context, row reporting.DispatchOutcomeRow) error
}

// Service fans customer orders out to suppliers.
type Service interface {
	Dispatch(ctx context.Context, order Order) (Result, error)
	Cancel(ctx context.Context, localOrderID string) (CancelResult, error)
	// Wait blocks until background cancel requests have finished.
	Wait()
}

type ServiceParams struct {
	Ledger           orderLedger
	Gateways         gatewayResolver
	Cancellations    CancelRegistry
	Metrics          *metrics.EngineMetrics
	Reporter         outcomeReporter
	Logger           *logger.Logger
	Workers          int
	TransportTimeout time.Duration
	CancelTimeout    time.Duration
}

type service struct {
	ledger        orderLedger
	gateways      gatewayResolver
	cancellations CancelRegistry
	metrics       *metrics.EngineMetrics
	reporter      outcomeReporter
	logg          *logger.Logger
	workers       int
	timeout       time.Duration
	cancelTimeout time.Duration
	background    sync.WaitGroup
}

func NewService(params ServiceParams) (Service, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Gateways == nil {
		return nil, fmt.Errorf("gateway registry required")
	}
	if params.Cancellations == nil {
		return nil, fmt.Errorf("cancel registry required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	workers := params.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	timeout := params.TransportTimeout
	if timeout <= 0 {
		timeout = defaultTransportTimeout
	}
	cancelTimeout := params.CancelTimeout
	if cancelTimeout <= 0 {
		cancelTimeout = defaultCancelTimeout
	}
	return &service{
		ledger:        params.Ledger,
		gateways:      params.Gateways,
		cancellations: params.Cancellations,
		metrics:       params.Metrics,
		reporter:      params.Reporter,
		logg:          params.Logger,
		workers:       workers,
		timeout:       timeout,
		cancelTimeout: cancelTimeout,
	}, nil
}

// group is one supplier's slice of the order.
type group struct {
	supplier *models.Supplier
	lines    []OrderLine
	links    map[uuid.UUID]models.ProductSupplierLink
}

func (s *service) Dispatch(ctx context.Context, order Order) (Result, error) {
	order.LocalOrderID = strings.TrimSpace(order.LocalOrderID)
	if err := order.validate(); err != nil {
		return Result{}, err
	}
	ctx = s.logg.WithOrderID(ctx, order.LocalOrderID)

	productIDs := make([]uuid.UUID, 0, len(order.Lines))
	seen := map[uuid.UUID]struct{}{}
	for _, line := range order.Lines {
		if _, ok := seen[line.ProductID]; !ok {
			seen[line.ProductID] = struct{}{}
			productIDs = append(productIDs, line.ProductID)
		}
	}
	links, err := s.ledger.ActiveLinksForProducts(ctx, productIDs)
	if err != nil {
		return Result{}, err
	}
	existing, err := s.ledger.SupplierOrdersForOrder(ctx, order.LocalOrderID)
	if err != nil {
		return Result{}, err
	}

	groups, sequence, unrouted := groupLines(order.Lines, selectLinks(links))
	result := Result{Outcomes: make(map[uuid.UUID]Outcome, len(groups)), Unrouted: unrouted}
	if len(unrouted) > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "unrouted_lines", len(unrouted)), "order lines without an active supplier link")
	}

	prior := map[uuid.UUID]models.SupplierOrder{}
	for _, row := range existing {
		prior[row.SupplierID] = row
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, supplierID := range sequence {
		grp := groups[supplierID]
		previous, hasPrevious := prior[supplierID]
		g.Go(func() error {
			var outcome Outcome
			if hasPrevious && alreadySubmitted(previous.Status) {
				outcome = s.previousOutcome(gctx, grp, previous)
			} else {
				outcome = s.dispatchGroup(gctx, order, grp)
			}
			mu.Lock()
			result.Outcomes[supplierID] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return result, nil
}

// selectLinks keeps the cheapest active link per product; ties go to the
// earliest created link.
func selectLinks(links []models.ProductSupplierLink) map[uuid.UUID]models.ProductSupplierLink {
	sorted := append([]models.ProductSupplierLink(nil), links...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if cmp := a.SupplierPrice.Cmp(b.SupplierPrice); cmp != 0 {
			return cmp < 0
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	best := map[uuid.UUID]models.ProductSupplierLink{}
	for _, link := range sorted {
		if link.Supplier == nil || !link.Supplier.Active || !link.AutoOrder {
			continue
		}
		if _, ok := best[link.ProductID]; !ok {
			best[link.ProductID] = link
		}
	}
	return best
}

// groupLines buckets lines by supplier, keeping the order in which suppliers
// first appear.
func groupLines(lines []OrderLine, best map[uuid.UUID]models.ProductSupplierLink) (map[uuid.UUID]*group, []uuid.UUID, []OrderLine) {
	groups := map[uuid.UUID]*group{}
	var order []uuid.UUID
	var unrouted []OrderLine
	for _, line := range lines {
		link, ok := best[line.ProductID]
		if !ok {
			unrouted = append(unrouted, line)
			continue
		}
		grp, exists := groups[link.SupplierID]
		if !exists {
			grp = &group{supplier: link.Supplier, links: map[uuid.UUID]models.ProductSupplierLink{}}
			groups[link.SupplierID] = grp
			order = append(order, link.SupplierID)
		}
		grp.lines = append(grp.lines, line)
		grp.links[line.ProductID] = link
	}
	return groups, order, unrouted
}

func alreadySubmitted(status enums.SupplierOrderStatus) bool {
	switch status {
	case enums.SupplierOrderStatusProcessing, enums.SupplierOrderStatusShipped, enums.SupplierOrderStatusDelivered:
		return true
	}
	return false
}

func (s *service) previousOutcome(ctx context.Context, grp *group, previous models.SupplierOrder) Outcome {
	s.metrics.IncDispatch(grp.supplier.ID.String(), outcomeExisting)
	s.logg.Info(s.logg.WithSupplierID(ctx, grp.supplier.ID.String()), "supplier order already submitted")
	return Outcome{
		SupplierID:       grp.supplier.ID,
		SupplierOrderID:  deref(previous.SupplierOrderID),
		RecordID:         previous.ID,
		Lines:            grp.lines,
		AlreadySubmitted: true,
	}
}

func (s *service) dispatchGroup(ctx context.Context, order Order, grp *group) Outcome {
	supplier := grp.supplier
	ctx = s.logg.WithSupplierID(ctx, supplier.ID.String())
	outcome := Outcome{SupplierID: supplier.ID, Lines: grp.lines}

	fail := func(err error) Outcome {
		outcome.Err = err
		s.recordFailure(ctx, order, grp, err)
		return outcome
	}

	total, lines := s.supplierLines(grp)
	if err := validateSupplier(supplier, total); err != nil {
		return fail(err)
	}
	mapping, err := payload.ParseFieldMapping(supplier.FieldMapping)
	if err != nil {
		return fail(err)
	}
	body, err := payload.Build(supplier.TransportKind, mapping, payload.Header{
		LocalOrderID:       order.LocalOrderID,
		MarketplaceOrderID: order.MarketplaceOrderID,
		Currency:           order.Currency,
		Address:            order.BuyerAddress,
	}, lines)
	if err != nil {
		return fail(err)
	}
	gateway, err := s.gateways.Resolve(ctx, supplier)
	if err != nil {
		return fail(err)
	}

	cancelled, err := s.cancellations.IsCancelled(ctx, order.LocalOrderID)
	if err != nil {
		return fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check cancellation"))
	}
	if cancelled {
		outcome.Err = ErrCancelled
		s.metrics.IncDispatch(supplier.ID.String(), outcomeCancelled)
		s.logg.Info(ctx, "order cancelled, supplier branch skipped")
		return outcome
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	supplierOrderID, raw, err := gateway.CreateOrder(callCtx, body)
	cancel()
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeTransport, err, "create supplier order")
		}
		return fail(err)
	}

	commission := ledger.Commission(total, supplier.CommissionRate)
	ref := supplierOrderID
	record, err := s.ledger.RecordSupplierOrder(ctx, order.LocalOrderID, supplier.ID, ledger.SupplierOrderResult{
		SupplierOrderID:  &ref,
		Status:           enums.SupplierOrderStatusProcessing,
		Currency:         order.Currency,
		TotalAmount:      total,
		CommissionAmount: commission,
		RawResponse:      raw,
	})
	outcome.SupplierOrderID = supplierOrderID
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "supplier_order_id", supplierOrderID), "supplier accepted order but recording failed", err)
		outcome.Err = err
		s.metrics.IncDispatch(supplier.ID.String(), outcomeFailed)
		return outcome
	}
	outcome.RecordID = record.ID

	if s.cancelledInFlight(ctx, order.LocalOrderID, supplier, supplierOrderID) {
		outcome.Err = ErrCancelledInFlight
		s.report(ctx, order, grp, outcomeCancelled, nil, &ref, &total, raw)
		return outcome
	}

	s.metrics.IncDispatch(supplier.ID.String(), outcomeSubmitted)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"supplier_order_id": supplierOrderID,
		"total_amount":      total.StringFixed(2),
	}), "supplier order submitted")
	s.report(ctx, order, grp, outcomeSubmitted, nil, &ref, &total, raw)
	return outcome
}

// cancelledInFlight re-checks the cancellation marker once the branch row
// exists and cancels the recorded supplier order when it is set.
func (s *service) cancelledInFlight(ctx context.Context, localOrderID string, supplier *models.Supplier, supplierOrderID string) bool {
	cancelled, err := s.cancellations.IsCancelled(ctx, localOrderID)
	if err != nil {
		s.logg.Error(ctx, "re-check cancellation after submission", err)
		return false
	}
	if !cancelled {
		return false
	}
	reason := "cancelled during submission"
	_, err = s.ledger.AdvanceSupplierOrder(ctx, localOrderID, supplier.ID, ledger.StatusUpdate{
		Status: enums.SupplierOrderStatusCancelled,
		Reason: &reason,
	})
	switch {
	case err == nil:
		s.metrics.IncDispatch(supplier.ID.String(), outcomeCancelled)
		s.logg.Info(s.logg.WithField(ctx, "supplier_order_id", supplierOrderID), "order cancelled during submission, cancelling supplier order")
		if supplierOrderID != "" {
			s.cancelUpstream(ctx, supplier, supplierOrderID)
		}
	case pkgerrors.CodeOf(err) == pkgerrors.CodeStateConflict:
		// Cancel already moved the row and issued the upstream cancel.
	default:
		s.logg.Error(ctx, "cancel supplier order after submission", err)
	}
	return true
}

// supplierLines prices the group at the supplier's cost.
func (s *service) supplierLines(grp *group) (decimal.Decimal, []payload.Line) {
	total := decimal.Zero
	lines := make([]payload.Line, 0, len(grp.lines))
	for _, line := range grp.lines {
		link := grp.links[line.ProductID]
		total = total.Add(link.SupplierPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
		lines = append(lines, payload.Line{
			ProductID:   line.ProductID,
			SupplierSKU: link.SupplierSKU,
			Quantity:    line.Quantity,
			UnitPrice:   link.SupplierPrice,
		})
	}
	return total.Round(2), lines
}

func validateSupplier(supplier *models.Supplier, total decimal.Decimal) error {
	if supplier == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "supplier missing for link")
	}
	if !supplier.Active {
		return pkgerrors.New(pkgerrors.CodeValidation, "supplier is inactive")
	}
	if !supplier.TransportKind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("supplier transport kind %q is invalid", supplier.TransportKind))
	}
	if supplier.MinimumOrder.IsPositive() && total.LessThan(supplier.MinimumOrder) {
		return pkgerrors.New(pkgerrors.CodeValidation, "order total is below the supplier minimum").
			WithDetails(map[string]any{
				"minimum_order": supplier.MinimumOrder.StringFixed(2),
				"total":         total.StringFixed(2),
			})
	}
	return nil
}

func (s *service) recordFailure(ctx context.Context, order Order, grp *group, err error) {
	supplierID := grp.supplier.ID
	code := pkgerrors.CodeOf(err)
	s.metrics.IncDispatch(supplierID.String(), outcomeFailed)
	s.logg.Error(s.logg.WithField(ctx, "error_code", string(code)), "supplier branch failed", err)

	pairID := branchID(order.LocalOrderID, supplierID)
	if emitErr := s.ledger.EmitEvent(ctx, outbox.DomainEvent{
		EventType:     enums.EventSupplierOrderFailed,
		AggregateType: enums.AggregateSupplierOrder,
		AggregateID:   pairID,
		Source:        eventSource,
		Data: payloads.SupplierOrderFailedEvent{
			SupplierOrderID: pairID,
			LocalOrderID:    order.LocalOrderID,
			SupplierID:      supplierID,
			Code:            string(code),
			Error:           err.Error(),
		},
	}); emitErr != nil {
		s.logg.Error(ctx, "emit supplier_order_failed", emitErr)
	}
	codeStr := string(code)
	s.report(ctx, order, grp, outcomeFailed, &codeStr, nil, nil, nil)
}

func (s *service) report(ctx context.Context, order Order, grp *group, outcome string, code, ref *string, total *decimal.Decimal, raw []byte) {
	if s.reporter == nil {
		return
	}
	row := reporting.DispatchOutcomeRow{
		LocalOrderID: order.LocalOrderID,
		SupplierID:   grp.supplier.ID.String(),
		Outcome:      outcome,
		ErrorCode:    code,
		SupplierRef:  ref,
		LineCount:    len(grp.lines),
		OccurredAt:   time.Now().UTC(),
		Response:     reporting.EncodeJSON(raw),
	}
	if total != nil {
		amount := total.StringFixed(2)
		row.TotalAmount = &amount
	}
	if err := s.reporter.RecordDispatch(ctx, row); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "dispatch outcome report failed")
	}
}

func (s *service) Cancel(ctx context.Context, localOrderID string) (CancelResult, error) {
	localOrderID = strings.TrimSpace(localOrderID)
	if localOrderID == "" {
		return CancelResult{}, pkgerrors.New(pkgerrors.CodeValidation, "local order id required")
	}
	ctx = s.logg.WithOrderID(ctx, localOrderID)
	if err := s.cancellations.MarkCancelled(ctx, localOrderID); err != nil {
		return CancelResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order cancelled")
	}

	rows, err := s.ledger.SupplierOrdersForOrder(ctx, localOrderID)
	if err != nil {
		return CancelResult{}, err
	}

	result := CancelResult{LocalOrderID: localOrderID}
	reason := "cancelled by customer order"
	for _, row := range rows {
		if row.Status.IsTerminal() {
			result.Skipped = append(result.Skipped, row.SupplierID)
			continue
		}
		updated, err := s.ledger.AdvanceSupplierOrder(ctx, localOrderID, row.SupplierID, ledger.StatusUpdate{
			Status: enums.SupplierOrderStatusCancelled,
			Reason: &reason,
		})
		if err != nil {
			if result.Errors == nil {
				result.Errors = map[uuid.UUID]string{}
			}
			result.Errors[row.SupplierID] = err.Error()
			continue
		}
		result.Cancelled = append(result.Cancelled, row.SupplierID)
		s.metrics.IncDispatch(row.SupplierID.String(), outcomeCancelled)
		if updated.SupplierOrderID != nil && row.Supplier != nil {
			s.cancelUpstream(ctx, row.Supplier, *updated.SupplierOrderID)
		}
	}
	return result, nil
}

// cancelUpstream fires a best-effort cancel at the supplier without
// blocking the caller.
func (s *service) cancelUpstream(ctx context.Context, supplier *models.Supplier, supplierOrderID string) {
	gateway, err := s.gateways.Resolve(ctx, supplier)
	if err != nil {
		s.logg.Error(ctx, "resolve gateway for cancel", err)
		return
	}
	canceler, ok := gateway.(transport.Canceler)
	if !ok {
		s.logg.Info(s.logg.WithSupplierID(ctx, supplier.ID.String()), "supplier transport cannot cancel orders")
		return
	}

	bg := context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		callCtx, cancel := context.WithTimeout(bg, s.cancelTimeout)
		defer cancel()
		logCtx := s.logg.WithFields(bg, map[string]any{
			"supplier_id":       supplier.ID.String(),
			"supplier_order_id": supplierOrderID,
		})
		if err := canceler.CancelOrder(callCtx, supplierOrderID); err != nil {
			s.logg.Error(logCtx, "supplier cancel request failed", err)
			return
		}
		s.logg.Info(logCtx, "supplier cancel request accepted")
	}()
}

func (s *service) Wait() {
	s.background.Wait()
}

// branchID is a stable id for a (order, supplier) pair that has no ledger row.
func branchID(localOrderID string, supplierID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(localOrderID+":"+supplierID.String()))
}

// IsCancelled reports whether err is the skipped-by-cancellation outcome.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, ErrCancelledInFlight)
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
