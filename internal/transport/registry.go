package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropsync-backend/internal/payload"
	"github.com/angelmondragon/dropsync-backend/pkg/db/models"
	"github.com/angelmondragon/dropsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
	"github.com/angelmondragon/dropsync-backend/pkg/metrics"
	"github.com/angelmondragon/dropsync-backend/pkg/square"
)

// Factory builds a gateway for one supplier from its transport config.
type Factory func(ctx context.Context, supplier *models.Supplier, cfg Config) (Gateway, error)

type cachedGateway struct {
	gateway   Gateway
	updatedAt time.Time
}

// Registry resolves suppliers to gateways by transport kind and caches the
// result per supplier id until the supplier row changes.
type Registry struct {
	mu        sync.Mutex
	factories map[enums.TransportKind]Factory
	cache     map[uuid.UUID]cachedGateway
	metrics   *metrics.EngineMetrics
}

func NewRegistry(m *metrics.EngineMetrics) *Registry {
	return &Registry{
		factories: map[enums.TransportKind]Factory{},
		cache:     map[uuid.UUID]cachedGateway{},
		metrics:   m,
	}
}

// Register binds a factory to kind. Registering a kind twice is an error.
func (r *Registry) Register(kind enums.TransportKind, factory Factory) error {
	if !kind.IsValid() {
		return fmt.Errorf("invalid transport kind %q", kind)
	}
	if factory == nil {
		return fmt.Errorf("factory required for %s", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("transport kind %s already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

// Resolve returns the gateway for supplier.
func (r *Registry) Resolve(ctx context.Context, supplier *models.Supplier) (Gateway, error) {
	if supplier == nil || supplier.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.cache[supplier.ID]; ok && cached.updatedAt.Equal(supplier.UpdatedAt) {
		return cached.gateway, nil
	}
	factory, ok := r.factories[supplier.TransportKind]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no transport registered for kind %q", supplier.TransportKind)).
			WithDetails(map[string]any{"transport_kind": string(supplier.TransportKind)})
	}
	cfg, err := ParseConfig(supplier.TransportConfig)
	if err != nil {
		return nil, err
	}
	gateway, err := factory(ctx, supplier, cfg)
	if err != nil {
		return nil, err
	}
	gateway = instrument(gateway, supplier.TransportKind, r.metrics)
	r.cache[supplier.ID] = cachedGateway{gateway: gateway, updatedAt: supplier.UpdatedAt}
	return gateway, nil
}

// Invalidate drops the cached gateway of a supplier.
func (r *Registry) Invalidate(supplierID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, supplierID)
}

// HTTPFactory builds HTTPGateways with the given default request timeout.
func HTTPFactory(timeout time.Duration) Factory {
	return func(_ context.Context, _ *models.Supplier, cfg Config) (Gateway, error) {
		return NewHTTPGateway(cfg, nil, timeout)
	}
}

// SquareFactory builds SquareGateways. Suppliers naming a token_env get
// their own client; others share fallback.
func SquareFactory(fallback *square.Client, defaultEnv string, logg *logger.Logger) Factory {
	return func(ctx context.Context, supplier *models.Supplier, cfg Config) (Gateway, error) {
		client := fallback
		if token := cfg.Token(); token != "" {
			env := cfg.Environment
			if env == "" {
				env = defaultEnv
			}
			own, err := square.NewClientWithToken(ctx, env, token, cfg.BaseURL, logg)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "square client for supplier")
			}
			client = own
		}
		if client == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("square credentials not configured for supplier %s", supplier.ID))
		}
		location := cfg.LocationID
		if location == "" {
			if mapping, err := payload.ParseFieldMapping(supplier.FieldMapping); err == nil {
				location = mapping.LocationID
			}
		}
		return NewSquareGateway(client, location)
	}
}

// RegisterDefaults wires the built-in kinds. squareClient may be nil when the
// service has no global Square credentials.
func (r *Registry) RegisterDefaults(timeout time.Duration, squareClient *square.Client, squareEnv string, logg *logger.Logger) error {
	httpFactory := HTTPFactory(timeout)
	if err := r.Register(enums.TransportKindRESTFlat, httpFactory); err != nil {
		return err
	}
	if err := r.Register(enums.TransportKindRESTNested, httpFactory); err != nil {
		return err
	}
	return r.Register(enums.TransportKindSquare, SquareFactory(squareClient, squareEnv, logg))
}

type instrumented struct {
	inner   Gateway
	kind    string
	metrics *metrics.EngineMetrics
}

type instrumentedCanceler struct {
	instrumented
	canceler Canceler
}

func instrument(g Gateway, kind enums.TransportKind, m *metrics.EngineMetrics) Gateway {
	base := instrumented{inner: g, kind: string(kind), metrics: m}
	if c, ok := g.(Canceler); ok {
		return &instrumentedCanceler{instrumented: base, canceler: c}
	}
	return &base
}

func (g *instrumented) CreateOrder(ctx context.Context, p payload.Payload) (string, json.RawMessage, error) {
	start := time.Now()
	id, raw, err := g.inner.CreateOrder(ctx, p)
	g.metrics.ObserveTransport(g.kind, "create_order", err, time.Since(start))
	return id, raw, err
}

func (g *instrumented) FetchStock(ctx context.Context, sku string) (int, error) {
	start := time.Now()
	qty, err := g.inner.FetchStock(ctx, sku)
	g.metrics.ObserveTransport(g.kind, "fetch_stock", err, time.Since(start))
	return qty, err
}

func (g *instrumentedCanceler) CancelOrder(ctx context.Context, supplierOrderID string) error {
	start := time.Now()
	err := g.canceler.CancelOrder(ctx, supplierOrderID)
	g.metrics.ObserveTransport(g.kind, "cancel_order", err, time.Since(start))
	return err
}
