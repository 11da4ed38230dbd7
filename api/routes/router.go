package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/dropsync-backend/api/controllers"
	"github.com/angelmondragon/dropsync-backend/api/middleware"
	"github.com/angelmondragon/dropsync-backend/internal/automation"
	"github.com/angelmondragon/dropsync-backend/internal/bulk"
	"github.com/angelmondragon/dropsync-backend/internal/dispatch"
	"github.com/angelmondragon/dropsync-backend/internal/pricing"
	"github.com/angelmondragon/dropsync-backend/internal/stocksync"
	"github.com/angelmondragon/dropsync-backend/internal/suppliers"
	"github.com/angelmondragon/dropsync-backend/pkg/config"
	"github.com/angelmondragon/dropsync-backend/pkg/logger"
	"github.com/angelmondragon/dropsync-backend/pkg/redis"
)

// Services groups the domain services the admin API fronts.
type Services struct {
	Suppliers  suppliers.Service
	Links      controllers.LinkWriter
	Orders     controllers.SupplierOrderLedger
	Dispatcher dispatch.Service
	StockSync  stocksync.Service
	Pricing    pricing.Service
	Automation automation.Service
	Bulk       bulk.Service
}

// Probes are the dependencies checked by /health/ready.
type Probes map[string]controllers.Pinger

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	idempotencyStore redis.IdempotencyStore,
	gatherer prometheus.Gatherer,
	probes Probes,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, probes))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/suppliers", func(r chi.Router) {
			r.Get("/", controllers.AdminListSuppliers(svc.Suppliers, logg))
			r.Post("/", controllers.AdminCreateSupplier(svc.Suppliers, logg))
			r.Get("/{supplierId}", controllers.AdminGetSupplier(svc.Suppliers, logg))
			r.Put("/{supplierId}", controllers.AdminUpdateSupplier(svc.Suppliers, logg))
			r.Delete("/{supplierId}", controllers.AdminDeleteSupplier(svc.Suppliers, logg))
		})

		r.Route("/links", func(r chi.Router) {
			r.Put("/", controllers.AdminUpsertLink(svc.Links, logg))
			r.Post("/bulk", controllers.AdminBulkLinks(svc.Bulk, logg))
			r.Delete("/{productId}/{supplierId}", controllers.AdminDeleteLink(svc.Links, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/dispatch", controllers.AdminDispatchOrder(svc.Dispatcher, logg))
			r.Post("/{orderId}/cancel", controllers.AdminCancelOrder(svc.Dispatcher, logg))
			r.Get("/{orderId}/supplier-orders", controllers.AdminSupplierOrders(svc.Orders, logg))
			r.Put("/{orderId}/supplier-orders/{supplierId}/status", controllers.AdminAdvanceSupplierOrder(svc.Orders, logg))
		})

		r.Route("/sync", func(r chi.Router) {
			r.Post("/stock", controllers.AdminRunStockSync(svc.StockSync, logg))
			r.Post("/pricing", controllers.AdminRunPricing(svc.Pricing, logg))
		})

		r.Route("/automation", func(r chi.Router) {
			r.Post("/rules", controllers.AdminCreateRule(svc.Automation, logg))
			r.Post("/evaluate", controllers.AdminEvaluateRules(svc.Automation, logg))
		})
	})

	return r
}
