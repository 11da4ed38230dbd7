package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics tracks supplier fan-out, transport calls and reconciliation.
// A nil *EngineMetrics is a no-op.
type EngineMetrics struct {
	dispatches *prometheus.CounterVec
	transport  *prometheus.HistogramVec
	linkSyncs  *prometheus.CounterVec
	reprices   prometheus.Counter
}

// NewEngineMetrics registers the engine metrics on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dropsync_supplier_dispatch_total",
		Help: "Supplier sub-order submissions by outcome.",
	}, []string{"supplier", "outcome"})
	transport := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dropsync_transport_request_duration_seconds",
		Help:    "Latency of supplier transport calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind", "operation", "result"})
	linkSyncs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dropsync_link_sync_total",
		Help: "Stock reconciliation attempts per link by status.",
	}, []string{"status"})
	reprices := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dropsync_link_reprice_total",
		Help: "Links repriced by the pricing optimizer.",
	})
	reg.MustRegister(dispatches, transport, linkSyncs, reprices)
	return &EngineMetrics{
		dispatches: dispatches,
		transport:  transport,
		linkSyncs:  linkSyncs,
		reprices:   reprices,
	}
}

// IncDispatch counts one supplier sub-order outcome ("success" or "failure").
func (m *EngineMetrics) IncDispatch(supplier, outcome string) {
	if m == nil || m.dispatches == nil {
		return
	}
	m.dispatches.WithLabelValues(normalizeLabel(supplier), normalizeLabel(outcome)).Inc()
}

// ObserveTransport records a transport call duration.
func (m *EngineMetrics) ObserveTransport(kind, operation string, err error, d time.Duration) {
	if m == nil || m.transport == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.transport.WithLabelValues(normalizeLabel(kind), normalizeLabel(operation), result).Observe(d.Seconds())
}

// IncLinkSync counts one stock reconciliation outcome.
func (m *EngineMetrics) IncLinkSync(status string) {
	if m == nil || m.linkSyncs == nil {
		return
	}
	m.linkSyncs.WithLabelValues(normalizeLabel(status)).Inc()
}

// AddReprices counts repriced links.
func (m *EngineMetrics) AddReprices(n int) {
	if m == nil || m.reprices == nil || n <= 0 {
		return
	}
	m.reprices.Add(float64(n))
}
