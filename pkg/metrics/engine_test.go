package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestEngineMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg)

	m.IncDispatch("acme", "success")
	m.IncDispatch("acme", "success")
	m.IncDispatch("", "failure")
	m.IncLinkSync("error")
	m.ObserveTransport("rest_flat", "create_order", errors.New("boom"), 100*time.Millisecond)
	m.AddReprices(3)
	m.AddReprices(0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "dropsync_supplier_dispatch_total", "supplier", "acme"); err != nil || got != 2 {
		t.Fatalf("expected 2 acme dispatches, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "dropsync_supplier_dispatch_total", "supplier", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected unknown supplier label, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "dropsync_link_sync_total", "status", "error"); err != nil || got != 1 {
		t.Fatalf("expected link sync error=1, got %f err=%v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "dropsync_transport_request_duration_seconds", "result", "error"); err != nil || got <= 0 {
		t.Fatalf("expected transport histogram sample, got %f err=%v", got, err)
	}
	mf := findMetricFamily(mfs, "dropsync_link_reprice_total")
	if mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 3 {
		t.Fatalf("expected 3 reprices")
	}
}

func TestNilEngineMetricsIsNoop(t *testing.T) {
	var m *EngineMetrics
	m.IncDispatch("a", "b")
	m.IncLinkSync("success")
	m.ObserveTransport("square", "fetch_stock", nil, time.Second)
	m.AddReprices(1)
}
