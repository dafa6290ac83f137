package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestEngineMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg)
	m.ObserveEvent("procedure", "updated")
	m.ObserveEvent("procedure", "updated")
	m.ObserveDropped("malformed")
	m.ObserveRefresh("procedure", "ok")
	m.ObserveRebuild(0.004)
	m.ObserveConnectionState("live")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	events := byName["livhair_engine_feed_events_total"]
	if events == nil {
		t.Fatal("feed_events_total not registered")
	}
	if got := events.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Fatalf("feed_events_total = %v, want 2", got)
	}
	if byName["livhair_engine_rebuild_seconds"] == nil {
		t.Fatal("rebuild_seconds not registered")
	}
}

func TestEngineMetricsNilSafe(t *testing.T) {
	var m *EngineMetrics
	m.ObserveEvent("patient", "created")
	m.ObserveDropped("malformed")
	m.ObserveRefresh("patient", "error")
	m.ObserveRebuild(0.01)
	m.ObserveConnectionState("offline")
}
