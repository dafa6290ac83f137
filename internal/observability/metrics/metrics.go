package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics exposes counters/histograms for the schedule engine: feed
// events, record refreshes and rebuild latency.
type EngineMetrics struct {
	eventsTotal      *prometheus.CounterVec
	droppedTotal     *prometheus.CounterVec
	refreshTotal     *prometheus.CounterVec
	rebuildLatency   prometheus.Histogram
	connectionStates *prometheus.CounterVec
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livhair",
			Subsystem: "engine",
			Name:      "feed_events_total",
			Help:      "Activity events applied from the update feed",
		}, []string{"entity", "action"}),
		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livhair",
			Subsystem: "engine",
			Name:      "feed_dropped_total",
			Help:      "Feed events dropped before application",
		}, []string{"reason"}),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livhair",
			Subsystem: "engine",
			Name:      "refresh_total",
			Help:      "Record refreshes against the backend",
		}, []string{"kind", "status"}),
		rebuildLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "livhair",
			Subsystem: "engine",
			Name:      "rebuild_seconds",
			Help:      "Latency of full schedule rebuilds",
			Buckets:   prometheus.DefBuckets,
		}),
		connectionStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livhair",
			Subsystem: "engine",
			Name:      "connection_state_total",
			Help:      "Connection state transitions of the update feed",
		}, []string{"state"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.eventsTotal, m.droppedTotal, m.refreshTotal, m.rebuildLatency, m.connectionStates)
	return m
}

func (m *EngineMetrics) ObserveEvent(entity, action string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(entity, action).Inc()
}

func (m *EngineMetrics) ObserveDropped(reason string) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(reason).Inc()
}

func (m *EngineMetrics) ObserveRefresh(kind, status string) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(kind, status).Inc()
}

func (m *EngineMetrics) ObserveRebuild(seconds float64) {
	if m == nil {
		return
	}
	m.rebuildLatency.Observe(seconds)
}

func (m *EngineMetrics) ObserveConnectionState(state string) {
	if m == nil {
		return
	}
	m.connectionStates.WithLabelValues(state).Inc()
}
