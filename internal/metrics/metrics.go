package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "ecomap"

// Metrics holds the client core collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	toggles       *prometheus.CounterVec
	pending       *prometheus.GaugeVec
	markersLive   *prometheus.GaugeVec
	markerOps     *prometheus.CounterVec
	fetchFailures *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "toggle_total",
			Help:      "Optimistic toggles by relation and outcome",
		}, []string{"relation", "outcome"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "toggle_pending",
			Help:      "Toggles currently waiting for the backend",
		}, []string{"relation"}),
		markersLive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "markers_live",
			Help:      "Markers currently placed on the map",
		}, []string{"kind"}),
		markerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "marker_ops_total",
			Help:      "Marker surface operations by kind and op",
		}, []string{"kind", "op"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Failed snapshot fetches by source",
		}, []string{"source"}),
	}
	if reg != nil {
		reg.MustRegister(m.toggles, m.pending, m.markersLive, m.markerOps, m.fetchFailures)
	}
	return m
}

func (m *Metrics) Toggle(relation, outcome string) {
	if m == nil {
		return
	}
	m.toggles.WithLabelValues(relation, outcome).Inc()
}

func (m *Metrics) PendingDelta(relation string, delta float64) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues(relation).Add(delta)
}

func (m *Metrics) MarkersLive(kind string, n int) {
	if m == nil {
		return
	}
	m.markersLive.WithLabelValues(kind).Set(float64(n))
}

func (m *Metrics) MarkerOp(kind, op string) {
	if m == nil {
		return
	}
	m.markerOps.WithLabelValues(kind, op).Inc()
}

func (m *Metrics) FetchFailed(source string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(source).Inc()
}
