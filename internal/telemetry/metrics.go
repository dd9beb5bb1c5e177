package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the discussion engine.
type Metrics struct {
	registry *prometheus.Registry

	discussionsTotal   *prometheus.CounterVec
	roundsTotal        prometheus.Counter
	contributionsTotal *prometheus.CounterVec
	interventionsTotal *prometheus.CounterVec
	generateDuration   *prometheus.HistogramVec
	activeSessions     prometheus.Gauge
}

// NewMetrics creates a Metrics collector with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		discussionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mdtboard_discussions_total",
			Help: "Discussions finished, by terminal state.",
		}, []string{"state"}),
		roundsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mdtboard_rounds_total",
			Help: "Discussion rounds executed.",
		}),
		contributionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mdtboard_contributions_total",
			Help: "Participant contributions, by participant and status.",
		}, []string{"participant", "status"}),
		interventionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mdtboard_interventions_total",
			Help: "Interventions resolved, by kind and status.",
		}, []string{"kind", "status"}),
		generateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mdtboard_generate_duration_seconds",
			Help:    "Participant generate call duration.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"participant"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mdtboard_active_sessions",
			Help: "Sessions currently held by the session store.",
		}),
	}

	m.registry.MustRegister(
		m.discussionsTotal,
		m.roundsTotal,
		m.contributionsTotal,
		m.interventionsTotal,
		m.generateDuration,
		m.activeSessions,
	)
	return m
}

// RecordDiscussion records a finished discussion with its terminal state.
func (m *Metrics) RecordDiscussion(state string) {
	m.discussionsTotal.WithLabelValues(state).Inc()
}

// RecordRound records one executed discussion round.
func (m *Metrics) RecordRound() {
	m.roundsTotal.Inc()
}

// RecordContribution records one participant contribution and the duration
// of the generate call that produced it.
func (m *Metrics) RecordContribution(participant string, succeeded bool, duration time.Duration) {
	status := "ok"
	if !succeeded {
		status = "failed"
	}
	m.contributionsTotal.WithLabelValues(participant, status).Inc()
	m.generateDuration.WithLabelValues(participant).Observe(duration.Seconds())
}

// RecordIntervention records a resolved intervention.
func (m *Metrics) RecordIntervention(kind, status string) {
	m.interventionsTotal.WithLabelValues(kind, status).Inc()
}

// SetActiveSessions updates the active-session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// Handler returns an HTTP handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
