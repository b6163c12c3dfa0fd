package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ppiankov/triagewatch/internal/model"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Decisions           *prometheus.CounterVec
	Overrides           prometheus.Counter
	CacheHits           prometheus.Counter
	RepositoryFailures  prometheus.Counter
	Correlations        *prometheus.CounterVec
	BadgeSourceFailures prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triagewatch_decisions_total",
			Help: "Merged triage decisions by final threat level.",
		}, []string{"threat_level"}),
		Overrides: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triagewatch_sop_overrides_total",
			Help: "Decisions whose threat level was set by a procedure override.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triagewatch_cache_hits_total",
			Help: "Decisions served from the decision cache.",
		}),
		RepositoryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triagewatch_repository_failures_total",
			Help: "Triage requests where the procedure repository was unavailable.",
		}),
		Correlations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triagewatch_correlations_total",
			Help: "Badge correlation verdicts by risk level.",
		}, []string{"risk_level"}),
		BadgeSourceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triagewatch_badge_source_failures_total",
			Help: "Correlations where badge events could not be fetched.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Decisions, m.Overrides, m.CacheHits, m.RepositoryFailures, m.Correlations, m.BadgeSourceFailures)
	}
	return m
}

func (m *Metrics) observeDecision(d model.MergedDecision) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(d.ThreatLevel.Label()).Inc()
	if d.Overridden() && d.ThreatLevel != d.OriginalThreatLevel {
		m.Overrides.Inc()
	}
}

func (m *Metrics) cacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) repositoryFailure() {
	if m != nil {
		m.RepositoryFailures.Inc()
	}
}

func (m *Metrics) observeCorrelation(r model.CorrelationResult, sourceFailed bool) {
	if m == nil {
		return
	}
	m.Correlations.WithLabelValues(string(r.RiskLevel)).Inc()
	if sourceFailed {
		m.BadgeSourceFailures.Inc()
	}
}
