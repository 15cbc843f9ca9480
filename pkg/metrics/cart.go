package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics records cart mutation outcomes and checkout drift signals.
type CartMetrics struct {
	mutationDuration *prometheus.HistogramVec
	mutations        *prometheus.CounterVec
	versionConflicts prometheus.Counter
	mergeOutcomes    *prometheus.CounterVec
	sessionDrift     prometheus.Counter
}

// NewCartMetrics registers the cart metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	mutationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_mutation_duration_seconds",
		Help:    "Duration of cart mutations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Cart mutations by operation and outcome.",
	}, []string{"op", "outcome"})
	versionConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_version_conflicts_total",
		Help: "Mutations rejected because the expected version was stale.",
	})
	mergeOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_merge_outcomes_total",
		Help: "Guest cart merge attempts by outcome.",
	}, []string{"outcome"})
	sessionDrift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_session_drift_total",
		Help: "Checkout sessions invalidated because the cart drifted.",
	})
	reg.MustRegister(mutationDuration, mutations, versionConflicts, mergeOutcomes, sessionDrift)
	return &CartMetrics{
		mutationDuration: mutationDuration,
		mutations:        mutations,
		versionConflicts: versionConflicts,
		mergeOutcomes:    mergeOutcomes,
		sessionDrift:     sessionDrift,
	}
}

// ObserveMutation records one mutation attempt with its duration.
func (c *CartMetrics) ObserveMutation(op, outcome string, duration time.Duration) {
	if c == nil || c.mutations == nil {
		return
	}
	c.mutations.WithLabelValues(normalizeLabel(op), normalizeLabel(outcome)).Inc()
	c.mutationDuration.WithLabelValues(normalizeLabel(op)).Observe(duration.Seconds())
}

// IncVersionConflict counts a rejected stale-version mutation.
func (c *CartMetrics) IncVersionConflict() {
	if c == nil || c.versionConflicts == nil {
		return
	}
	c.versionConflicts.Inc()
}

// IncMergeOutcome counts a merge attempt by outcome.
func (c *CartMetrics) IncMergeOutcome(outcome string) {
	if c == nil || c.mergeOutcomes == nil {
		return
	}
	c.mergeOutcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncSessionDrift counts a checkout session invalidated by drift.
func (c *CartMetrics) IncSessionDrift() {
	if c == nil || c.sessionDrift == nil {
		return
	}
	c.sessionDrift.Inc()
}
