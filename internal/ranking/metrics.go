package ranking

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricRankingRequests         = "ranking_requests_total"
	MetricRankingCandidates       = "ranking_candidates"
	MetricRankingDuration         = "ranking_duration_seconds"
	MetricRankingFactorSelected   = "ranking_factor_selected_total"
	MetricRankingUnknownFactor    = "ranking_unknown_factor_total"
	MetricRankingOverrideRejected = "ranking_override_rejected_total"
)

// Metrics contains Prometheus metrics for ranking computations.
// All operations are thread-safe.
type Metrics struct {
	requests         prometheus.Counter
	candidates       prometheus.Histogram
	duration         prometheus.Histogram
	factorSelected   *prometheus.CounterVec
	unknownFactor    prometheus.Counter
	overrideRejected *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRankingRequests,
			Help: "Total number of ranking computations",
		}),
		candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRankingCandidates,
			Help:    "Histogram of candidate set sizes per ranking computation",
			Buckets: prometheus.ExponentialBuckets(10, 4, 7), // 10 to ~40k
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRankingDuration,
			Help:    "Histogram of ranking computation duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		factorSelected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRankingFactorSelected,
				Help: "Total number of times each factor was active in a ranking computation",
			},
			[]string{"factor"},
		),
		unknownFactor: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRankingUnknownFactor,
			Help: "Total number of unregistered factor names supplied by callers",
		}),
		overrideRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRankingOverrideRejected,
				Help: "Total number of partial or invalid factor overrides reverted to defaults",
			},
			[]string{"factor"},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRequests increments the ranking computation counter.
func (m *Metrics) IncRequests() {
	m.requests.Inc()
}

// ObserveCandidates records the size of a candidate set.
func (m *Metrics) ObserveCandidates(n int) {
	m.candidates.Observe(float64(n))
}

// ObserveDuration records a ranking duration sample.
func (m *Metrics) ObserveDuration(seconds float64) {
	m.duration.Observe(seconds)
}

// IncFactorSelected increments the active-factor counter for factor.
// factor is always a registered name, which bounds label cardinality.
func (m *Metrics) IncFactorSelected(factor string) {
	m.factorSelected.WithLabelValues(factor).Inc()
}

// AddUnknownFactors adds n to the unknown factor counter.
func (m *Metrics) AddUnknownFactors(n int) {
	m.unknownFactor.Add(float64(n))
}

// IncOverrideRejected increments the rejected override counter for factor.
func (m *Metrics) IncOverrideRejected(factor string) {
	m.overrideRejected.WithLabelValues(factor).Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requests,
		m.candidates,
		m.duration,
		m.factorSelected,
		m.unknownFactor,
		m.overrideRejected,
	}
}
