// Package metrics exposes Prometheus instruments for authentication outcomes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "auth"

// Operations.
const (
	OpRegister    = "register"
	OpSignIn      = "sign_in"
	OpCurrentUser = "current_user"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeInvalid = "invalid"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
)

var hashBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2}

// AuthMetrics counts orchestrator outcomes and times bcrypt.
// A nil *AuthMetrics is valid and records nothing.
type AuthMetrics struct {
	Operations   *prometheus.CounterVec
	HashDuration prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New registers the instruments on a fresh registry, which also carries the
// Go runtime and process collectors.
func New() *AuthMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry lets tests inject their own registry.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *AuthMetrics {
	factory := promauto.With(reg)

	return &AuthMetrics{
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Authentication operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		HashDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "password_hash_seconds",
				Help:      "Time spent hashing or verifying passwords with bcrypt",
				Buckets:   hashBuckets,
			},
		),
		gatherer: gatherer,
	}
}

// Observe records one finished operation.
func (m *AuthMetrics) Observe(operation, outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = OutcomeSuccess
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
}

// ObserveHash records one bcrypt call that started at start.
func (m *AuthMetrics) ObserveHash(start time.Time) {
	if m == nil {
		return
	}
	m.HashDuration.Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *AuthMetrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
