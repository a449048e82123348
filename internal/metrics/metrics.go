// Package metrics exposes search progress as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwbudde/scenariosearch/internal/fitness"
	"github.com/cwbudde/scenariosearch/internal/search"
	"github.com/cwbudde/scenariosearch/internal/store"
)

// Metrics holds all search metrics. It is a search.Observer.
type Metrics struct {
	registry *prometheus.Registry
	strategy string

	// Evaluation metrics
	EvaluationsTotal   *prometheus.CounterVec
	EvaluationDuration *prometheus.HistogramVec

	// Generation metrics
	Generation    prometheus.Gauge
	FrontSize     prometheus.Gauge
	BestObjective *prometheus.GaugeVec

	// Route metrics
	RoutesTotal *prometheus.CounterVec

	// Simulator breaker
	BreakerTransitions *prometheus.CounterVec
}

// New creates metrics on a private registry labelled with strategy.
func New(strategy string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		strategy: strategy,

		EvaluationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scenariosearch_evaluations_total",
				Help: "Total number of scenario evaluations",
			},
			[]string{"strategy", "status"},
		),

		EvaluationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scenariosearch_evaluation_duration_seconds",
				Help:    "Scenario evaluation wall-clock time in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"strategy"},
		),

		Generation: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scenariosearch_generation",
				Help: "Last completed generation",
			},
		),

		FrontSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scenariosearch_front_size",
				Help: "Size of the current non-dominated front",
			},
		),

		BestObjective: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scenariosearch_best_objective",
				Help: "Best value seen per objective (lower is more critical)",
			},
			[]string{"objective"},
		),

		RoutesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scenariosearch_routes_total",
				Help: "Total number of processed routes",
			},
			[]string{"status"},
		),

		BreakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scenariosearch_breaker_transitions_total",
				Help: "Total number of simulator breaker state changes",
			},
			[]string{"to"},
		),
	}
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) OnEvaluation(e search.EvaluationEvent) {
	m.EvaluationsTotal.WithLabelValues(m.strategy, string(e.Evaluation.Status)).Inc()
	m.EvaluationDuration.WithLabelValues(m.strategy).Observe(e.Evaluation.Duration.Seconds())
}

func (m *Metrics) OnGeneration(e search.GenerationEvent) {
	m.Generation.Set(float64(e.Generation))
	m.FrontSize.Set(float64(e.Progress.FrontSize))
	for i, name := range fitness.ObjectiveNames {
		m.BestObjective.WithLabelValues(name).Set(e.Progress.Best[i])
	}
}

// RecordRoute counts a processed route
func (m *Metrics) RecordRoute(status store.RouteStatus) {
	m.RoutesTotal.WithLabelValues(string(status)).Inc()
}

// RecordBreakerChange counts a simulator breaker transition
func (m *Metrics) RecordBreakerChange(to string) {
	m.BreakerTransitions.WithLabelValues(to).Inc()
}
