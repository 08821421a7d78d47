package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder receives timing and outcome of service operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// PlanObserver is implemented by recorders that also want the finished plan.
type PlanObserver interface {
	ObservePlan(ctx context.Context, plan Plan)
}

// PrometheusRecorder publishes operation timings and plan figures to a
// Prometheus registry. A one-shot run dumps the registry with WriteTextfile.
type PrometheusRecorder struct {
	registry      *prometheus.Registry
	durations     *prometheus.HistogramVec
	results       *prometheus.CounterVec
	reactions     prometheus.Gauge
	dispenses     prometheus.Gauge
	wellVolume    *prometheus.GaugeVec
	wellReactions *prometheus.GaugeVec
}

// NewPrometheusRecorder registers the plan collectors on reg. A nil registry
// gets a fresh one so that independent runs never share state.
func NewPrometheusRecorder(reg *prometheus.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &PrometheusRecorder{
		registry: reg,
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "idotplan",
			Name:      "operation_duration_seconds",
			Help:      "Duration of plan generation stages.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"operation"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "idotplan",
			Name:      "operations_total",
			Help:      "Plan generation stages by outcome.",
		}, []string{"operation", "status"}),
		reactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "idotplan",
			Name:      "plan_reactions",
			Help:      "Reactions in the last generated plan.",
		}),
		dispenses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "idotplan",
			Name:      "plan_dispenses",
			Help:      "Dispense operations in the last generated plan.",
		}),
		wellVolume: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "idotplan",
			Name:      "source_well_volume_microliters",
			Help:      "Total volume drawn from each source well.",
		}, []string{"well", "reagent"}),
		wellReactions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "idotplan",
			Name:      "source_well_reactions",
			Help:      "Distinct reactions served by each source well.",
		}, []string{"well", "reagent"}),
	}
	reg.MustRegister(r.durations, r.results, r.reactions, r.dispenses, r.wellVolume, r.wellReactions)
	return r
}

// Registry exposes the underlying registry for gathering.
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// Observe records a service operation outcome.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
	r.results.WithLabelValues(operation, status).Inc()
}

// ObservePlan records the size of a plan and the per-well totals.
func (r *PrometheusRecorder) ObservePlan(_ context.Context, plan Plan) {
	r.reactions.Set(float64(len(plan.Reactions)))
	r.dispenses.Set(float64(len(plan.Dispenses)))
	r.wellVolume.Reset()
	r.wellReactions.Reset()
	for _, s := range plan.Summary {
		r.wellVolume.WithLabelValues(s.SourceWell, s.Reagent).Set(s.TotalVolume)
		r.wellReactions.WithLabelValues(s.SourceWell, s.Reagent).Set(float64(s.ReactionCount))
	}
}

// WriteTextfile writes the registry in the text exposition format, suitable
// for the node exporter textfile collector.
func (r *PrometheusRecorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
