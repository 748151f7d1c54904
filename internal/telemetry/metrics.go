package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AnatoleLucet/rewind/internal"
)

const namespace = "rewind"

// Metrics are the prometheus collectors of one core. Every collector carries
// a constant "core" label so several cores can share a registry.
type Metrics struct {
	Propagations  prometheus.Counter
	Recomputes    prometheus.Counter
	EffectRuns    prometheus.Counter
	ThunkErrors   *prometheus.CounterVec
	FlushDuration prometheus.Histogram
	Captures      *prometheus.CounterVec
	Rewinds       *prometheus.CounterVec
	Truncated     prometheus.Counter
	Versions      prometheus.Gauge
	Nodes         *prometheus.GaugeVec
}

// NewMetrics registers the collectors on reg. A nil reg gets a private
// registry, so tests and embedded cores do not clash on the default one.
func NewMetrics(reg prometheus.Registerer, core string) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	labels := prometheus.Labels{"core": core}

	return &Metrics{
		Propagations: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "propagations_total",
			Help:        "Batches propagated through the reactive graph.",
			ConstLabels: labels,
		}),
		Recomputes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "recomputes_total",
			Help:        "Computed nodes re-evaluated during propagation.",
			ConstLabels: labels,
		}),
		EffectRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "effect_runs_total",
			Help:        "Effect bodies run during propagation.",
			ConstLabels: labels,
		}),
		ThunkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "thunk_errors_total",
			Help:        "Computed and effect bodies that failed.",
			ConstLabels: labels,
		}, []string{"node_kind"}),
		FlushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "propagation_duration_seconds",
			Help:        "Time spent propagating one batch.",
			Buckets:     prometheus.ExponentialBuckets(0.00001, 4, 10),
			ConstLabels: labels,
		}),
		Captures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "captures_total",
			Help:        "Versions captured, by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		Rewinds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "rewinds_total",
			Help:        "History moves, by target and outcome.",
			ConstLabels: labels,
		}, []string{"target", "outcome"}),
		Truncated: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "truncated_versions_total",
			Help:        "Versions dropped because the live state diverged after a rewind.",
			ConstLabels: labels,
		}),
		Versions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "retained_versions",
			Help:        "Versions currently kept in history.",
			ConstLabels: labels,
		}),
		Nodes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "nodes",
			Help:        "Live reactive nodes, by kind.",
			ConstLabels: labels,
		}, []string{"node_kind"}),
	}
}

func (m *Metrics) ObserveFlush(stats internal.FlushStats) {
	m.Propagations.Inc()
	m.Recomputes.Add(float64(stats.Recomputed))
	m.EffectRuns.Add(float64(stats.EffectsRun))
	m.FlushDuration.Observe(stats.Duration.Seconds())
}

func (m *Metrics) ObserveNodes(stats internal.Stats) {
	m.Nodes.WithLabelValues(internal.KindCell.String()).Set(float64(stats.Cells))
	m.Nodes.WithLabelValues(internal.KindComputed.String()).Set(float64(stats.Computeds))
	m.Nodes.WithLabelValues(internal.KindEffect.String()).Set(float64(stats.Effects))
}
