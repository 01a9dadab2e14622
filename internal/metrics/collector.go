package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Transition kinds.
const (
	KindInstall   = "install"
	KindUninstall = "uninstall"
)

// =============================================================================
// Collector
// =============================================================================

// Collector holds the pass metrics.
type Collector struct {
	passesTotal   *prometheus.CounterVec
	passDuration  *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
	instantiated  prometheus.Counter
	activePlugins prometheus.Gauge
	lastSuccess   prometheus.Gauge

	logger *zap.Logger
}

// NewCollector registers the metrics on reg. A nil reg uses the default
// registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.passesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Total number of reconciliation passes",
		},
		[]string{"status"},
	)

	c.passDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Reconciliation pass duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	c.transitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Total number of staged lifecycle transitions",
		},
		[]string{"kind"},
	)

	c.instantiated = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugins_instantiated_total",
			Help:      "Total number of plugin classes instantiated",
		},
	)

	c.activePlugins = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_plugins",
			Help:      "Number of plugins in the last active set",
		},
	)

	c.lastSuccess = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful pass",
		},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordPass records a finished pass.
func (c *Collector) RecordPass(status string, duration time.Duration) {
	c.passesTotal.WithLabelValues(status).Inc()
	c.passDuration.WithLabelValues(status).Observe(duration.Seconds())
	if status == "success" {
		c.lastSuccess.SetToCurrentTime()
	}
}

// RecordTransitions records staged install and uninstall actions.
func (c *Collector) RecordTransitions(installed, uninstalled int) {
	c.transitions.WithLabelValues(KindInstall).Add(float64(installed))
	c.transitions.WithLabelValues(KindUninstall).Add(float64(uninstalled))
}

// RecordActivation records the active set size and new instantiations.
func (c *Collector) RecordActivation(active, instantiated int) {
	c.activePlugins.Set(float64(active))
	c.instantiated.Add(float64(instantiated))
}
