// Package metrics exports Prometheus metrics for weft sessions.
//
// A nil *Collector is valid and records nothing, so packages can take one
// unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/weft/pkg/diag"
	"github.com/vango-dev/weft/pkg/tree"
)

// Config configures a Collector.
type Config struct {
	// Namespace is the metrics namespace (default: "weft").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for durations.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures a Collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "weft",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Pass phases.
const (
	PhaseReconcile = "reconcile"
	PhaseLayout    = "layout"
)

// Navigation outcomes.
const (
	NavigationCommitted  = "committed"
	NavigationFailed     = "failed"
	NavigationSuperseded = "superseded"
)

// Collector records session metrics.
type Collector struct {
	activeSessions prometheus.Gauge
	sessionsTotal  prometheus.Counter
	passDuration   *prometheus.HistogramVec
	handlerTime    *prometheus.HistogramVec
	failures       *prometheus.CounterVec
	navigations    *prometheus.CounterVec
	batches        prometheus.Counter
	messages       prometheus.Counter
}

// New registers the session metrics and returns their collector.
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Collector{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of open sessions",
			ConstLabels: config.ConstLabels,
		}),

		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "sessions_total",
			Help:        "Total number of sessions opened",
			ConstLabels: config.ConstLabels,
		}),

		passDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "pass_duration_seconds",
			Help:        "Duration of reconciliation and layout passes in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"phase"}),

		handlerTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "handler_duration_seconds",
			Help:        "Handler run time in seconds, including suspensions",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"event", "status"}),

		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "failures_total",
			Help:        "Total number of failures reported to the diagnostics sink",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		navigations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "navigations_total",
			Help:        "Total number of navigations by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"outcome"}),

		batches: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "batches_sent_total",
			Help:        "Total number of update batches sent to renderers",
			ConstLabels: config.ConstLabels,
		}),

		messages: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "messages_sent_total",
			Help:        "Total number of messages sent to renderers",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// SessionOpened records a new session.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.activeSessions.Inc()
	c.sessionsTotal.Inc()
}

// SessionClosed records a session teardown.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.activeSessions.Dec()
}

// ObservePass records the duration of one reconcile or layout pass.
func (c *Collector) ObservePass(phase string, d time.Duration) {
	if c == nil {
		return
	}
	c.passDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// ObserveHandler records one handler invocation. It matches the scheduler's
// Observe hook.
func (c *Collector) ObserveHandler(ev tree.Event, d time.Duration, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.handlerTime.WithLabelValues(ev.String(), status).Observe(d.Seconds())
}

// Report counts a diagnostics failure. Collector is a diag.Sink.
func (c *Collector) Report(f diag.Failure) {
	if c == nil {
		return
	}
	c.failures.WithLabelValues(string(f.Kind)).Inc()
}

// Navigation records a navigation outcome.
func (c *Collector) Navigation(outcome string) {
	if c == nil {
		return
	}
	c.navigations.WithLabelValues(outcome).Inc()
}

// BatchSent records one batch of n messages.
func (c *Collector) BatchSent(n int) {
	if c == nil {
		return
	}
	c.batches.Inc()
	c.messages.Add(float64(n))
}
