// Package metrics exposes the Prometheus collectors for the core's
// background subsystems (job queue, node engine, plugin sandbox, rate
// limiter). It is adapted from the teacher's infrastructure/metrics
// package, trimmed to the counters the domain stack actually calls out
// (spec §11's "ambient metrics" row) instead of the teacher's HTTP/
// blockchain/database collectors, which have no equivalent component here.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors every in-scope component reports against.
// All fields are safe for concurrent use; a nil *Metrics is also safe to
// call methods on (every Record/Observe/Set method is a no-op) so callers
// that don't wire metrics in incur no cost and need no nil checks.
type Metrics struct {
	JobsEnqueued   *prometheus.CounterVec
	JobsCompleted  *prometheus.CounterVec
	JobsFailed     *prometheus.CounterVec
	JobsDeadLetter *prometheus.CounterVec
	QueueDepth     *prometheus.GaugeVec

	GraphRunsTotal    *prometheus.CounterVec
	GraphRunDuration  *prometheus.HistogramVec
	GraphRunsActive   prometheus.Gauge

	SandboxInvocations *prometheus.CounterVec
	SandboxFuelUsed    prometheus.Histogram
	SandboxAborts      *prometheus.CounterVec

	RateLimitAllowed *prometheus.CounterVec
	RateLimitLimited *prometheus.CounterVec
}

// New builds a Metrics instance and registers its collectors with
// registerer. Pass prometheus.DefaultRegisterer for the global registry,
// or a prometheus.NewRegistry() in tests to avoid collisions across
// parallel test binaries registering the same collector names twice.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobqueue_enqueued_total",
			Help: "Jobs enqueued, by queue and kind.",
		}, []string{"queue", "kind"}),
		JobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobqueue_completed_total",
			Help: "Jobs that reached the completed state, by queue and kind.",
		}, []string{"queue", "kind"}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobqueue_failed_total",
			Help: "Job failure attempts (retrying or terminal), by queue and kind.",
		}, []string{"queue", "kind"}),
		JobsDeadLetter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobqueue_dead_letter_total",
			Help: "Jobs that exhausted retries and landed in the dead-letter list.",
		}, []string{"queue", "kind"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jobqueue_ready_depth",
			Help: "Ready-list length observed at the last Stats call.",
		}, []string{"queue"}),

		GraphRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nodeengine_runs_total",
			Help: "Graph runs, by terminal status.",
		}, []string{"status"}),
		GraphRunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nodeengine_run_duration_seconds",
			Help:    "Wall-clock duration of a graph run.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
		}, []string{"status"}),
		GraphRunsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nodeengine_runs_active",
			Help: "Graph runs currently executing.",
		}),

		SandboxInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sandbox_invocations_total",
			Help: "Plugin invocations, by limit profile and outcome.",
		}, []string{"profile", "outcome"}),
		SandboxFuelUsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sandbox_fuel_consumed",
			Help:    "Instruction-equivalent fuel consumed per plugin invocation.",
			Buckets: prometheus.ExponentialBuckets(1000, 4, 10),
		}),
		SandboxAborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sandbox_aborts_total",
			Help: "Plugin invocations aborted, by resource limit that tripped.",
		}, []string{"reason"}),

		RateLimitAllowed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_allowed_total",
			Help: "Admission checks that allowed the request, by tenant.",
		}, []string{"tenant"}),
		RateLimitLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_limited_total",
			Help: "Admission checks that rejected the request, by tenant.",
		}, []string{"tenant"}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.JobsEnqueued, m.JobsCompleted, m.JobsFailed, m.JobsDeadLetter, m.QueueDepth,
			m.GraphRunsTotal, m.GraphRunDuration, m.GraphRunsActive,
			m.SandboxInvocations, m.SandboxFuelUsed, m.SandboxAborts,
			m.RateLimitAllowed, m.RateLimitLimited,
		)
	}
	return m
}

func (m *Metrics) ObserveEnqueue(queue, kind string) {
	if m == nil {
		return
	}
	m.JobsEnqueued.WithLabelValues(queue, kind).Inc()
}

func (m *Metrics) ObserveComplete(queue, kind string) {
	if m == nil {
		return
	}
	m.JobsCompleted.WithLabelValues(queue, kind).Inc()
}

func (m *Metrics) ObserveFail(queue, kind string, deadLettered bool) {
	if m == nil {
		return
	}
	m.JobsFailed.WithLabelValues(queue, kind).Inc()
	if deadLettered {
		m.JobsDeadLetter.WithLabelValues(queue, kind).Inc()
	}
}

func (m *Metrics) SetQueueDepth(queue string, depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

func (m *Metrics) ObserveGraphRun(status string, seconds float64) {
	if m == nil {
		return
	}
	m.GraphRunsTotal.WithLabelValues(status).Inc()
	m.GraphRunDuration.WithLabelValues(status).Observe(seconds)
}

func (m *Metrics) IncActiveRuns(delta float64) {
	if m == nil {
		return
	}
	m.GraphRunsActive.Add(delta)
}

func (m *Metrics) ObserveSandboxInvocation(profile, outcome string, fuelUsed uint64) {
	if m == nil {
		return
	}
	m.SandboxInvocations.WithLabelValues(profile, outcome).Inc()
	m.SandboxFuelUsed.Observe(float64(fuelUsed))
}

func (m *Metrics) ObserveSandboxAbort(reason string) {
	if m == nil {
		return
	}
	m.SandboxAborts.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveRateLimit(tenant string, allowed bool) {
	if m == nil {
		return
	}
	if allowed {
		m.RateLimitAllowed.WithLabelValues(tenant).Inc()
		return
	}
	m.RateLimitLimited.WithLabelValues(tenant).Inc()
}

var (
	global   *Metrics
	globalMu sync.Mutex
)

// Init builds and stores the process-wide Metrics instance against the
// default Prometheus registry. Safe to call once at startup; subsequent
// calls return the already-initialized instance.
func Init() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New(prometheus.DefaultRegisterer)
	}
	return global
}

// Global returns the process-wide instance, initializing a no-op-safe one
// against the default registry if Init was never called.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New(prometheus.DefaultRegisterer)
	}
	return global
}
