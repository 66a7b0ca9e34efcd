// Package metrics exposes reload activity as Prometheus collectors and
// serves them next to liveness and readiness endpoints.
//
// Collectors are fed from the event bus, so the reload controller never
// depends on this package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Iron-Ham/hotswap/internal/event"
	"github.com/Iron-Ham/hotswap/internal/logging"
)

const namespace = "hotswap"

// Reload results recorded by reloads_total.
const (
	ResultCompleted  = "completed"
	ResultBuildError = "build_failed"
	ResultLoadError  = "load_failed"
)

// Metrics owns a private registry and the hotswap collectors.
type Metrics struct {
	registry *prometheus.Registry
	logger   *logging.Logger

	reloads        *prometheus.CounterVec
	builds         *prometheus.CounterVec
	buildDuration  prometheus.Histogram
	reloadDuration prometheus.Histogram
	changes        prometheus.Counter
	generation     prometheus.Gauge
	liveGens       prometheus.Gauge
	workerRunning  prometheus.Gauge
	residentBytes  prometheus.Gauge

	// rss samples the resident set size of this process.
	rss func() (uint64, error)
}

// New creates the collectors and registers them, plus the Go runtime and
// process collectors, on a fresh registry.
func New(logger *logging.Logger) *Metrics {
	if logger == nil {
		logger = logging.NopLogger()
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logger:   logger.WithComponent("metrics"),
		rss:      residentBytes,

		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reloads_total",
			Help:      "Reload cycles by result.",
		}, []string{"result"}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Build command runs by result.",
		}, []string{"result"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Wall time of the build command.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		reloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reload_duration_seconds",
			Help:      "Time from picking up a change to the new worker starting.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		changes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_detected_total",
			Help:      "Fingerprint changes observed by the detector.",
		}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generation",
			Help:      "ID of the generation the worker runs.",
		}),
		liveGens: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_generations",
			Help:      "Generations loaded and not yet closed.",
		}),
		workerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_running",
			Help:      "1 while a worker is inside HotMain.",
		}),
		residentBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_resident_bytes",
			Help:      "Resident set size sampled after each generation starts. Plugins are never unmapped, so this grows with every reload.",
		}),
	}

	for _, r := range []string{ResultCompleted, ResultBuildError, ResultLoadError} {
		m.reloads.WithLabelValues(r)
	}
	m.builds.WithLabelValues("ok")
	m.builds.WithLabelValues("failed")

	m.registry.MustRegister(
		m.reloads,
		m.builds,
		m.buildDuration,
		m.reloadDuration,
		m.changes,
		m.generation,
		m.liveGens,
		m.workerRunning,
		m.residentBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Subscribe feeds the collectors from bus and returns the subscription ID.
func (m *Metrics) Subscribe(bus *event.Bus) string {
	return bus.SubscribeAll(m.Observe)
}

// Observe updates the collectors for one event.
func (m *Metrics) Observe(e event.Event) {
	switch e := e.(type) {
	case event.ChangeDetectedEvent:
		m.changes.Inc()
	case event.BuildFinishedEvent:
		m.buildDuration.Observe(e.Duration.Seconds())
		if e.Succeeded() {
			m.builds.WithLabelValues("ok").Inc()
		} else {
			m.builds.WithLabelValues("failed").Inc()
		}
	case event.ReloadAbortedEvent:
		if e.Stage == "load" {
			m.reloads.WithLabelValues(ResultLoadError).Inc()
		} else {
			m.reloads.WithLabelValues(ResultBuildError).Inc()
		}
	case event.ReloadCompletedEvent:
		m.reloads.WithLabelValues(ResultCompleted).Inc()
		m.reloadDuration.Observe(e.Duration.Seconds())
	case event.GenerationLoadedEvent:
		m.liveGens.Inc()
	case event.GenerationClosedEvent:
		m.liveGens.Dec()
	case event.WorkerStartedEvent:
		m.generation.Set(float64(e.Generation))
		m.workerRunning.Set(1)
		m.sampleRSS()
	case event.WorkerExitedEvent:
		m.workerRunning.Set(0)
	}
}

func (m *Metrics) sampleRSS() {
	rss, err := m.rss()
	if err != nil {
		m.logger.Debug("failed to sample resident set size", "error", err.Error())
		return
	}
	m.residentBytes.Set(float64(rss))
}
