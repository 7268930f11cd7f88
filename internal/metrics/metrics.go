// Package metrics records build performance as Prometheus collectors and
// keeps an in-process snapshot for the CLI summary.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collectors.
type Config struct {
	Namespace string
	Subsystem string
	// Registry receives the collectors. Default: a fresh registry.
	Registry prometheus.Registerer
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TotalBuilds      int64
	SuccessfulBuilds int64
	FailedBuilds     int64
	IslandsBuilt     int64
	IslandsFailed    int64
	AverageDuration  time.Duration
	TotalDuration    time.Duration
}

// Recorder tracks build metrics. A nil *Recorder discards everything.
type Recorder struct {
	hookDuration  *prometheus.HistogramVec
	hookErrors    *prometheus.CounterVec
	islandBuilds  *prometheus.CounterVec
	buildDuration prometheus.Histogram
	routes        prometheus.Gauge

	mu       sync.Mutex
	snapshot Snapshot
}

// New registers the collectors with cfg.Registry.
func New(cfg Config) *Recorder {
	if cfg.Namespace == "" {
		cfg.Namespace = "ssrkit"
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	factory := promauto.With(cfg.Registry)

	return &Recorder{
		hookDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "hook_duration_seconds",
			Help:      "Duration of pipeline hooks in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"plugin", "hook"}),

		hookErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "hook_errors_total",
			Help:      "Total number of failed pipeline hooks",
		}, []string{"plugin", "hook"}),

		islandBuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "island_builds_total",
			Help:      "Total number of island bundles built",
		}, []string{"status"}),

		buildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "build_duration_seconds",
			Help:      "Duration of full builds in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		routes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "routes",
			Help:      "Number of routes in the last compiled table",
		}),
	}
}

// ObserveHook records one hook invocation.
func (r *Recorder) ObserveHook(plugin, hook string, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.hookDuration.WithLabelValues(plugin, hook).Observe(d.Seconds())
	if err != nil {
		r.hookErrors.WithLabelValues(plugin, hook).Inc()
	}
}

// IslandBuilt records the outcome of one island bundle.
func (r *Recorder) IslandBuilt(err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	r.islandBuilds.WithLabelValues(status).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.snapshot.IslandsFailed++
	} else {
		r.snapshot.IslandsBuilt++
	}
}

// RoutesCompiled records the size of a freshly compiled table.
func (r *Recorder) RoutesCompiled(n int) {
	if r == nil {
		return
	}
	r.routes.Set(float64(n))
}

// BuildFinished records one full build.
func (r *Recorder) BuildFinished(d time.Duration, err error) {
	if r == nil {
		return
	}
	r.buildDuration.Observe(d.Seconds())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot.TotalBuilds++
	r.snapshot.TotalDuration += d
	if err != nil {
		r.snapshot.FailedBuilds++
	} else {
		r.snapshot.SuccessfulBuilds++
	}
	r.snapshot.AverageDuration = r.snapshot.TotalDuration / time.Duration(r.snapshot.TotalBuilds)
}

// Snapshot returns a copy of the counters.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}
