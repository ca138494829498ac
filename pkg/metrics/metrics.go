// Package metrics provides optional Prometheus instrumentation. When the
// registry is never initialized every constructor returns a no-op, so
// instrumented code needs no conditionals.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/DudLab/gridstore/pkg/reclaim"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
)

// InitRegistry enables metrics collection. Call once at startup, before
// constructing observers.
func InitRegistry() {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return registry != nil
}

// GetRegistry returns the registry for exposition, or nil when disabled.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}

// NewReclaimObserver returns an executor observer that counts task
// outcomes and measures task durations. Returns nil when metrics are
// disabled; the executor treats a nil observer as absent.
func NewReclaimObserver() func(reclaim.Event) {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	tasks := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridstore_reclaim_tasks_total",
			Help: "Total number of executed reclaim tasks",
		},
		[]string{"kind", "status"},
	)
	duration := promauto.With(reg).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gridstore_reclaim_task_duration_seconds",
			Help:    "Duration of reclaim task execution in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	return func(ev reclaim.Event) {
		status := "ok"
		if ev.Err != nil {
			status = "error"
		}
		tasks.WithLabelValues(ev.Kind.String(), status).Inc()
		duration.Observe(ev.End.Sub(ev.Start).Seconds())
	}
}
