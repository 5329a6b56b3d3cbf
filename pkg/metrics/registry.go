// Package metrics declares the observation interfaces used by the kernel and
// the storage backends, plus the process-wide Prometheus registry and the
// HTTP server exposing it.
//
// Collection is opt-in. Until InitRegistry runs, every constructor in
// pkg/metrics/prometheus hands back the noop implementation, so the kernel
// pays one interface call per observation and nothing else.
//
//	metrics.InitRegistry()
//	k, _ := kernel.New(table, root, kernel.Options{
//		Metrics: prometheus.NewKernelMetrics(),
//	})
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is written once by InitRegistry and read afterwards
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the global registry with the Go runtime and process
// collectors already registered. Later calls are no-ops.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry returns the global registry, or nil while metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has run.
func IsEnabled() bool {
	return GetRegistry() != nil
}
