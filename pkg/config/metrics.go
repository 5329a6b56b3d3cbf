package config

import (
	"github.com/marmos91/dittofd/pkg/metrics"
	promMetrics "github.com/marmos91/dittofd/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Kernel observes syscalls and table occupancy (never nil, noop if disabled)
	Kernel metrics.KernelMetrics

	// S3 observes S3 backend calls (never nil, noop if disabled)
	S3 metrics.S3Metrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Binds the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
func InitializeMetrics(cfg *Config) (*MetricsResult, error) {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			Kernel: metrics.NewNoopKernelMetrics(),
			S3:     metrics.NewNoopS3Metrics(),
		}, nil
	}

	metrics.InitRegistry()

	server, err := metrics.NewServer(metrics.ServerConfig{Listen: cfg.Metrics.Listen})
	if err != nil {
		return nil, err
	}

	return &MetricsResult{
		Server: server,
		Kernel: promMetrics.NewKernelMetrics(),
		S3:     promMetrics.NewS3Metrics(),
	}, nil
}
