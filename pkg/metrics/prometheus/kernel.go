// Package prometheus provides Prometheus-backed implementations of the
// interfaces declared in pkg/metrics.
package prometheus

import (
	"errors"
	"time"

	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// kernelMetrics is the Prometheus implementation of metrics.KernelMetrics.
type kernelMetrics struct {
	syscallsTotal    *prometheus.CounterVec
	syscallDuration  *prometheus.HistogramVec
	syscallsInFlight *prometheus.GaugeVec
	bytesTransferred *prometheus.CounterVec
	openFiles        prometheus.Gauge
	processes        prometheus.Gauge
}

// NewKernelMetrics creates a new Prometheus-backed KernelMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewKernelMetrics() metrics.KernelMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopKernelMetrics()
	}

	reg := metrics.GetRegistry()

	return &kernelMetrics{
		syscallsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittofd_syscalls_total",
				Help: "Total number of descriptor syscalls by name, status and errno",
			},
			[]string{"syscall", "status", "errno"},
		),
		syscallDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittofd_syscall_duration_seconds",
				Help: "Duration of descriptor syscalls in seconds",
				Buckets: []float64{
					0.00001, // 10us
					0.0001,  // 100us
					0.001,   // 1ms
					0.01,    // 10ms
					0.1,     // 100ms
					1.0,     // 1s
				},
			},
			[]string{"syscall"},
		),
		syscallsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittofd_syscalls_in_flight",
				Help: "Current number of descriptor syscalls being served",
			},
			[]string{"syscall"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittofd_bytes_transferred_total",
				Help: "Total bytes moved by read and write",
			},
			[]string{"direction"},
		),
		openFiles: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittofd_open_files",
				Help: "Occupied slots in the global open-file table",
			},
		),
		processes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittofd_processes",
				Help: "Current number of live processes",
			},
		),
	}
}

func (m *kernelMetrics) RecordSyscall(name string, duration time.Duration, err error) {
	status := "success"
	code := ""
	if err != nil {
		status = "error"
		var e errno.Errno
		if errors.As(err, &e) {
			code = e.Symbol()
		} else {
			code = errno.EIO.Symbol()
		}
	}

	m.syscallsTotal.WithLabelValues(name, status, code).Inc()
	m.syscallDuration.WithLabelValues(name).Observe(duration.Seconds())
}

func (m *kernelMetrics) RecordSyscallStart(name string) {
	m.syscallsInFlight.WithLabelValues(name).Inc()
}

func (m *kernelMetrics) RecordSyscallEnd(name string) {
	m.syscallsInFlight.WithLabelValues(name).Dec()
}

func (m *kernelMetrics) RecordBytesTransferred(direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *kernelMetrics) SetOpenFiles(count int) {
	m.openFiles.Set(float64(count))
}

func (m *kernelMetrics) SetProcesses(count int) {
	m.processes.Set(float64(count))
}
