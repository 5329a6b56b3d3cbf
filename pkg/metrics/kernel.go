package metrics

import "time"

// KernelMetrics provides observability for descriptor syscalls and the
// global open-file table.
//
// Implementations are optional - if not provided to the kernel, a no-op
// implementation is used with zero overhead.
type KernelMetrics interface {
	// RecordSyscall records a completed syscall with its outcome.
	//
	// Parameters:
	//   - name: Syscall name ("open", "close", "read", "write", "lseek", "dup2")
	//   - duration: Time taken to serve the call
	//   - err: Error returned to the caller, nil on success
	RecordSyscall(name string, duration time.Duration, err error)

	// RecordSyscallStart increments the in-flight counter for name.
	RecordSyscallStart(name string)

	// RecordSyscallEnd decrements the in-flight counter for name.
	RecordSyscallEnd(name string)

	// RecordBytesTransferred records bytes moved by read or write.
	//
	// Parameters:
	//   - direction: "read" or "write"
	//   - bytes: Number of bytes transferred
	RecordBytesTransferred(direction string, bytes int64)

	// SetOpenFiles updates the number of occupied open-file table slots.
	SetOpenFiles(count int)

	// SetProcesses updates the number of live processes.
	SetProcesses(count int)
}

// NewNoopKernelMetrics returns a KernelMetrics that discards everything.
func NewNoopKernelMetrics() KernelMetrics {
	return noopKernelMetrics{}
}

type noopKernelMetrics struct{}

func (noopKernelMetrics) RecordSyscall(name string, duration time.Duration, err error) {}
func (noopKernelMetrics) RecordSyscallStart(name string)                                {}
func (noopKernelMetrics) RecordSyscallEnd(name string)                                  {}
func (noopKernelMetrics) RecordBytesTransferred(direction string, bytes int64)          {}
func (noopKernelMetrics) SetOpenFiles(count int)                                        {}
func (noopKernelMetrics) SetProcesses(count int)                                        {}
