// Package kernel implements the descriptor syscalls of a process-oriented
// kernel: open, close, read, write, lseek and dup2, plus the process
// lifecycle operations that create, fork and tear down descriptor tables.
//
// Architecture:
//
//	Process.Read(fd)
//	    -> fdtable.FDTable.Get(fd)        per-process, locked briefly
//	    -> openfile.Table.Get(ticket)     global, locked briefly
//	    -> openfile.File.Read             record locked for the transfer
//	    -> vnode.Vnode.Read(offset)
//
// Every kernel-detected failure is returned as a bare errno.Errno value;
// failures produced by the vnode layer are returned unchanged.
package kernel

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/dittofd/internal/logger"
	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/fdtable"
	"github.com/marmos91/dittofd/pkg/metrics"
	"github.com/marmos91/dittofd/pkg/openfile"
	"github.com/marmos91/dittofd/pkg/usermem"
	"github.com/marmos91/dittofd/pkg/vnode"
	"github.com/marmos91/dittofd/pkg/vnode/device"
)

// DefaultPathMax is the default bound on path arguments, NUL included.
const DefaultPathMax = 1024

// Options configures a Kernel.
type Options struct {
	// OpenMax is the capacity of each process's descriptor table.
	// Zero means the capacity of the open-file table, which is also the
	// upper bound.
	OpenMax int

	// PathMax bounds path arguments copied from user memory (0 = DefaultPathMax).
	PathMax int

	// Console binds descriptors 0, 1 and 2 of every new process to the
	// console device. The filesystem must resolve device.ConsoleName.
	Console bool

	// Metrics receives syscall observations (nil = no-op).
	Metrics metrics.KernelMetrics
}

// Kernel owns the global open-file table and the set of live processes.
type Kernel struct {
	table   *openfile.Table
	fs      vnode.FileSystem
	openMax int
	pathMax int
	console bool
	metrics metrics.KernelMetrics

	mu      sync.Mutex
	nextPID int
	procs   map[int]*Process
}

// New creates a kernel serving paths from fs and recording open files in
// table.
func New(table *openfile.Table, fs vnode.FileSystem, opts Options) (*Kernel, error) {
	if table == nil {
		return nil, fmt.Errorf("open-file table is required")
	}
	if fs == nil {
		return nil, fmt.Errorf("filesystem is required")
	}

	openMax := opts.OpenMax
	if openMax == 0 {
		openMax = table.Capacity()
	}
	if openMax < 0 {
		return nil, fmt.Errorf("open_max must be positive, got %d", openMax)
	}
	if openMax > table.Capacity() {
		return nil, fmt.Errorf("open_max %d exceeds open-file table capacity %d", openMax, table.Capacity())
	}

	pathMax := opts.PathMax
	if pathMax == 0 {
		pathMax = DefaultPathMax
	}
	if pathMax < 0 {
		return nil, fmt.Errorf("path_max must be positive, got %d", pathMax)
	}

	m := opts.Metrics
	if m == nil {
		m = metrics.NewNoopKernelMetrics()
	}

	return &Kernel{
		table:   table,
		fs:      fs,
		openMax: openMax,
		pathMax: pathMax,
		console: opts.Console,
		metrics: m,
		nextPID: 1,
		procs:   make(map[int]*Process),
	}, nil
}

// Table returns the global open-file table.
func (k *Kernel) Table() *openfile.Table { return k.table }

// Processes returns the number of live processes.
func (k *Kernel) Processes() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.procs)
}

// Process returns the live process with the given pid.
func (k *Kernel) Process(pid int) (*Process, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.procs[pid]
	return p, ok
}

// NewProcess creates a process with an empty descriptor table whose
// pointer arguments are resolved in mem. With the console enabled,
// descriptors 0, 1 and 2 are bound to it read-only, write-only and
// write-only, so the first user open returns 3.
func (k *Kernel) NewProcess(ctx context.Context, mem usermem.IO) (*Process, error) {
	p, err := k.spawn(mem)
	if err != nil {
		return nil, err
	}

	if k.console {
		for _, flags := range []int{vnode.O_RDONLY, vnode.O_WRONLY, vnode.O_WRONLY} {
			if _, err := p.OpenPath(ctx, device.ConsoleName, flags, 0); err != nil {
				logger.Warn("NEWPROCESS: console setup failed: pid=%d error=%v", p.pid, err)
				_ = p.Exit(ctx)
				return nil, fmt.Errorf("bind console: %w", err)
			}
		}
	}

	logger.Debug("NEWPROCESS: pid=%d descriptors=%v", p.pid, p.Descriptors())
	return p, nil
}

// spawn registers a process with an empty descriptor table.
func (k *Kernel) spawn(mem usermem.IO) (*Process, error) {
	if mem == nil {
		mem = usermem.NewBytesIO(0)
	}

	fds, err := fdtable.New(k.openMax)
	if err != nil {
		return nil, err
	}

	k.mu.Lock()
	pid := k.nextPID
	k.nextPID++
	p := &Process{k: k, pid: pid, mem: mem, fds: fds}
	k.procs[pid] = p
	count := len(k.procs)
	k.mu.Unlock()

	k.metrics.SetProcesses(count)
	return p, nil
}

func (k *Kernel) reap(pid int) {
	k.mu.Lock()
	delete(k.procs, pid)
	count := len(k.procs)
	k.mu.Unlock()

	k.metrics.SetProcesses(count)
}

// Shutdown exits every live process.
func (k *Kernel) Shutdown(ctx context.Context) error {
	k.mu.Lock()
	procs := make([]*Process, 0, len(k.procs))
	for _, p := range k.procs {
		procs = append(procs, p)
	}
	k.mu.Unlock()

	var first error
	for _, p := range procs {
		if err := p.Exit(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// errProcessExited is returned by Fork on a process that already exited.
var errProcessExited = fmt.Errorf("process has exited: %w", errno.EINVAL)
