package kernel

import (
	"context"
	"sync"

	"github.com/marmos91/dittofd/internal/logger"
	"github.com/marmos91/dittofd/pkg/fdtable"
	"github.com/marmos91/dittofd/pkg/usermem"
)

// Process is a descriptor-table owner. Its methods may be called from any
// number of goroutines ("threads") concurrently.
type Process struct {
	k   *Kernel
	pid int
	mem usermem.IO
	fds *fdtable.FDTable

	exitMu sync.Mutex
	exited bool
}

// PID returns the process identifier.
func (p *Process) PID() int { return p.pid }

// Memory returns the address space pointer arguments are resolved in.
func (p *Process) Memory() usermem.IO { return p.mem }

// Descriptors returns the bound descriptor numbers, ascending.
func (p *Process) Descriptors() []int { return p.fds.Descriptors() }

// Fork creates a child sharing every open file of p: each bound descriptor
// of the child holds its own reference to the parent's record at the same
// descriptor number. The child shares p's address space.
//
// A descriptor closed concurrently with Fork is either copied or absent in
// the child, never half-copied.
func (p *Process) Fork(ctx context.Context) (child *Process, err error) {
	p.exitMu.Lock()
	exited := p.exited
	p.exitMu.Unlock()
	if exited {
		return nil, errProcessExited
	}

	child, err = p.k.spawn(p.mem)
	if err != nil {
		return nil, err
	}

	for _, e := range p.fds.Entries() {
		tk, err := p.k.table.Dup(e.Ticket)
		if err != nil {
			// Closed after the snapshot.
			continue
		}
		if _, _, err := child.fds.ReserveAt(e.FD); err != nil {
			p.unwind(ctx, "FORK", tk)
			continue
		}
		if err := child.fds.Install(e.FD, tk); err != nil {
			child.fds.Unreserve(e.FD)
			p.unwind(ctx, "FORK", tk)
		}
	}

	p.k.metrics.SetOpenFiles(p.k.table.InUse())
	logger.Debug("FORK: parent=%d child=%d descriptors=%v", p.pid, child.pid, child.Descriptors())
	return child, nil
}

// Exit closes every descriptor and removes the process from the kernel.
// All descriptors are closed even if some closes fail; the first failure is
// returned. Calling Exit again is a no-op.
//
// The descriptor table is closed for good: later syscalls on p fail with
// EBADF, and an open still in flight drops its record instead of binding it.
func (p *Process) Exit(ctx context.Context) error {
	p.exitMu.Lock()
	if p.exited {
		p.exitMu.Unlock()
		return nil
	}
	p.exited = true
	p.exitMu.Unlock()

	var first error
	for _, e := range p.fds.Close() {
		if err := p.k.table.Drop(ctx, e.Ticket); err != nil {
			logger.Warn("EXIT: close failed: pid=%d fd=%d error=%v", p.pid, e.FD, err)
			if first == nil {
				first = err
			}
		}
	}

	p.k.reap(p.pid)
	p.k.metrics.SetOpenFiles(p.k.table.InUse())
	logger.Debug("EXIT: pid=%d", p.pid)
	return first
}
