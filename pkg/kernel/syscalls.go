package kernel

import (
	"context"
	"time"

	"github.com/marmos91/dittofd/internal/logger"
	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/openfile"
	"github.com/marmos91/dittofd/pkg/usermem"
	"github.com/marmos91/dittofd/pkg/vnode"
)

// begin marks a syscall in flight and returns its start time.
func (p *Process) begin(name string) time.Time {
	p.k.metrics.RecordSyscallStart(name)
	return time.Now()
}

// end records the outcome of a syscall started with begin.
func (p *Process) end(name string, start time.Time, err error) {
	p.k.metrics.RecordSyscallEnd(name)
	p.k.metrics.RecordSyscall(name, time.Since(start), err)
}

// unwind drops a reference an aborted syscall was holding. A vnode close
// failure here has no caller to report to, so it is logged.
func (p *Process) unwind(ctx context.Context, op string, tk openfile.Ticket) {
	if err := p.k.table.Drop(ctx, tk); err != nil {
		logger.Warn("%s: unwind close failed: pid=%d ticket=%s error=%v", op, p.pid, tk, err)
	}
	p.k.metrics.SetOpenFiles(p.k.table.InUse())
}

// Open copies the NUL-terminated path at pathAddr from the process's memory
// and opens it. See OpenPath for the semantics.
func (p *Process) Open(ctx context.Context, pathAddr usermem.Addr, flags int, mode uint32) (int, error) {
	path, err := usermem.CopyStringIn(ctx, p.mem, pathAddr, p.k.pathMax)
	if err != nil {
		logger.Debug("OPEN: path copy failed: pid=%d addr=%#x error=%v", p.pid, uint64(pathAddr), err)
		p.k.metrics.RecordSyscall("open", 0, err)
		return -1, err
	}
	return p.OpenPath(ctx, path, flags, mode)
}

// OpenPath opens path and binds the lowest free descriptor to a new
// open-file record with offset 0 and one reference.
//
// Errors:
//   - EINVAL: flags carry no valid access mode
//   - EBADF: the process has exited, including an exit that lands while
//     the vnode open is in flight
//   - EMFILE: the descriptor table is full (nothing else is touched)
//   - vnode open failure: returned verbatim
//   - ENFILE: the open-file table is full
//
// Every failure leaves the descriptor table, the open-file table and the
// vnode exactly as they were.
func (p *Process) OpenPath(ctx context.Context, path string, flags int, mode uint32) (fd int, err error) {
	start := p.begin("open")
	defer func() { p.end("open", start, err) }()

	// ========================================================================
	// Step 1: Validate the access mode
	// ========================================================================

	if _, err := vnode.AccessModeOf(flags); err != nil {
		return -1, err
	}

	// ========================================================================
	// Step 2: Reserve a descriptor
	// ========================================================================

	fd, err = p.fds.Reserve()
	if err != nil {
		logger.Debug("OPEN: no descriptor: pid=%d path=%s error=%v", p.pid, path, err)
		return -1, err
	}

	// ========================================================================
	// Step 3: Open the vnode (may block; no table lock held)
	// ========================================================================

	vn, err := p.k.fs.Open(ctx, path, flags, mode)
	if err != nil {
		p.fds.Unreserve(fd)
		logger.Debug("OPEN: vnode open failed: pid=%d path=%s error=%v", p.pid, path, err)
		return -1, err
	}

	// ========================================================================
	// Step 4: Create the open-file record
	// ========================================================================

	tk, err := p.k.table.Open(vn, flags)
	if err != nil {
		if closeErr := vn.Close(ctx); closeErr != nil {
			logger.Warn("OPEN: unwind close failed: pid=%d path=%s error=%v", p.pid, path, closeErr)
		}
		p.fds.Unreserve(fd)
		logger.Debug("OPEN: open-file table full: pid=%d path=%s", p.pid, path)
		return -1, err
	}

	// ========================================================================
	// Step 5: Commit the descriptor
	// ========================================================================

	if err := p.fds.Install(fd, tk); err != nil {
		logger.Debug("OPEN: descriptor table closed: pid=%d fd=%d error=%v", p.pid, fd, err)
		p.unwind(ctx, "OPEN", tk)
		return -1, errno.EBADF
	}

	p.k.metrics.SetOpenFiles(p.k.table.InUse())
	logger.Debug("OPEN: pid=%d path=%s flags=%#x fd=%d ticket=%s", p.pid, path, flags, fd, tk)
	return fd, nil
}

// Close unbinds fd and drops its reference; the last reference closes the
// vnode, and a failure of that close is returned. The descriptor is unbound
// whatever the outcome.
func (p *Process) Close(ctx context.Context, fd int) (err error) {
	start := p.begin("close")
	defer func() { p.end("close", start, err) }()

	tk, err := p.fds.Remove(fd)
	if err != nil {
		return err
	}

	err = p.k.table.Drop(ctx, tk)
	p.k.metrics.SetOpenFiles(p.k.table.InUse())
	if err != nil {
		logger.Warn("CLOSE: vnode close failed: pid=%d fd=%d error=%v", p.pid, fd, err)
		return err
	}

	logger.Debug("CLOSE: pid=%d fd=%d", p.pid, fd)
	return nil
}

// Read reads up to len(buf) bytes at fd's shared cursor.
//
// Errors:
//   - EBADF: fd unbound or opened write-only
//   - vnode failure: returned verbatim
func (p *Process) Read(ctx context.Context, fd int, buf []byte) (n int, err error) {
	start := p.begin("read")
	defer func() {
		p.end("read", start, err)
		if n > 0 {
			p.k.metrics.RecordBytesTransferred("read", int64(n))
		}
	}()

	tk, err := p.fds.Get(fd)
	if err != nil {
		return 0, err
	}
	f, err := p.k.table.Get(tk)
	if err != nil {
		return 0, err
	}

	n, err = f.Read(ctx, buf)
	logger.Debug("READ: pid=%d fd=%d count=%d n=%d error=%v", p.pid, fd, len(buf), n, err)
	return n, err
}

// Write writes buf at fd's shared cursor.
//
// Errors:
//   - EBADF: fd unbound or opened read-only
//   - vnode failure: returned verbatim
func (p *Process) Write(ctx context.Context, fd int, buf []byte) (n int, err error) {
	start := p.begin("write")
	defer func() {
		p.end("write", start, err)
		if n > 0 {
			p.k.metrics.RecordBytesTransferred("write", int64(n))
		}
	}()

	tk, err := p.fds.Get(fd)
	if err != nil {
		return 0, err
	}
	f, err := p.k.table.Get(tk)
	if err != nil {
		return 0, err
	}

	n, err = f.Write(ctx, buf)
	logger.Debug("WRITE: pid=%d fd=%d count=%d n=%d error=%v", p.pid, fd, len(buf), n, err)
	return n, err
}

// Lseek repositions fd's shared cursor and returns the new offset.
//
// Errors:
//   - EBADF: fd unbound
//   - ESPIPE: the object is not seekable
//   - EINVAL: unknown whence, or the result would be negative
func (p *Process) Lseek(ctx context.Context, fd int, offset int64, whence int) (pos int64, err error) {
	start := p.begin("lseek")
	defer func() { p.end("lseek", start, err) }()

	tk, err := p.fds.Get(fd)
	if err != nil {
		return -1, err
	}
	f, err := p.k.table.Get(tk)
	if err != nil {
		return -1, err
	}

	pos, err = f.Seek(ctx, offset, whence)
	if err != nil {
		logger.Debug("LSEEK: pid=%d fd=%d offset=%d whence=%d error=%v", p.pid, fd, offset, whence, err)
		return -1, err
	}
	logger.Debug("LSEEK: pid=%d fd=%d offset=%d whence=%d pos=%d", p.pid, fd, offset, whence, pos)
	return pos, nil
}

// Dup2 makes newfd refer to the same open file as oldfd, closing whatever
// newfd referred to first. Dup2(fd, fd) validates fd and returns it.
//
// Errors:
//   - EBADF: either descriptor out of range, oldfd unbound, or the
//     process has exited
//   - EBUSY: newfd is reserved by an open in flight
//   - implicit close failure: returned, newfd left unbound
func (p *Process) Dup2(ctx context.Context, oldfd, newfd int) (fd int, err error) {
	start := p.begin("dup2")
	defer func() { p.end("dup2", start, err) }()

	// ========================================================================
	// Step 1: Validate both descriptors
	// ========================================================================

	if !p.fds.InRange(newfd) {
		return -1, errno.EBADF
	}
	oldTk, err := p.fds.Get(oldfd)
	if err != nil {
		return -1, err
	}
	if oldfd == newfd {
		return newfd, nil
	}

	// ========================================================================
	// Step 2: Take the new reference before touching newfd
	// ========================================================================

	tk, err := p.k.table.Dup(oldTk)
	if err != nil {
		return -1, err
	}

	// ========================================================================
	// Step 3: Claim newfd and close its previous occupant
	// ========================================================================

	prev, hadPrev, err := p.fds.ReserveAt(newfd)
	if err != nil {
		p.unwind(ctx, "DUP2", tk)
		return -1, err
	}

	if hadPrev {
		if err := p.k.table.Drop(ctx, prev); err != nil {
			p.fds.Unreserve(newfd)
			p.unwind(ctx, "DUP2", tk)
			logger.Warn("DUP2: implicit close failed: pid=%d newfd=%d error=%v", p.pid, newfd, err)
			return -1, err
		}
	}

	// ========================================================================
	// Step 4: Bind newfd
	// ========================================================================

	if err := p.fds.Install(newfd, tk); err != nil {
		logger.Debug("DUP2: descriptor table closed: pid=%d newfd=%d error=%v", p.pid, newfd, err)
		p.unwind(ctx, "DUP2", tk)
		return -1, errno.EBADF
	}

	p.k.metrics.SetOpenFiles(p.k.table.InUse())
	logger.Debug("DUP2: pid=%d oldfd=%d newfd=%d ticket=%s", p.pid, oldfd, newfd, tk)
	return newfd, nil
}
