// Package device implements character devices exposed as vnodes.
//
// Devices ignore offsets and report IsSeekable() == false, so lseek on a
// descriptor bound to one fails with ESPIPE.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/vnode"
)

// ConsoleName is the device path the console is mounted under.
const ConsoleName = "con:"

// Console is a terminal-like device over an input stream and an output
// stream. Every Open returns a new vnode sharing the same streams.
type Console struct {
	in  io.Reader
	out io.Writer

	// inMu and outMu serialize whole transfers so concurrent writers never
	// interleave within one call.
	inMu  sync.Mutex
	outMu sync.Mutex

	created time.Time
}

// NewConsole creates a console reading from in and writing to out. Either
// may be nil: reads from a nil input report end of file, writes to a nil
// output are discarded.
func NewConsole(in io.Reader, out io.Writer) *Console {
	if in == nil {
		in = eofReader{}
	}
	if out == nil {
		out = io.Discard
	}
	return &Console{in: in, out: out, created: time.Now()}
}

// Open implements vnode.FileSystem. The path is ignored; the console has a
// single object. Creation flags are accepted and have no effect.
func (c *Console) Open(ctx context.Context, path string, flags int, mode uint32) (vnode.Vnode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := vnode.AccessModeOf(flags); err != nil {
		return nil, err
	}
	if flags&vnode.O_EXCL != 0 {
		return nil, fmt.Errorf("open %s: %w", ConsoleName, errno.EEXIST)
	}
	return &consoleVnode{console: c}, nil
}

type consoleVnode struct {
	console *Console
}

// Read implements vnode.Vnode. The offset is ignored.
func (v *consoleVnode) Read(ctx context.Context, _ int64, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}

	v.console.inMu.Lock()
	defer v.console.inMu.Unlock()

	n, err := v.console.in.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("read %s: %w", ConsoleName, errors.Join(errno.EIO, err))
	}
	return n, nil
}

// Write implements vnode.Vnode. The offset is ignored.
func (v *consoleVnode) Write(ctx context.Context, _ int64, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	v.console.outMu.Lock()
	defer v.console.outMu.Unlock()

	n, err := v.console.out.Write(buf)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", ConsoleName, errors.Join(errno.EIO, err))
	}
	return n, nil
}

// Stat implements vnode.Vnode.
func (v *consoleVnode) Stat(ctx context.Context) (vnode.Stat, error) {
	if err := ctx.Err(); err != nil {
		return vnode.Stat{}, err
	}
	return vnode.Stat{Size: 0, Mode: 0o666, Mtime: v.console.created}, nil
}

// IsSeekable implements vnode.Vnode.
func (v *consoleVnode) IsSeekable() bool { return false }

// Close implements vnode.Vnode. The underlying streams stay open.
func (v *consoleVnode) Close(ctx context.Context) error { return nil }

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
