package kernel

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/dittofd/pkg/openfile"
	"github.com/marmos91/dittofd/pkg/usermem"
	"github.com/marmos91/dittofd/pkg/vfs"
	"github.com/marmos91/dittofd/pkg/vnode"
	"github.com/marmos91/dittofd/pkg/vnode/device"
	"github.com/marmos91/dittofd/pkg/vnode/memory"
	"github.com/stretchr/testify/require"
)

// trackingFS wraps a filesystem, counting vnode opens and closes and
// optionally gating opens or failing closes.
type trackingFS struct {
	inner vnode.FileSystem

	opens  atomic.Int32
	closes atomic.Int32

	mu       sync.Mutex
	gate     chan struct{}
	entered  chan struct{}
	closeErr error
}

func (fs *trackingFS) Open(ctx context.Context, path string, flags int, mode uint32) (vnode.Vnode, error) {
	fs.mu.Lock()
	gate, entered := fs.gate, fs.entered
	fs.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	vn, err := fs.inner.Open(ctx, path, flags, mode)
	if err != nil {
		return nil, err
	}
	fs.opens.Add(1)
	return &trackingVnode{Vnode: vn, fs: fs}, nil
}

// block makes subsequent opens wait until the returned release is called.
// entered receives one value per open that reached the gate.
func (fs *trackingFS) block() (entered <-chan struct{}, release func()) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.gate = make(chan struct{})
	fs.entered = make(chan struct{}, 16)
	gate := fs.gate
	return fs.entered, func() {
		fs.mu.Lock()
		fs.gate = nil
		fs.mu.Unlock()
		close(gate)
	}
}

func (fs *trackingFS) failCloses(err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.closeErr = err
}

// live returns the number of vnodes opened and not yet closed.
func (fs *trackingFS) live() int {
	return int(fs.opens.Load() - fs.closes.Load())
}

type trackingVnode struct {
	vnode.Vnode
	fs *trackingFS
}

func (v *trackingVnode) Close(ctx context.Context) error {
	v.fs.closes.Add(1)
	if err := v.Vnode.Close(ctx); err != nil {
		return err
	}
	v.fs.mu.Lock()
	defer v.fs.mu.Unlock()
	return v.fs.closeErr
}

const consoleInput = "typed at the console\n"

// testEnv is a kernel over an in-memory root with the console mounted.
type testEnv struct {
	kernel  *Kernel
	root    *memory.MemoryFileSystem
	fs      *trackingFS
	console *device.Console
	stdout  *bytes.Buffer
}

type envOption func(*Options)

func withConsole() envOption { return func(o *Options) { o.Console = true } }

func withOpenMax(n int) envOption { return func(o *Options) { o.OpenMax = n } }

func withPathMax(n int) envOption { return func(o *Options) { o.PathMax = n } }

func newTestEnv(t *testing.T, tableCapacity int, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()

	root, err := memory.NewMemoryFileSystem(ctx, memory.MemoryFileSystemConfig{})
	require.NoError(t, err)

	stdout := &bytes.Buffer{}
	console := device.NewConsole(strings.NewReader(consoleInput), stdout)
	mounts := vfs.New(root)
	require.NoError(t, mounts.Mount("con", console))

	tracked := &trackingFS{inner: mounts}

	table, err := openfile.NewTable(tableCapacity)
	require.NoError(t, err)

	var o Options
	for _, opt := range opts {
		opt(&o)
	}

	k, err := New(table, tracked, o)
	require.NoError(t, err)

	return &testEnv{kernel: k, root: root, fs: tracked, console: console, stdout: stdout}
}

func (e *testEnv) newProcess(t *testing.T) *Process {
	t.Helper()
	p, err := e.kernel.NewProcess(context.Background(), usermem.NewBytesIO(4096))
	require.NoError(t, err)
	return p
}

func mustOpenPath(t *testing.T, p *Process, path string, flags int) int {
	t.Helper()
	fd, err := p.OpenPath(context.Background(), path, flags, 0o644)
	require.NoError(t, err, "open %s", path)
	return fd
}

// assertRefsMatchCells checks that every record's reference count equals
// the number of descriptor cells, across all live processes, bound to it.
func assertRefsMatchCells(t *testing.T, k *Kernel) {
	t.Helper()

	counts := make(map[openfile.Ticket]int)
	k.mu.Lock()
	procs := make([]*Process, 0, len(k.procs))
	for _, p := range k.procs {
		procs = append(procs, p)
	}
	k.mu.Unlock()

	for _, p := range procs {
		for _, e := range p.fds.Entries() {
			counts[e.Ticket]++
		}
	}

	for tk, cells := range counts {
		refs, err := k.table.Refs(tk)
		require.NoError(t, err, "bound ticket %s must resolve", tk)
		require.Equal(t, cells, refs, "refs of %s", tk)
	}
	require.Equal(t, len(counts), k.table.InUse(), "no orphaned records")
}

// waitFor polls cond for up to a second.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached")
}
