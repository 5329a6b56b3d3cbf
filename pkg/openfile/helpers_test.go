package openfile

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/marmos91/dittofd/pkg/vnode"
	"github.com/stretchr/testify/require"
)

// fakeVnode is an in-memory vnode with failure injection and close
// accounting.
type fakeVnode struct {
	mu       sync.Mutex
	data     []byte
	seekable bool

	readErr  error
	writeErr error
	statErr  error
	closeErr error

	closes atomic.Int32
}

func newFakeVnode(data string) *fakeVnode {
	return &fakeVnode{data: []byte(data), seekable: true}
}

func (v *fakeVnode) Read(_ context.Context, offset int64, buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.readErr != nil {
		return 0, v.readErr
	}
	if offset >= int64(len(v.data)) {
		return 0, nil
	}
	return copy(buf, v.data[offset:]), nil
}

func (v *fakeVnode) Write(_ context.Context, offset int64, buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.writeErr != nil {
		return 0, v.writeErr
	}
	if end := offset + int64(len(buf)); end > int64(len(v.data)) {
		grown := make([]byte, end)
		copy(grown, v.data)
		v.data = grown
	}
	return copy(v.data[offset:], buf), nil
}

func (v *fakeVnode) Stat(context.Context) (vnode.Stat, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.statErr != nil {
		return vnode.Stat{}, v.statErr
	}
	return vnode.Stat{Size: int64(len(v.data))}, nil
}

func (v *fakeVnode) IsSeekable() bool { return v.seekable }

func (v *fakeVnode) Close(context.Context) error {
	v.closes.Add(1)
	return v.closeErr
}

func (v *fakeVnode) contents() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return string(v.data)
}

func mustTable(t *testing.T, capacity int) *Table {
	t.Helper()
	table, err := NewTable(capacity)
	require.NoError(t, err)
	return table
}

func mustOpen(t *testing.T, table *Table, vn vnode.Vnode, flags int) (Ticket, *File) {
	t.Helper()
	tk, err := table.Open(vn, flags)
	require.NoError(t, err)
	f, err := table.Get(tk)
	require.NoError(t, err)
	return tk, f
}
