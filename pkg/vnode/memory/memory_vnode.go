package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/vnode"
)

// memoryVnode is one open instance of an in-memory object. Several vnodes
// may share the same object; each one is closed independently.
type memoryVnode struct {
	fs  *MemoryFileSystem
	obj *object
}

// Read implements vnode.Vnode.
func (v *memoryVnode) Read(ctx context.Context, offset int64, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, fmt.Errorf("offset %d: %w", offset, errno.EINVAL)
	}

	v.obj.mu.RLock()
	defer v.obj.mu.RUnlock()

	if offset >= int64(len(v.obj.data)) {
		return 0, nil
	}
	return copy(buf, v.obj.data[offset:]), nil
}

// Write implements vnode.Vnode.
//
// This implements sparse file semantics: writing past the end extends the
// object with zeros up to offset, then stores buf. Objects cannot grow past
// vnode.MaxBufferedSize (EFBIG).
func (v *memoryVnode) Write(ctx context.Context, offset int64, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	end, err := vnode.WriteEnd(offset, len(buf), vnode.MaxBufferedSize)
	if err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}

	v.obj.mu.Lock()
	defer v.obj.mu.Unlock()

	if end > int64(len(v.obj.data)) {
		if err := v.fs.grow(uint64(end - int64(len(v.obj.data)))); err != nil {
			return 0, fmt.Errorf("write %d bytes at %d: %w", len(buf), offset, err)
		}
		extended := make([]byte, end)
		copy(extended, v.obj.data)
		v.obj.data = extended
	}

	n := copy(v.obj.data[offset:], buf)
	v.obj.mtime = time.Now()
	return n, nil
}

// Stat implements vnode.Vnode.
func (v *memoryVnode) Stat(ctx context.Context) (vnode.Stat, error) {
	if err := ctx.Err(); err != nil {
		return vnode.Stat{}, err
	}

	v.obj.mu.RLock()
	defer v.obj.mu.RUnlock()

	return vnode.Stat{
		Size:  int64(len(v.obj.data)),
		Mode:  v.obj.mode,
		Mtime: v.obj.mtime,
	}, nil
}

// IsSeekable implements vnode.Vnode.
func (v *memoryVnode) IsSeekable() bool { return true }

// Close implements vnode.Vnode. The object survives in the filesystem.
func (v *memoryVnode) Close(ctx context.Context) error {
	return nil
}
