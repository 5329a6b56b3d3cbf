package openfile

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/vnode"
)

// File is an entry of the open-file table.
type File struct {
	mu sync.Mutex

	vn         vnode.Vnode
	mode       vnode.AccessMode
	appendMode bool

	// offset is the shared cursor. Never negative.
	offset int64

	// refs counts descriptor cells bound to this record.
	refs int

	// closed is set when refs reaches zero. A goroutine that resolved the
	// record just before the last Drop observes it and fails with EBADF.
	closed bool
}

func newFile(vn vnode.Vnode, mode vnode.AccessMode, appendMode bool) *File {
	return &File{vn: vn, mode: mode, appendMode: appendMode, refs: 1}
}

// Mode returns the access mode fixed at open time.
func (f *File) Mode() vnode.AccessMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

// Offset returns the current cursor.
func (f *File) Offset() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offset
}

// Read transfers up to len(buf) bytes from the cursor and advances it by the
// count read. A read at end of file returns 0 and a nil error.
//
// Errors:
//   - EBADF: record opened write-only, or closed concurrently
//   - vnode failure: returned verbatim, cursor unchanged
func (f *File) Read(ctx context.Context, buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || !f.mode.CanRead() {
		return 0, errno.EBADF
	}

	n, err := f.vn.Read(ctx, f.offset, buf)
	if err != nil {
		return 0, err
	}
	f.offset += int64(n)
	return n, nil
}

// Write transfers buf at the cursor and advances it by the count written.
// Records opened with O_APPEND move the cursor to the end of the object
// before every write.
//
// Errors:
//   - EBADF: record opened read-only, or closed concurrently
//   - EFBIG: the write would end past the largest representable offset
//   - vnode failure: returned verbatim, cursor unchanged
func (f *File) Write(ctx context.Context, buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || !f.mode.CanWrite() {
		return 0, errno.EBADF
	}

	offset := f.offset
	if f.appendMode {
		st, err := f.vn.Stat(ctx)
		if err != nil {
			return 0, err
		}
		offset = st.Size
	}
	if offset > math.MaxInt64-int64(len(buf)) {
		return 0, errno.EFBIG
	}

	n, err := f.vn.Write(ctx, offset, buf)
	if err != nil {
		return 0, err
	}
	f.offset = offset + int64(n)
	return n, nil
}

// Seek repositions the cursor and returns the new offset.
//
// Errors (checked in this order, nothing changes on failure):
//   - EBADF: record closed concurrently
//   - ESPIPE: the vnode is not seekable
//   - EINVAL: unknown whence
//   - vnode Stat failure (SEEK_END only): returned verbatim
//   - EINVAL: the resulting offset is negative or overflows
func (f *File) Seek(ctx context.Context, offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, errno.EBADF
	}
	if !f.vn.IsSeekable() {
		return 0, errno.ESPIPE
	}

	var base int64
	switch whence {
	case vnode.SEEK_SET:
		base = 0
	case vnode.SEEK_CUR:
		base = f.offset
	case vnode.SEEK_END:
		st, err := f.vn.Stat(ctx)
		if err != nil {
			return 0, err
		}
		base = st.Size
	default:
		return 0, errno.EINVAL
	}

	if offset > 0 && base > math.MaxInt64-offset {
		return 0, errno.EINVAL
	}
	pos := base + offset
	if pos < 0 {
		return 0, errno.EINVAL
	}

	f.offset = pos
	return pos, nil
}

func (f *File) String() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fmt.Sprintf("File{mode=%s offset=%d refs=%d}", f.mode, f.offset, f.refs)
}
