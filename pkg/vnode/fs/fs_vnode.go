package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/vnode"
)

// hostVnode wraps one host *os.File.
type hostVnode struct {
	file *os.File
	name string
}

// Read implements vnode.Vnode.
//
// A short read that hits end of file returns the bytes read and a nil error.
func (v *hostVnode) Read(ctx context.Context, offset int64, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, fmt.Errorf("offset %d: %w", offset, errno.EINVAL)
	}

	n, err := v.file.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("read %s: %w", v.name, translateError(err))
	}
	return n, nil
}

// Write implements vnode.Vnode.
func (v *hostVnode) Write(ctx context.Context, offset int64, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if _, err := vnode.WriteEnd(offset, len(buf), 0); err != nil {
		return 0, err
	}

	n, err := v.file.WriteAt(buf, offset)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", v.name, translateError(err))
	}
	return n, nil
}

// Stat implements vnode.Vnode.
func (v *hostVnode) Stat(ctx context.Context) (vnode.Stat, error) {
	if err := ctx.Err(); err != nil {
		return vnode.Stat{}, err
	}

	info, err := v.file.Stat()
	if err != nil {
		return vnode.Stat{}, fmt.Errorf("stat %s: %w", v.name, translateError(err))
	}

	return vnode.Stat{
		Size:  info.Size(),
		Mode:  uint32(info.Mode().Perm()),
		Mtime: info.ModTime(),
	}, nil
}

// IsSeekable implements vnode.Vnode.
func (v *hostVnode) IsSeekable() bool { return true }

// Close implements vnode.Vnode.
func (v *hostVnode) Close(ctx context.Context) error {
	if err := v.file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", v.name, translateError(err))
	}
	return nil
}
