// Package fs implements a vnode.FileSystem backed by a host directory.
package fs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	gopath "path"
	"path/filepath"

	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/vnode"
)

// HostFileSystem implements vnode.FileSystem using files under a base
// directory on the local filesystem.
//
// Every kernel path is resolved relative to the base directory; ".." cannot
// climb above it.
//
// Thread Safety:
// Each vnode wraps its own *os.File and uses positional I/O (ReadAt/WriteAt),
// so concurrent vnodes of the same file are safe at the OS level.
type HostFileSystem struct {
	basePath string
}

// HostFileSystemConfig contains configuration for the host filesystem.
type HostFileSystemConfig struct {
	// Path is the base directory (created if missing)
	Path string `mapstructure:"path" validate:"required"`
}

// NewHostFileSystem creates a filesystem rooted at cfg.Path.
//
// The base directory will be created with permissions 0755.
//
// Parameters:
//   - ctx: Context for cancellation
//   - cfg: Base directory configuration
//
// Returns:
//   - *HostFileSystem: Initialized filesystem
//   - error: Returns error if directory creation fails or context is cancelled
func NewHostFileSystem(ctx context.Context, cfg HostFileSystemConfig) (*HostFileSystem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Path == "" {
		return nil, fmt.Errorf("filesystem path is required")
	}

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &HostFileSystem{basePath: cfg.Path}, nil
}

// hostPath maps a kernel path onto the base directory.
func (h *HostFileSystem) hostPath(p string) string {
	return filepath.Join(h.basePath, filepath.FromSlash(gopath.Clean("/"+p)))
}

// Open implements vnode.FileSystem.
func (h *HostFileSystem) Open(ctx context.Context, path string, flags int, mode uint32) (vnode.Vnode, error) {
	// ========================================================================
	// Step 1: Check context and translate flags
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if path == "" {
		return nil, fmt.Errorf("empty path: %w", errno.ENOENT)
	}

	osFlags, err := hostFlags(flags)
	if err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 2: Open the host file
	// ========================================================================

	hostPath := h.hostPath(path)
	file, err := os.OpenFile(hostPath, osFlags, iofs.FileMode(mode&0o777))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, translateError(err))
	}

	// ========================================================================
	// Step 3: Refuse directories
	// ========================================================================

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat %s: %w", path, translateError(err))
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, fmt.Errorf("open %s: %w", path, errno.EISDIR)
	}

	return &hostVnode{file: file, name: path}, nil
}

// hostFlags translates kernel open flags to os.OpenFile flags.
func hostFlags(flags int) (int, error) {
	var out int
	switch flags & vnode.O_ACCMODE {
	case vnode.O_RDONLY:
		out = os.O_RDONLY
	case vnode.O_WRONLY:
		out = os.O_WRONLY
	case vnode.O_RDWR:
		out = os.O_RDWR
	default:
		return 0, errno.EINVAL
	}

	if flags&vnode.O_CREAT != 0 {
		out |= os.O_CREATE
	}
	if flags&vnode.O_EXCL != 0 {
		out |= os.O_EXCL
	}
	if flags&vnode.O_TRUNC != 0 && flags&vnode.O_ACCMODE != vnode.O_RDONLY {
		out |= os.O_TRUNC
	}
	// O_APPEND is applied by the open-file record, which positions each
	// write at the current size. The host descriptor always uses ReadAt and
	// WriteAt, which os.File rejects in append mode.
	return out, nil
}

// translateError maps host filesystem errors onto errno values.
func translateError(err error) error {
	switch {
	case errors.Is(err, iofs.ErrNotExist):
		return errno.ENOENT
	case errors.Is(err, iofs.ErrExist):
		return errno.EEXIST
	case errors.Is(err, iofs.ErrPermission):
		return errno.EACCES
	default:
		var pathErr *iofs.PathError
		if errors.As(err, &pathErr) {
			return fmt.Errorf("%s: %w", pathErr.Op, errors.Join(errno.EIO, pathErr.Err))
		}
		return fmt.Errorf("%w: %v", errno.EIO, err)
	}
}
