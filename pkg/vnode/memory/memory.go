// Package memory implements an in-memory vnode.FileSystem.
package memory

import (
	"context"
	"fmt"
	gopath "path"
	"sync"
	"time"

	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/vnode"
)

// MemoryFileSystem implements vnode.FileSystem using in-memory storage.
//
// This implementation stores every object as a byte slice keyed by its
// cleaned absolute path. It's designed for:
//   - Testing and development
//   - Ephemeral scratch filesystems
//
// Characteristics:
//   - Fast: All operations are memory-speed
//   - Volatile: Data lost on restart
//   - Flat namespace: parent directories are implicit
//   - Thread-safe: namespace guarded by an RWMutex, each object by its own
//
// Capacity:
// When MaxSizeBytes is non-zero, writes that would grow the total stored
// bytes beyond it fail with ENOSPC.
type MemoryFileSystem struct {
	// objects maps a cleaned path to its object
	objects map[string]*object

	// mu protects the objects map
	mu sync.RWMutex

	// usageMu protects used. It is always acquired last.
	usageMu      sync.Mutex
	maxSizeBytes uint64
	used         uint64
}

// MemoryFileSystemConfig contains configuration for the memory filesystem.
type MemoryFileSystemConfig struct {
	// MaxSizeBytes caps the total bytes stored (0 = unlimited)
	MaxSizeBytes uint64 `mapstructure:"max_size_bytes"`
}

type object struct {
	mu    sync.RWMutex
	data  []byte
	mode  uint32
	mtime time.Time
}

// NewMemoryFileSystem creates an empty in-memory filesystem.
//
// Parameters:
//   - ctx: Context for cancellation (checked before initialization)
//   - cfg: Capacity configuration
//
// Returns:
//   - *MemoryFileSystem: Initialized filesystem
//   - error: Only returns error if context is cancelled
func NewMemoryFileSystem(ctx context.Context, cfg MemoryFileSystemConfig) (*MemoryFileSystem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &MemoryFileSystem{
		objects:      make(map[string]*object),
		maxSizeBytes: cfg.MaxSizeBytes,
	}, nil
}

// cleanPath normalizes a caller path into the map key.
func cleanPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path: %w", errno.ENOENT)
	}
	cleaned := gopath.Clean("/" + p)
	if cleaned == "/" {
		return "", fmt.Errorf("open /: %w", errno.EISDIR)
	}
	return cleaned, nil
}

// Open implements vnode.FileSystem.
//
// Open Semantics:
//   - Missing object without O_CREAT: ENOENT
//   - Existing object with O_CREAT|O_EXCL: EEXIST
//   - O_TRUNC with a writable access mode: content discarded
func (fs *MemoryFileSystem) Open(ctx context.Context, path string, flags int, mode uint32) (vnode.Vnode, error) {
	// ========================================================================
	// Step 1: Check context and validate path
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, err := cleanPath(path)
	if err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 2: Resolve or create the object
	// ========================================================================

	fs.mu.Lock()
	defer fs.mu.Unlock()

	obj, exists := fs.objects[key]
	switch {
	case exists && flags&vnode.O_CREAT != 0 && flags&vnode.O_EXCL != 0:
		return nil, fmt.Errorf("open %s: %w", key, errno.EEXIST)
	case !exists && flags&vnode.O_CREAT == 0:
		return nil, fmt.Errorf("open %s: %w", key, errno.ENOENT)
	case !exists:
		obj = &object{mode: mode, mtime: time.Now()}
		fs.objects[key] = obj
	}

	// ========================================================================
	// Step 3: Apply O_TRUNC
	// ========================================================================

	if flags&vnode.O_TRUNC != 0 && flags&vnode.O_ACCMODE != vnode.O_RDONLY {
		obj.mu.Lock()
		fs.shrink(uint64(len(obj.data)))
		obj.data = nil
		obj.mtime = time.Now()
		obj.mu.Unlock()
	}

	return &memoryVnode{fs: fs, obj: obj}, nil
}

// WriteFile stores data at path, replacing any existing object. Used to seed
// a filesystem before processes run.
func (fs *MemoryFileSystem) WriteFile(ctx context.Context, path string, data []byte, mode uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, err := cleanPath(path)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	var previous uint64
	if old, ok := fs.objects[key]; ok {
		old.mu.RLock()
		previous = uint64(len(old.data))
		old.mu.RUnlock()
	}

	fs.usageMu.Lock()
	defer fs.usageMu.Unlock()
	if fs.maxSizeBytes > 0 && fs.used-previous+uint64(len(data)) > fs.maxSizeBytes {
		return fmt.Errorf("write %s: %w", key, errno.ENOSPC)
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	fs.objects[key] = &object{data: dataCopy, mode: mode, mtime: time.Now()}
	fs.used = fs.used - previous + uint64(len(data))
	return nil
}

// ReadFile returns a copy of the object stored at path.
func (fs *MemoryFileSystem) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, err := cleanPath(path)
	if err != nil {
		return nil, err
	}

	fs.mu.RLock()
	obj, ok := fs.objects[key]
	fs.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("read %s: %w", key, errno.ENOENT)
	}

	obj.mu.RLock()
	defer obj.mu.RUnlock()
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

// UsedBytes returns the total stored bytes.
func (fs *MemoryFileSystem) UsedBytes() uint64 {
	fs.usageMu.Lock()
	defer fs.usageMu.Unlock()
	return fs.used
}

// grow accounts for delta new bytes, failing with ENOSPC past the cap.
func (fs *MemoryFileSystem) grow(delta uint64) error {
	fs.usageMu.Lock()
	defer fs.usageMu.Unlock()

	if fs.maxSizeBytes > 0 && fs.used+delta > fs.maxSizeBytes {
		return errno.ENOSPC
	}
	fs.used += delta
	return nil
}

func (fs *MemoryFileSystem) shrink(delta uint64) {
	fs.usageMu.Lock()
	defer fs.usageMu.Unlock()
	fs.used -= delta
}
