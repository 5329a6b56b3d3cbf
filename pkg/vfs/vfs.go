// Package vfs routes kernel paths to the filesystem that serves them.
//
// Paths take one of two forms:
//   - "device:rest" names a mounted device ("con:" is the console)
//   - anything else resolves on the root filesystem
package vfs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/vnode"
)

// VFS is a mount table implementing vnode.FileSystem.
type VFS struct {
	mu      sync.RWMutex
	root    vnode.FileSystem
	devices map[string]vnode.FileSystem
}

// New creates a VFS whose non-device paths resolve on root. Root may be nil,
// in which case only devices can be opened.
func New(root vnode.FileSystem) *VFS {
	return &VFS{
		root:    root,
		devices: make(map[string]vnode.FileSystem),
	}
}

// Mount attaches fs under the device name (without the trailing colon).
func (v *VFS) Mount(name string, fs vnode.FileSystem) error {
	if name == "" || strings.ContainsAny(name, ":/") {
		return fmt.Errorf("invalid device name %q: %w", name, errno.EINVAL)
	}
	if fs == nil {
		return fmt.Errorf("mount %s: nil filesystem: %w", name, errno.EINVAL)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.devices[name]; exists {
		return fmt.Errorf("mount %s: %w", name, errno.EBUSY)
	}
	v.devices[name] = fs
	return nil
}

// Unmount detaches the device name.
func (v *VFS) Unmount(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.devices[name]; !exists {
		return fmt.Errorf("unmount %s: %w", name, errno.ENOENT)
	}
	delete(v.devices, name)
	return nil
}

// Devices returns the mounted device names, sorted.
func (v *VFS) Devices() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	names := make([]string, 0, len(v.devices))
	for name := range v.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the filesystem serving path and the path to hand it.
func (v *VFS) Resolve(path string) (vnode.FileSystem, string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if device, rest, ok := splitDevice(path); ok {
		fs, mounted := v.devices[device]
		if !mounted {
			return nil, "", fmt.Errorf("device %s: %w", device, errno.ENOENT)
		}
		return fs, rest, nil
	}

	if v.root == nil {
		return nil, "", fmt.Errorf("no root filesystem for %s: %w", path, errno.ENOENT)
	}
	return v.root, path, nil
}

// Open implements vnode.FileSystem.
func (v *VFS) Open(ctx context.Context, path string, flags int, mode uint32) (vnode.Vnode, error) {
	fs, rest, err := v.Resolve(path)
	if err != nil {
		return nil, err
	}
	return fs.Open(ctx, rest, flags, mode)
}

// splitDevice splits "dev:rest" when the colon appears before any slash.
func splitDevice(path string) (device, rest string, ok bool) {
	colon := strings.IndexByte(path, ':')
	if colon <= 0 {
		return "", "", false
	}
	if slash := strings.IndexByte(path, '/'); slash >= 0 && slash < colon {
		return "", "", false
	}
	return path[:colon], path[colon+1:], true
}
