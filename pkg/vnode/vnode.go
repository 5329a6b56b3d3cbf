// Package vnode defines the filesystem collaborator consumed by the
// open-file table: a FileSystem that resolves paths to Vnodes, and the Vnode
// operations the kernel performs at an explicit byte offset.
//
// Separation of Concerns:
//
// A Vnode never tracks a position. Cursors live in the open-file records that
// own the vnode, so two opens of the same object have independent offsets
// while duplicated descriptors share one.
//
// Implementations:
//   - memory: in-memory objects, volatile
//   - fs: files under a host directory
//   - s3: objects in an S3 bucket (range reads, read-modify-write)
//   - badger: objects persisted in a BadgerDB database
//   - device: non-seekable character devices such as the console
package vnode

import (
	"context"
	"time"
)

// FileSystem resolves names to vnodes.
type FileSystem interface {
	// Open resolves path and returns a vnode exclusively owned by the
	// caller, who must Close it exactly once.
	//
	// Flags carry the access mode in their O_ACCMODE bits plus the creation
	// flags O_CREAT, O_EXCL, O_TRUNC and O_APPEND. Mode is the permission
	// set recorded for newly created objects.
	//
	// Errors are wrapped errno values, e.g. ENOENT when the object does not
	// exist and O_CREAT is not set, EEXIST for O_CREAT|O_EXCL on an
	// existing object, EISDIR when a directory is opened for writing.
	Open(ctx context.Context, path string, flags int, mode uint32) (Vnode, error)
}

// Vnode is one open instance of a filesystem object.
type Vnode interface {
	// Read copies bytes starting at offset into buf and returns the count.
	// A read at or past the end of the object returns 0 and a nil error.
	Read(ctx context.Context, offset int64, buf []byte) (int, error)

	// Write copies buf into the object at offset, extending it when needed,
	// and returns the count actually written.
	Write(ctx context.Context, offset int64, buf []byte) (int, error)

	// Stat reports object attributes.
	Stat(ctx context.Context) (Stat, error)

	// IsSeekable reports whether offsets are meaningful for this object.
	// Devices such as the console return false.
	IsSeekable() bool

	// Close releases the vnode.
	Close(ctx context.Context) error
}

// Stat holds object attributes.
type Stat struct {
	Size  int64
	Mode  uint32
	Mtime time.Time
}
