// Package badger implements a persistent vnode.FileSystem on BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"
	gopath "path"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"
	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/vnode"
)

// maxConflictRetries bounds how often a transaction is retried after
// badger.ErrConflict.
const maxConflictRetries = 16

// BadgerFileSystem implements vnode.FileSystem with every file stored in
// an embedded BadgerDB database.
//
// Characteristics:
//   - Persistent: Data survives restarts
//   - Transactional: each vnode operation is one Badger transaction
//   - Thread-safe: Badger MVCC with conflict retries
type BadgerFileSystem struct {
	db *badger.DB
}

// BadgerFileSystemConfig contains configuration for the BadgerDB filesystem.
type BadgerFileSystemConfig struct {
	// DBPath is the directory where BadgerDB will store its files
	DBPath string `mapstructure:"db_path" validate:"required"`

	// InMemory runs Badger without touching disk (tests)
	InMemory bool `mapstructure:"in_memory"`
}

// NewBadgerFileSystem opens (or creates) the database at cfg.DBPath.
//
// Parameters:
//   - ctx: Context for cancellation
//   - cfg: Database configuration
//
// Returns:
//   - *BadgerFileSystem: Opened filesystem (must be closed with Close)
//   - error: Returns error if the database cannot be opened
func NewBadgerFileSystem(ctx context.Context, cfg BadgerFileSystemConfig) (*BadgerFileSystem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.DBPath == "" {
			return nil, fmt.Errorf("badger db_path is required")
		}
		opts = badger.DefaultOptions(cfg.DBPath)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	return &BadgerFileSystem{db: db}, nil
}

// Close closes the database. Vnodes must not be used afterwards.
func (b *BadgerFileSystem) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (b *BadgerFileSystem) update(fn func(txn *badger.Txn) error) error {
	var err error
	for range maxConflictRetries {
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// Open implements vnode.FileSystem.
func (b *BadgerFileSystem) Open(ctx context.Context, path string, flags int, mode uint32) (vnode.Vnode, error) {
	// ========================================================================
	// Step 1: Check context and validate path
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if path == "" {
		return nil, fmt.Errorf("empty path: %w", errno.ENOENT)
	}
	cleaned := gopath.Clean("/" + path)
	if cleaned == "/" {
		return nil, fmt.Errorf("open %s: %w", path, errno.EISDIR)
	}

	creating := flags&vnode.O_CREAT != 0
	exclusive := creating && flags&vnode.O_EXCL != 0
	truncating := flags&vnode.O_TRUNC != 0 && flags&vnode.O_ACCMODE != vnode.O_RDONLY

	// ========================================================================
	// Step 2: Resolve, create or truncate in one transaction
	// ========================================================================

	var id uuid.UUID
	err := b.update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyPath(cleaned))
		switch {
		case err == nil && exclusive:
			return errno.EEXIST
		case err == nil:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			id, err = uuid.FromBytes(raw)
			if err != nil {
				return fmt.Errorf("corrupt path index for %s: %w", cleaned, err)
			}
			if truncating {
				return truncateTxn(txn, id)
			}
			return nil
		case err == badger.ErrKeyNotFound && !creating:
			return errno.ENOENT
		case err == badger.ErrKeyNotFound:
			id = uuid.New()
			return createTxn(txn, cleaned, id, mode)
		default:
			return err
		}
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return &badgerVnode{fs: b, id: id, name: cleaned}, nil
}

func createTxn(txn *badger.Txn, path string, id uuid.UUID, mode uint32) error {
	in := &inode{ID: id, Mode: mode}
	in.touch()

	data, err := encodeInode(in)
	if err != nil {
		return err
	}
	if err := txn.Set(keyInode(id), data); err != nil {
		return err
	}
	if err := txn.Set(keyContent(id), []byte{}); err != nil {
		return err
	}
	return txn.Set(keyPath(path), id[:])
}

func truncateTxn(txn *badger.Txn, id uuid.UUID) error {
	in, err := getInode(txn, id)
	if err != nil {
		return err
	}
	in.Size = 0
	in.touch()

	data, err := encodeInode(in)
	if err != nil {
		return err
	}
	if err := txn.Set(keyInode(id), data); err != nil {
		return err
	}
	return txn.Set(keyContent(id), []byte{})
}

func getInode(txn *badger.Txn, id uuid.UUID) (*inode, error) {
	item, err := txn.Get(keyInode(id))
	if err == badger.ErrKeyNotFound {
		return nil, errno.ENOENT
	}
	if err != nil {
		return nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return decodeInode(raw)
}
