package badger

import (
	"context"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/vnode"
)

// badgerVnode is one open instance of a Badger-stored file.
type badgerVnode struct {
	fs   *BadgerFileSystem
	id   uuid.UUID
	name string
}

// Read implements vnode.Vnode.
func (v *badgerVnode) Read(ctx context.Context, offset int64, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, fmt.Errorf("offset %d: %w", offset, errno.EINVAL)
	}

	var n int
	err := v.fs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyContent(v.id))
		if err == badger.ErrKeyNotFound {
			return errno.ENOENT
		}
		if err != nil {
			return err
		}
		return item.Value(func(data []byte) error {
			if offset < int64(len(data)) {
				n = copy(buf, data[offset:])
			}
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", v.name, err)
	}
	return n, nil
}

// Write implements vnode.Vnode.
func (v *badgerVnode) Write(ctx context.Context, offset int64, buf []byte) (int, error) {
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

	err = v.fs.update(func(txn *badger.Txn) error {
		in, err := getInode(txn, v.id)
		if err != nil {
			return err
		}

		item, err := txn.Get(keyContent(v.id))
		if err != nil {
			return err
		}
		current, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		if end > int64(len(current)) {
			extended := make([]byte, end)
			copy(extended, current)
			current = extended
		}
		copy(current[offset:], buf)

		in.Size = int64(len(current))
		in.touch()
		data, err := encodeInode(in)
		if err != nil {
			return err
		}
		if err := txn.Set(keyInode(v.id), data); err != nil {
			return err
		}
		return txn.Set(keyContent(v.id), current)
	})
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", v.name, err)
	}
	return len(buf), nil
}

// Stat implements vnode.Vnode.
func (v *badgerVnode) Stat(ctx context.Context) (vnode.Stat, error) {
	if err := ctx.Err(); err != nil {
		return vnode.Stat{}, err
	}

	var st vnode.Stat
	err := v.fs.db.View(func(txn *badger.Txn) error {
		in, err := getInode(txn, v.id)
		if err != nil {
			return err
		}
		st = vnode.Stat{Size: in.Size, Mode: in.Mode, Mtime: in.mtime()}
		return nil
	})
	if err != nil {
		return vnode.Stat{}, fmt.Errorf("stat %s: %w", v.name, err)
	}
	return st, nil
}

// IsSeekable implements vnode.Vnode.
func (v *badgerVnode) IsSeekable() bool { return true }

// Close implements vnode.Vnode.
func (v *badgerVnode) Close(ctx context.Context) error { return nil }
