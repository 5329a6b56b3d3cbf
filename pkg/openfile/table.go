package openfile

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/vnode"
)

// Ticket identifies one counted reference to a table slot.
type Ticket struct {
	slot int
	gen  uint64
}

// Slot returns the slot index the ticket refers to.
func (t Ticket) Slot() int { return t.slot }

func (t Ticket) String() string {
	return fmt.Sprintf("%d@%d", t.slot, t.gen)
}

type slot struct {
	file     *File
	reserved bool
	gen      uint64
}

func (s *slot) empty() bool { return s.file == nil && !s.reserved }

// Table is the global open-file directory.
type Table struct {
	mu    sync.Mutex
	slots []slot
	inUse int
}

// NewTable creates a table with room for capacity open files.
func NewTable(capacity int) (*Table, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("open-file table capacity must be positive, got %d: %w", capacity, errno.EINVAL)
	}

	slots := make([]slot, capacity)
	for i := range slots {
		// Generation 0 is never issued, so the zero Ticket is always stale.
		slots[i].gen = 1
	}
	return &Table{slots: slots}, nil
}

// Capacity returns the number of slots.
func (t *Table) Capacity() int { return len(t.slots) }

// InUse returns the number of occupied or reserved slots.
func (t *Table) InUse() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inUse
}

// Open creates a record for vn with the access mode and O_APPEND taken from
// flags, and returns the first reference to it.
//
// The table takes ownership of vn only on success. On failure the caller
// still owns vn and must close it.
//
// Errors:
//   - EINVAL: flags carry no valid access mode
//   - ENFILE: every slot is occupied
func (t *Table) Open(vn vnode.Vnode, flags int) (Ticket, error) {
	mode, err := vnode.AccessModeOf(flags)
	if err != nil {
		return Ticket{}, err
	}

	idx, err := t.allocate()
	if err != nil {
		return Ticket{}, err
	}
	return t.install(idx, newFile(vn, mode, flags&vnode.O_APPEND != 0)), nil
}

// Get resolves a ticket to its record without changing the reference count.
func (t *Table) Get(tk Ticket) (*File, error) {
	return t.lookup(tk)
}

// Dup takes an additional reference on the record tk refers to. The returned
// ticket must be dropped independently of tk.
func (t *Table) Dup(tk Ticket) (Ticket, error) {
	f, err := t.lookup(tk)
	if err != nil {
		return Ticket{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return Ticket{}, errno.EBADF
	}
	f.refs++
	return tk, nil
}

// Drop returns one reference. When it was the last, the slot is emptied and
// the vnode closed; the close error, if any, is returned.
func (t *Table) Drop(ctx context.Context, tk Ticket) error {
	t.mu.Lock()

	s, err := t.slotFor(tk)
	if err != nil {
		t.mu.Unlock()
		return err
	}

	f := s.file
	f.mu.Lock()
	f.refs--
	last := f.refs == 0
	if last {
		f.closed = true
		t.releaseLocked(tk.slot)
	}
	f.mu.Unlock()
	t.mu.Unlock()

	if !last {
		return nil
	}
	return f.vn.Close(ctx)
}

// Refs returns the reference count of the record tk refers to.
func (t *Table) Refs(tk Ticket) (int, error) {
	f, err := t.lookup(tk)
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refs, nil
}

// allocate reserves the lowest empty slot.
func (t *Table) allocate() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		if t.slots[i].empty() {
			t.slots[i].reserved = true
			t.inUse++
			return i, nil
		}
	}
	return 0, errno.ENFILE
}

// install binds f into a slot obtained from allocate.
func (t *Table) install(idx int, f *File) Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &t.slots[idx]
	s.file = f
	s.reserved = false
	return Ticket{slot: idx, gen: s.gen}
}

// releaseLocked empties a slot and bumps its generation. t.mu must be held.
func (t *Table) releaseLocked(idx int) {
	s := &t.slots[idx]
	s.file = nil
	s.reserved = false
	s.gen++
	t.inUse--
}

// lookup resolves tk under the table lock.
func (t *Table) lookup(tk Ticket) (*File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.slotFor(tk)
	if err != nil {
		return nil, err
	}
	return s.file, nil
}

// slotFor validates tk. t.mu must be held.
func (t *Table) slotFor(tk Ticket) (*slot, error) {
	if tk.slot < 0 || tk.slot >= len(t.slots) {
		return nil, errno.EBADF
	}
	s := &t.slots[tk.slot]
	if s.file == nil || s.gen != tk.gen {
		return nil, errno.EBADF
	}
	return s, nil
}
