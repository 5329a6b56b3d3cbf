// Package fdtable implements the per-process descriptor table: a fixed-size
// array mapping small integers to open-file tickets.
//
// Each cell is empty, reserved or bound. A reservation claims a descriptor
// number while the caller performs work that may block (opening a vnode,
// closing the previous occupant during dup2) without holding the table
// lock; the caller then either binds the cell with Install or returns it
// with Unreserve.
//
// Close retires the table when its process exits. From then on nothing new
// can be bound, so an operation still in flight at exit fails its Install
// and drops the reference it was holding.
package fdtable

import (
	"fmt"
	"sync"

	"github.com/marmos91/dittofd/pkg/errno"
	"github.com/marmos91/dittofd/pkg/openfile"
)

type cellState uint8

const (
	cellEmpty cellState = iota
	cellReserved
	cellBound
)

type cell struct {
	state  cellState
	ticket openfile.Ticket
}

// Entry is a bound descriptor.
type Entry struct {
	FD     int
	Ticket openfile.Ticket
}

// FDTable is a process's descriptor table.
type FDTable struct {
	mu     sync.Mutex
	cells  []cell
	closed bool
}

// New creates an empty table with room for capacity descriptors.
func New(capacity int) (*FDTable, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("descriptor table capacity must be positive, got %d: %w", capacity, errno.EINVAL)
	}
	return &FDTable{cells: make([]cell, capacity)}, nil
}

// Capacity returns the number of descriptor cells.
func (t *FDTable) Capacity() int { return len(t.cells) }

// InRange reports whether fd names a cell of this table.
func (t *FDTable) InRange(fd int) bool {
	return fd >= 0 && fd < len(t.cells)
}

// Reserve claims the lowest empty descriptor. EMFILE when none is empty,
// EBADF once the table is closed.
func (t *FDTable) Reserve() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return -1, errno.EBADF
	}

	for fd := range t.cells {
		if t.cells[fd].state == cellEmpty {
			t.cells[fd].state = cellReserved
			return fd, nil
		}
	}
	return -1, errno.EMFILE
}

// ReserveAt claims descriptor fd whatever it currently holds. If fd was
// bound, its ticket is returned with ok set; the caller now owns that
// reference and must drop it.
//
// Errors:
//   - EBADF: fd out of range, or the table is closed
//   - EBUSY: fd is reserved by another in-flight operation
func (t *FDTable) ReserveAt(fd int) (prev openfile.Ticket, ok bool, err error) {
	if !t.InRange(fd) {
		return openfile.Ticket{}, false, errno.EBADF
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return openfile.Ticket{}, false, errno.EBADF
	}

	c := &t.cells[fd]
	switch c.state {
	case cellReserved:
		return openfile.Ticket{}, false, errno.EBUSY
	case cellBound:
		prev, ok = c.ticket, true
	}
	c.state = cellReserved
	c.ticket = openfile.Ticket{}
	return prev, ok, nil
}

// Install binds a reserved descriptor to tk. On a closed table the
// reservation is released and EBADF returned; tk still belongs to the caller.
func (t *FDTable) Install(fd int, tk openfile.Ticket) error {
	if !t.InRange(fd) {
		return errno.EBADF
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	c := &t.cells[fd]
	if t.closed {
		if c.state == cellReserved {
			*c = cell{}
		}
		return fmt.Errorf("install fd %d: table closed: %w", fd, errno.EBADF)
	}
	if c.state != cellReserved {
		return fmt.Errorf("install fd %d: cell not reserved: %w", fd, errno.EBADF)
	}
	c.state = cellBound
	c.ticket = tk
	return nil
}

// Unreserve returns a reserved descriptor to the empty state.
func (t *FDTable) Unreserve(fd int) {
	if !t.InRange(fd) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if c := &t.cells[fd]; c.state == cellReserved {
		*c = cell{}
	}
}

// Get returns the ticket bound to fd. EBADF for out-of-range, empty or
// reserved descriptors.
func (t *FDTable) Get(fd int) (openfile.Ticket, error) {
	if !t.InRange(fd) {
		return openfile.Ticket{}, errno.EBADF
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.cells[fd]
	if c.state != cellBound {
		return openfile.Ticket{}, errno.EBADF
	}
	return c.ticket, nil
}

// Remove unbinds fd and hands its ticket to the caller, who must drop it.
func (t *FDTable) Remove(fd int) (openfile.Ticket, error) {
	if !t.InRange(fd) {
		return openfile.Ticket{}, errno.EBADF
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	c := &t.cells[fd]
	if c.state != cellBound {
		return openfile.Ticket{}, errno.EBADF
	}
	tk := c.ticket
	*c = cell{}
	return tk, nil
}

// Close marks the table closed, unbinds every descriptor and returns the
// tickets, ascending by descriptor. Reserved cells stay with their in-flight
// owner, whose Install will fail. Closing twice returns nothing the second
// time.
func (t *FDTable) Close() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	var entries []Entry
	for fd := range t.cells {
		c := &t.cells[fd]
		if c.state == cellBound {
			entries = append(entries, Entry{FD: fd, Ticket: c.ticket})
			*c = cell{}
		}
	}
	return entries
}

// Entries returns a snapshot of the bound descriptors, ascending.
func (t *FDTable) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var entries []Entry
	for fd, c := range t.cells {
		if c.state == cellBound {
			entries = append(entries, Entry{FD: fd, Ticket: c.ticket})
		}
	}
	return entries
}

// Descriptors returns the bound descriptor numbers, ascending.
func (t *FDTable) Descriptors() []int {
	entries := t.Entries()
	fds := make([]int, len(entries))
	for i, e := range entries {
		fds[i] = e.FD
	}
	return fds
}

// Closed reports whether Close has been called.
func (t *FDTable) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Len returns the number of bound descriptors.
func (t *FDTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, c := range t.cells {
		if c.state == cellBound {
			n++
		}
	}
	return n
}
