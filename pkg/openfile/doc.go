// Package openfile implements the system-wide open-file table.
//
// A File is one open instance of a vnode: it owns the vnode, the access mode
// fixed at open time, and the cursor shared by every descriptor bound to it.
// A Table is a fixed-capacity arena of Files. Descriptor tables never hold
// *File pointers; they hold Tickets, and every Ticket issued by Open or Dup
// is one counted reference that must be returned through Drop exactly once.
//
// Lock Ordering:
//
//	Table.mu -> File.mu
//
// Table.mu guards slot occupancy only and is never held across vnode I/O.
// File.mu guards the cursor and the reference count and is held across a
// whole Read, Write or Seek. Drop is the only path holding both.
//
// Slot Generations:
//
// Each slot carries a generation that is bumped whenever the slot is
// emptied. A Ticket records the generation it was issued under, so a stale
// Ticket for a recycled slot fails with EBADF instead of reaching a record
// that belongs to somebody else.
package openfile
