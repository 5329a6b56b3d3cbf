// Package usermem moves bytes between a process's address space and the
// kernel.
package usermem

import (
	"context"
	"fmt"

	"github.com/marmos91/dittofd/pkg/errno"
)

// Addr is an address in a process's address space.
type Addr uint64

// AddLength adds length to a, reporting false on overflow.
func (a Addr) AddLength(length uint64) (Addr, bool) {
	end := a + Addr(length)
	return end, end >= a
}

// IO copies memory in and out of an address space.
type IO interface {
	// CopyOut copies len(src) bytes from src to the memory at addr. It
	// returns the number of bytes copied; if that is less than len(src) the
	// error explains why.
	CopyOut(ctx context.Context, addr Addr, src []byte) (int, error)

	// CopyIn copies len(dst) bytes from the memory at addr to dst. It
	// returns the number of bytes copied; if that is less than len(dst) the
	// error explains why.
	CopyIn(ctx context.Context, addr Addr, dst []byte) (int, error)
}

// copyStringIncrement is the maximum number of bytes CopyStringIn reads per
// CopyIn call.
const copyStringIncrement = 64

// CopyStringIn copies a NUL-terminated string of at most maxlen bytes
// (including the NUL) from the memory at addr.
//
// Errors:
//   - ENAMETOOLONG: no NUL within maxlen bytes
//   - EFAULT: the string runs off the end of the address space
func CopyStringIn(ctx context.Context, uio IO, addr Addr, maxlen int) (string, error) {
	if maxlen <= 0 {
		return "", errno.ENAMETOOLONG
	}

	buf := make([]byte, maxlen)
	var done int
	for done < maxlen {
		start, ok := addr.AddLength(uint64(done))
		if !ok {
			return string(buf[:done]), errno.EFAULT
		}

		readlen := min(copyStringIncrement, maxlen-done)
		if _, ok := start.AddLength(uint64(readlen)); !ok {
			return string(buf[:done]), errno.EFAULT
		}

		n, err := uio.CopyIn(ctx, start, buf[done:done+readlen])
		// The terminator may precede the fault.
		for i, c := range buf[done : done+n] {
			if c == 0 {
				return string(buf[:done+i]), nil
			}
		}
		done += n
		if err != nil {
			return string(buf[:done]), err
		}
	}
	return string(buf), errno.ENAMETOOLONG
}

// BytesIO implements IO over a flat byte slice starting at address 0.
// Accesses beyond the slice fault with EFAULT after copying what fits.
type BytesIO struct {
	Bytes []byte
}

// NewBytesIO returns a zeroed address space of size bytes.
func NewBytesIO(size int) *BytesIO {
	return &BytesIO{Bytes: make([]byte, size)}
}

// CopyOut implements IO.
func (b *BytesIO) CopyOut(ctx context.Context, addr Addr, src []byte) (int, error) {
	rng, err := b.rangeCheck(addr, len(src))
	if rng > 0 {
		copy(b.Bytes[addr:], src[:rng])
	}
	return rng, err
}

// CopyIn implements IO.
func (b *BytesIO) CopyIn(ctx context.Context, addr Addr, dst []byte) (int, error) {
	rng, err := b.rangeCheck(addr, len(dst))
	if rng > 0 {
		copy(dst, b.Bytes[addr:addr+Addr(rng)])
	}
	return rng, err
}

// rangeCheck returns how many of length bytes at addr lie inside the slice.
func (b *BytesIO) rangeCheck(addr Addr, length int) (int, error) {
	if length == 0 {
		return 0, nil
	}
	size := Addr(len(b.Bytes))
	if addr >= size {
		return 0, fmt.Errorf("address %#x: %w", uint64(addr), errno.EFAULT)
	}
	avail := int(size - addr)
	if length > avail {
		return avail, fmt.Errorf("address %#x+%d: %w", uint64(addr), length, errno.EFAULT)
	}
	return length, nil
}

// CopyStringOut writes s followed by a NUL at addr. It is the inverse of
// CopyStringIn and is used to stage path arguments.
func CopyStringOut(ctx context.Context, uio IO, addr Addr, s string) error {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	_, err := uio.CopyOut(ctx, addr, buf)
	return err
}
