package vnode

import (
	"fmt"
	"math"

	"github.com/marmos91/dittofd/pkg/errno"
)

// MaxBufferedSize bounds objects that a backend holds as one contiguous
// byte slice (memory, badger, and the read-modify-write path of s3).
const MaxBufferedSize int64 = 1 << 30

// WriteEnd returns the offset just past a write of n bytes at offset.
//
// Errors:
//   - EINVAL: negative offset
//   - EFBIG: the end overflows int64 or exceeds limit (limit <= 0: no limit)
func WriteEnd(offset int64, n int, limit int64) (int64, error) {
	if offset < 0 {
		return 0, fmt.Errorf("offset %d: %w", offset, errno.EINVAL)
	}
	if offset > math.MaxInt64-int64(n) {
		return 0, fmt.Errorf("write %d bytes at %d: %w", n, offset, errno.EFBIG)
	}
	end := offset + int64(n)
	if limit > 0 && end > limit {
		return 0, fmt.Errorf("write ends at %d, limit %d: %w", end, limit, errno.EFBIG)
	}
	return end, nil
}
