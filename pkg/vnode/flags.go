package vnode

import (
	"fmt"

	"github.com/marmos91/dittofd/pkg/errno"
)

// Open flags.
const (
	O_RDONLY  = 0x0
	O_WRONLY  = 0x1
	O_RDWR    = 0x2
	O_ACCMODE = 0x3

	O_CREAT  = 0x4
	O_EXCL   = 0x8
	O_TRUNC  = 0x10
	O_APPEND = 0x20
)

// Seek origins.
const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

// AccessMode is the access-mode part of the open flags.
type AccessMode int

const (
	ReadOnly  AccessMode = O_RDONLY
	WriteOnly AccessMode = O_WRONLY
	ReadWrite AccessMode = O_RDWR
)

// AccessModeOf extracts the access mode from flags. EINVAL when the
// O_ACCMODE bits do not name exactly one of the three modes.
func AccessModeOf(flags int) (AccessMode, error) {
	switch m := AccessMode(flags & O_ACCMODE); m {
	case ReadOnly, WriteOnly, ReadWrite:
		return m, nil
	default:
		return 0, errno.EINVAL
	}
}

// CanRead reports whether the mode permits reads.
func (m AccessMode) CanRead() bool { return m == ReadOnly || m == ReadWrite }

// CanWrite reports whether the mode permits writes.
func (m AccessMode) CanWrite() bool { return m == WriteOnly || m == ReadWrite }

func (m AccessMode) String() string {
	switch m {
	case ReadOnly:
		return "O_RDONLY"
	case WriteOnly:
		return "O_WRONLY"
	case ReadWrite:
		return "O_RDWR"
	default:
		return fmt.Sprintf("AccessMode(%d)", int(m))
	}
}

// ParseFlags turns a list of flag names ("O_RDWR", "O_CREAT", ...) into the
// numeric flag word. Unknown names are rejected.
func ParseFlags(names []string) (int, error) {
	flags := 0
	for _, n := range names {
		switch n {
		case "O_RDONLY":
			flags |= O_RDONLY
		case "O_WRONLY":
			flags |= O_WRONLY
		case "O_RDWR":
			flags |= O_RDWR
		case "O_CREAT":
			flags |= O_CREAT
		case "O_EXCL":
			flags |= O_EXCL
		case "O_TRUNC":
			flags |= O_TRUNC
		case "O_APPEND":
			flags |= O_APPEND
		default:
			return 0, fmt.Errorf("unknown open flag %q", n)
		}
	}
	return flags, nil
}

// ParseWhence resolves "SEEK_SET", "SEEK_CUR" or "SEEK_END".
func ParseWhence(name string) (int, error) {
	switch name {
	case "SEEK_SET":
		return SEEK_SET, nil
	case "SEEK_CUR":
		return SEEK_CUR, nil
	case "SEEK_END":
		return SEEK_END, nil
	default:
		return 0, fmt.Errorf("unknown whence %q", name)
	}
}
