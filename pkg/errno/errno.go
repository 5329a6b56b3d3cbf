// Package errno defines the kernel-style error numbers returned by the
// descriptor syscalls and the classification used to reason about them.
//
// Usage Pattern:
//
//	n, err := proc.Read(ctx, fd, buf)
//	if errors.Is(err, errno.EBADF) {
//	    // descriptor unbound or opened write-only
//	}
//
// Backends wrap these values with extra context, exactly like the content
// store sentinels they replace:
//
//	return nil, fmt.Errorf("open %s: %w", path, errno.ENOENT)
package errno

import (
	"errors"
	"strconv"
)

// Errno is a numeric error code. Values follow the Linux numbering.
type Errno int

const (
	EPERM        Errno = 1
	ENOENT       Errno = 2
	EIO          Errno = 5
	EBADF        Errno = 9
	ENOMEM       Errno = 12
	EACCES       Errno = 13
	EFAULT       Errno = 14
	EBUSY        Errno = 16
	EEXIST       Errno = 17
	ENOTDIR      Errno = 20
	EISDIR       Errno = 21
	EINVAL       Errno = 22
	ENFILE       Errno = 23
	EMFILE       Errno = 24
	EFBIG        Errno = 27
	ENOSPC       Errno = 28
	ESPIPE       Errno = 29
	EROFS        Errno = 30
	ENAMETOOLONG Errno = 36
	ENOSYS       Errno = 38
)

var names = map[Errno]string{
	EPERM:        "operation not permitted",
	ENOENT:       "no such file or directory",
	EIO:          "input/output error",
	EBADF:        "bad file descriptor",
	ENOMEM:       "out of memory",
	EACCES:       "permission denied",
	EFAULT:       "bad address",
	EBUSY:        "device or resource busy",
	EEXIST:       "file exists",
	ENOTDIR:      "not a directory",
	EISDIR:       "is a directory",
	EINVAL:       "invalid argument",
	ENFILE:       "too many open files in system",
	EMFILE:       "too many open files",
	EFBIG:        "file too large",
	ENOSPC:       "no space left on device",
	ESPIPE:       "illegal seek",
	EROFS:        "read-only file system",
	ENAMETOOLONG: "file name too long",
	ENOSYS:       "function not implemented",
}

var symbols = map[Errno]string{
	EPERM:        "EPERM",
	ENOENT:       "ENOENT",
	EIO:          "EIO",
	EBADF:        "EBADF",
	ENOMEM:       "ENOMEM",
	EACCES:       "EACCES",
	EFAULT:       "EFAULT",
	EBUSY:        "EBUSY",
	EEXIST:       "EEXIST",
	ENOTDIR:      "ENOTDIR",
	EISDIR:       "EISDIR",
	EINVAL:       "EINVAL",
	ENFILE:       "ENFILE",
	EMFILE:       "EMFILE",
	EFBIG:        "EFBIG",
	ENOSPC:       "ENOSPC",
	ESPIPE:       "ESPIPE",
	EROFS:        "EROFS",
	ENAMETOOLONG: "ENAMETOOLONG",
	ENOSYS:       "ENOSYS",
}

// Error implements error.
func (e Errno) Error() string {
	if s, ok := names[e]; ok {
		return s
	}
	return "errno " + strconv.Itoa(int(e))
}

// Symbol returns the constant name, e.g. "EBADF".
func (e Errno) Symbol() string {
	if s, ok := symbols[e]; ok {
		return s
	}
	return "E" + strconv.Itoa(int(e))
}

// Parse resolves a symbol such as "EBADF" back to its Errno.
func Parse(symbol string) (Errno, bool) {
	for e, s := range symbols {
		if s == symbol {
			return e, true
		}
	}
	return 0, false
}

// Code returns the numeric errno carried by err. Errors that do not wrap an
// Errno are reported as EIO. A nil error is 0.
func Code(err error) int {
	if err == nil {
		return 0
	}
	var e Errno
	if errors.As(err, &e) {
		return int(e)
	}
	return int(EIO)
}
