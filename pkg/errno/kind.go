package errno

// Kind classifies an error returned by a descriptor syscall.
type Kind int

const (
	// KindNone is the classification of a nil error.
	KindNone Kind = iota

	// KindCapacity: descriptor table or open-file directory exhausted.
	KindCapacity

	// KindInvalidArgument: bad access mode, whence, resulting offset or
	// path argument, or a write whose end offset overflows.
	KindInvalidArgument

	// KindBadDescriptor: descriptor out of range, unbound, busy, or used
	// against its access mode.
	KindBadDescriptor

	// KindNotSeekable: lseek on an object that cannot seek.
	KindNotSeekable

	// KindOutOfMemory: allocation of kernel state failed.
	KindOutOfMemory

	// KindPropagated: anything produced below the kernel (vnode layer,
	// backends) and returned verbatim.
	KindPropagated
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCapacity:
		return "capacity"
	case KindInvalidArgument:
		return "invalid-argument"
	case KindBadDescriptor:
		return "bad-descriptor"
	case KindNotSeekable:
		return "not-seekable"
	case KindOutOfMemory:
		return "out-of-memory"
	case KindPropagated:
		return "propagated"
	default:
		return "unknown"
	}
}

// KindOf classifies err. Only errors that are exactly one of the kernel's own
// Errno values get a kernel kind; wrapped values come from a lower layer and
// are classified as propagated.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	e, ok := err.(Errno)
	if !ok {
		return KindPropagated
	}
	switch e {
	case EMFILE, ENFILE:
		return KindCapacity
	case EINVAL, EFAULT, ENAMETOOLONG, EFBIG:
		return KindInvalidArgument
	case EBADF, EBUSY:
		return KindBadDescriptor
	case ESPIPE:
		return KindNotSeekable
	case ENOMEM:
		return KindOutOfMemory
	default:
		return KindPropagated
	}
}
