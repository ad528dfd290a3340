package kevent

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Error is a multiplexer error carrying the errno a kqueue would return.
type Error struct {
	errno unix.Errno
	msg   string
}

func (e *Error) Error() string {
	return e.msg
}

// Errno returns the numeric error.
func (e *Error) Errno() unix.Errno {
	return e.errno
}

// Is matches both the sentinel itself and its bare errno.
func (e *Error) Is(target error) bool {
	if errno, ok := target.(unix.Errno); ok {
		return errno == e.errno
	}
	return false
}

// Sentinel errors. Returned errors wrap one of these.
var (
	ErrNoEntry       = &Error{unix.ENOENT, "no such registration"}
	ErrNoMemory      = &Error{unix.ENOMEM, "resource limit reached"}
	ErrInvalid       = &Error{unix.EINVAL, "invalid argument"}
	ErrBadDescriptor = &Error{unix.EBADF, "bad descriptor"}
	ErrNoProcess     = &Error{unix.ESRCH, "no such process"}
	ErrInterrupted   = &Error{unix.EINTR, "interrupted"}
	ErrBusy          = &Error{unix.EBUSY, "filter in use"}
	ErrClosed        = &Error{unix.EBADF, "instance closed"}
)

// Errno extracts the errno of err, or 0 when err carries none.
func Errno(err error) unix.Errno {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.errno
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return 0
}
