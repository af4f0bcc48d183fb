//go:build unix

package coreapi

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PlatformError wraps a raw OS error into a PlatformIO Error, resolving
// the symbolic errno name (ENOENT, ECONNRESET, EADDRINUSE, ...) when the
// underlying cause is a syscall errno. Non-errno causes are reported
// with an empty Code and the error's own text as Message.
func PlatformError(id ID, err error) *Error {
	if err == nil {
		return nil
	}

	if errno, ok := asErrno(err); ok {
		return &Error{
			Kind:    KindPlatformIO,
			Code:    errnoName(errno),
			Message: errno.Error(),
			ID:      id,
		}
	}

	return &Error{Kind: KindPlatformIO, Message: err.Error(), ID: id}
}

func asErrno(err error) (unix.Errno, bool) {
	for {
		if errno, ok := err.(unix.Errno); ok {
			return errno, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0, false
		}
		err = unwrapper.Unwrap()
		if err == nil {
			return 0, false
		}
	}
}

// errnoName maps common errno values to their symbolic C name. Values
// outside this table fall back to "E" followed by the decimal errno
// (e.g. "E95"), which is still useful to callers even though it isn't
// a symbolic name.
func errnoName(errno unix.Errno) string {
	switch errno {
	case unix.ENOENT:
		return "ENOENT"
	case unix.EEXIST:
		return "EEXIST"
	case unix.EACCES:
		return "EACCES"
	case unix.EPERM:
		return "EPERM"
	case unix.EBADF:
		return "EBADF"
	case unix.EINVAL:
		return "EINVAL"
	case unix.EMFILE:
		return "EMFILE"
	case unix.ENFILE:
		return "ENFILE"
	case unix.ENOTDIR:
		return "ENOTDIR"
	case unix.EISDIR:
		return "EISDIR"
	case unix.ENOSPC:
		return "ENOSPC"
	case unix.EROFS:
		return "EROFS"
	case unix.EPIPE:
		return "EPIPE"
	case unix.EAGAIN:
		return "EAGAIN"
	case unix.ECONNRESET:
		return "ECONNRESET"
	case unix.ECONNREFUSED:
		return "ECONNREFUSED"
	case unix.ECONNABORTED:
		return "ECONNABORTED"
	case unix.EADDRINUSE:
		return "EADDRINUSE"
	case unix.EADDRNOTAVAIL:
		return "EADDRNOTAVAIL"
	case unix.ENETUNREACH:
		return "ENETUNREACH"
	case unix.EHOSTUNREACH:
		return "EHOSTUNREACH"
	case unix.ETIMEDOUT:
		return "ETIMEDOUT"
	case unix.ENOTCONN:
		return "ENOTCONN"
	case unix.EALREADY:
		return "EALREADY"
	case unix.ENOTEMPTY:
		return "ENOTEMPTY"
	case unix.EXDEV:
		return "EXDEV"
	case unix.ELOOP:
		return "ELOOP"
	case unix.ENAMETOOLONG:
		return "ENAMETOOLONG"
	default:
		return fmt.Sprintf("E%d", int(errno))
	}
}
