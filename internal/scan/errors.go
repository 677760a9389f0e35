package scan

import (
	"errors"
	"io/fs"
	"syscall"
)

// ErrorClass buckets filesystem errors by how the engine reacts to them.
type ErrorClass uint8

const (
	ErrorNone ErrorClass = iota
	// ErrorPermissionDenied is skipped, and reported unless configured not to.
	ErrorPermissionDenied
	// ErrorFileVanished is a race between listing and stat. Always silent.
	ErrorFileVanished
	// ErrorUnexpectedIO is logged and the single item is skipped.
	ErrorUnexpectedIO
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorNone:
		return "none"
	case ErrorPermissionDenied:
		return "permission_denied"
	case ErrorFileVanished:
		return "file_vanished"
	default:
		return "unexpected_io"
	}
}

// ClassifyError maps an OS error onto an ErrorClass.
func ClassifyError(err error) ErrorClass {
	switch {
	case err == nil:
		return ErrorNone
	case errors.Is(err, fs.ErrPermission):
		return ErrorPermissionDenied
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return ErrorFileVanished
	default:
		return ErrorUnexpectedIO
	}
}
