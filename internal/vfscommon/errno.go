// Package vfscommon holds the types shared by every layer of the VFS
// substrate: the small errno sum type, path helpers, open flags and the
// stat/dirent shapes every Backend speaks.
package vfscommon

import "fmt"

// Errno is a small sum type for the substrate's error taxonomy (spec §7).
// The vfs package returns it as-is alongside each result; Neg and FromNeg
// convert to and from the C-style negative-int form.
type Errno int

// The errno taxonomy named in spec.md §6: argument, lookup, conflict,
// permission, capacity, I/O, semantic and absence errors. Numeric values
// follow the familiar POSIX numbering so log dumps and error messages
// read the way a systems programmer expects.
const (
	OK         Errno = 0
	EPERM      Errno = 1
	ENOENT     Errno = 2
	EIO        Errno = 5
	EBADF      Errno = 9
	ENOMEM     Errno = 12
	EACCES     Errno = 13
	EEXIST     Errno = 17
	ENOTDIR    Errno = 20
	EISDIR     Errno = 21
	EINVAL     Errno = 22
	EMFILE     Errno = 24
	ENOSPC     Errno = 28
	ENOSYS     Errno = 38
	EPROTO     Errno = 71
	ETIMEDOUT  Errno = 110
	EALREADY   Errno = 114
)

var errnoText = map[Errno]string{
	OK:        "Success",
	EPERM:     "Operation not permitted",
	ENOENT:    "No such file or directory",
	EIO:       "Input/output error",
	EBADF:     "Bad file descriptor",
	ENOMEM:    "Cannot allocate memory",
	EACCES:    "Permission denied",
	EEXIST:    "File exists",
	ENOTDIR:   "Not a directory",
	EISDIR:    "Is a directory",
	EINVAL:    "Invalid argument",
	EMFILE:    "Too many open files",
	ENOSPC:    "No space left on device",
	ENOSYS:    "Function not implemented",
	EPROTO:    "Protocol error",
	ETIMEDOUT: "Connection timed out",
	EALREADY:  "Operation already in progress",
}

// Error implements error. Unknown codes print a generic low-level message
// rather than panicking, since a replay log or RPC peer can hand back an
// errno this process has never named.
func (e Errno) Error() string {
	if s, ok := errnoText[e]; ok {
		return s
	}
	return fmt.Sprintf("Low level error %d", int(e))
}

var errnoName = map[Errno]string{
	OK:        "OK",
	EPERM:     "EPERM",
	ENOENT:    "ENOENT",
	EIO:       "EIO",
	EBADF:     "EBADF",
	ENOMEM:    "ENOMEM",
	EACCES:    "EACCES",
	EEXIST:    "EEXIST",
	ENOTDIR:   "ENOTDIR",
	EISDIR:    "EISDIR",
	EINVAL:    "EINVAL",
	EMFILE:    "EMFILE",
	ENOSPC:    "ENOSPC",
	ENOSYS:    "ENOSYS",
	EPROTO:    "EPROTO",
	ETIMEDOUT: "ETIMEDOUT",
	EALREADY:  "EALREADY",
}

// Name returns the symbolic constant name ("EIO", "EPROTO", ...),
// used as a metrics label and in replay dump output where the numeric
// value alone isn't worth making an operator look up.
func (e Errno) Name() string {
	if s, ok := errnoName[e]; ok {
		return s
	}
	return fmt.Sprintf("E%d", int(e))
}

// Neg renders the errno as a negative int, the C-style
// "fd | negative errno" form (spec §6); OK renders as 0.
func (e Errno) Neg() int {
	if e == OK {
		return 0
	}
	return -int(e)
}

// FromNeg recovers an Errno from a negative-errno-or-nonneg return value.
// It is the inverse of Neg; every non-negative value maps to OK.
func FromNeg(v int) Errno {
	if v >= 0 {
		return OK
	}
	return Errno(-v)
}
