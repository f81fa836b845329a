// Package fsys defines the storage backend contract used by the session
// file layer, the open-mode and seek-origin vocabulary shared by every
// backend, and the ordered Registry that dispatches opens.
//
// A backend hands out opaque Descriptors. Only the backend that issued a
// descriptor may interpret it; callers pass it back unchanged.
package fsys

import (
	"fmt"
	"io"
	"strings"
)

// Descriptor is a backend-private handle for one open file.
type Descriptor any

// Backend is the operation set every storage implementation provides.
//
// Open returns a non-nil descriptor on success. Any error means the backend
// does not accept the open; the Registry then tries the next backend.
type Backend interface {
	Open(name string, mode Mode) (Descriptor, error)
	Read(d Descriptor, p []byte) (int, error)
	Write(d Descriptor, p []byte) (int, error)
	Close(d Descriptor) error
	Seek(d Descriptor, offset int64, whence Whence) error
	Tell(d Descriptor) (int64, error)
}

// Authenticator is the optional per-file access hook.
type Authenticator interface {
	// Authenticate reports whether user may access the open file d.
	Authenticate(d Descriptor, user, password string) bool
}

// AuthFunc adapts a function to Authenticator.
type AuthFunc func(d Descriptor, user, password string) bool

func (f AuthFunc) Authenticate(d Descriptor, user, password string) bool {
	return f(d, user, password)
}

// Session is the view of a connection that dynamic-content routines get:
// they write generated output into it and may read submitted form values.
type Session interface {
	io.Writer

	// ID identifies the connection in logs.
	ID() string

	// FormValue returns a parsed form field.
	FormValue(name string) (string, bool)
}

// Pusher is implemented by backends whose files can be produced by a
// registered routine instead of being streamed.
type Pusher interface {
	Push(d Descriptor, s Session) error
}

// ============================================================================
// Open modes
// ============================================================================

// Mode is a set of access flags parsed from an fopen-style mode string.
type Mode uint8

const (
	ModeRead Mode = 1 << iota
	ModeWrite
	ModeAppend
	ModeCreate
	ModeTruncate
)

// ParseMode accepts the C stdio mode strings ("r", "w", "a", each with an
// optional "+" and "b"). Anything else is ErrBadParam.
func ParseMode(s string) (Mode, error) {
	base := strings.ReplaceAll(s, "b", "")

	var m Mode
	switch base {
	case "r":
		m = ModeRead
	case "r+":
		m = ModeRead | ModeWrite
	case "w":
		m = ModeWrite | ModeCreate | ModeTruncate
	case "w+":
		m = ModeRead | ModeWrite | ModeCreate | ModeTruncate
	case "a":
		m = ModeWrite | ModeAppend | ModeCreate
	case "a+":
		m = ModeRead | ModeWrite | ModeAppend | ModeCreate
	default:
		return 0, fmt.Errorf("mode %q: %w", s, ErrBadParam)
	}
	return m, nil
}

// ReadOnly reports whether the mode grants reading and nothing else.
func (m Mode) ReadOnly() bool {
	return m == ModeRead
}

func (m Mode) Has(flag Mode) bool {
	return m&flag != 0
}

func (m Mode) String() string {
	var parts []string
	for _, f := range []struct {
		flag Mode
		name string
	}{
		{ModeRead, "read"},
		{ModeWrite, "write"},
		{ModeAppend, "append"},
		{ModeCreate, "create"},
		{ModeTruncate, "truncate"},
	} {
		if m.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ============================================================================
// Seek origins
// ============================================================================

// Whence is the origin of a Seek. The values match io.SeekStart and friends.
type Whence int

const (
	SeekSet Whence = io.SeekStart
	SeekCur Whence = io.SeekCurrent
	SeekEnd Whence = io.SeekEnd
)

func (w Whence) String() string {
	switch w {
	case SeekSet:
		return "SEEK_SET"
	case SeekCur:
		return "SEEK_CUR"
	case SeekEnd:
		return "SEEK_END"
	default:
		return fmt.Sprintf("Whence(%d)", int(w))
	}
}
