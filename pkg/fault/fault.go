// Package fault implements the invariant-violation path shared by the
// allocator, the filesystem backends and the session manager.
//
// Two classes of defect are distinguished from ordinary runtime errors:
//
//   - Traps: a caller misused an API (writing to a read-only backend,
//     streaming an entry that must be generated by its routine). Depending
//     on the configured Mode a trap either panics (debug) or is returned
//     to the caller as a *Violation (release).
//   - Fatal: state can no longer be trusted (heap guard corruption, an
//     unknown seek origin). Fatal always panics, whatever the Mode.
//
// Every violation matches ErrInvariant via errors.Is, so callers and tests
// can tell a defect apart from a recoverable error.
package fault

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/marmos91/webio/internal/logger"
)

// ErrInvariant is matched by every *Violation.
var ErrInvariant = errors.New("invariant violation")

// Mode selects how Trap reports a violation.
type Mode int32

const (
	// ModePanic logs and panics. This is the default.
	ModePanic Mode = iota

	// ModeError logs and returns the violation as an error.
	ModeError
)

// ParseMode maps a configuration value ("panic" or "error") to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "panic":
		return ModePanic, nil
	case "error":
		return ModeError, nil
	default:
		return ModePanic, fmt.Errorf("unknown trap mode %q", s)
	}
}

func (m Mode) String() string {
	if m == ModeError {
		return "error"
	}
	return "panic"
}

var mode atomic.Int32

// SetMode installs the process-wide trap mode and returns the previous one.
func SetMode(m Mode) Mode {
	return Mode(mode.Swap(int32(m)))
}

// CurrentMode returns the active trap mode.
func CurrentMode() Mode {
	return Mode(mode.Load())
}

// Violation describes a programming error detected at runtime.
type Violation struct {
	// Op is the operation that detected the problem (e.g. "embedded.write").
	Op string

	// Detail explains what was wrong.
	Detail string

	// Fatal is true for violations that always terminate.
	Fatal bool
}

func (v *Violation) Error() string {
	var b strings.Builder
	if v.Fatal {
		b.WriteString("fatal ")
	}
	b.WriteString("invariant violation in ")
	b.WriteString(v.Op)
	if v.Detail != "" {
		b.WriteString(": ")
		b.WriteString(v.Detail)
	}
	return b.String()
}

// Is reports whether target is ErrInvariant.
func (v *Violation) Is(target error) bool {
	return target == ErrInvariant
}

// Trap reports a caller defect. In ModePanic it never returns.
func Trap(op, format string, args ...any) error {
	v := &Violation{Op: op, Detail: fmt.Sprintf(format, args...)}
	logger.Error("trap: %s", v.Detail)

	if CurrentMode() == ModePanic {
		panic(v)
	}
	return v
}

// Fatal reports corrupted state. It always panics with a *Violation.
func Fatal(op, format string, args ...any) {
	v := &Violation{Op: op, Detail: fmt.Sprintf(format, args...), Fatal: true}
	logger.Error("fatal: %s: %s", op, v.Detail)
	panic(v)
}

// Recover converts a recovered panic value back into a *Violation. It
// returns nil when the panic was not raised by this package.
func Recover(r any) *Violation {
	if v, ok := r.(*Violation); ok {
		return v
	}
	return nil
}
