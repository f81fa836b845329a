package fsys

import "errors"

// ============================================================================
// Standard Backend Errors
// ============================================================================

// These are the recoverable conditions of the file layer. Backends wrap them
// with context:
//
//	return fmt.Errorf("embedded read %v: %w", d, fsys.ErrBadFile)
//
// Programming errors (writing to a read-only backend, streaming dynamic
// content, unknown seek origins) are not reported through these values;
// they go through package fault and match fault.ErrInvariant instead.

var (
	// ErrNoFile indicates no backend accepted an open.
	ErrNoFile = errors.New("no such file")

	// ErrBadFile indicates a descriptor that is not currently open in the
	// backend it was passed to: closed, forged or issued by another backend.
	ErrBadFile = errors.New("bad file descriptor")

	// ErrBadParam indicates an argument outside its valid range, such as a
	// seek target beyond the end of the file.
	ErrBadParam = errors.New("bad parameter")

	// ErrMemory indicates an allocator could not provide an object.
	ErrMemory = errors.New("out of memory")

	// ErrReadOnly indicates a write attempt on a backend opened or built
	// for reading only.
	ErrReadOnly = errors.New("read-only file")

	// ErrAccess indicates the authentication hook denied access.
	ErrAccess = errors.New("access denied")
)
