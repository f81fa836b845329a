package alloc

import "errors"

var (
	// ErrExhausted indicates every slot of a pool is in use.
	ErrExhausted = errors.New("alloc: pool exhausted")

	// ErrBadHandle indicates a handle that does not belong to the allocator
	// or refers to a slot that is not in use.
	ErrBadHandle = errors.New("alloc: bad handle")
)
