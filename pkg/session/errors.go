package session

import "errors"

var (
	// ErrBadSession is returned for a session that has ended or was never
	// issued by the Manager.
	ErrBadSession = errors.New("invalid session")

	// ErrBadBuffer is returned for a transmit buffer that was freed or
	// never issued by the Manager.
	ErrBadBuffer = errors.New("invalid transmit buffer")

	// ErrBufferFull is returned when a write does not fit a transmit buffer.
	ErrBufferFull = errors.New("transmit buffer full")
)
