// Package session tracks per-connection state for the web server core: the
// sessions themselves, the transmit buffers queued on them, the files they
// have open and the form fields parsed from their requests.
//
// Everything is owned by a Manager. Objects live in alloc allocators and
// each session keeps ordered handle slices for its collections, so tearing
// a session down is a walk over those slices rather than pointer patching.
//
// A Manager is driven by a single goroutine. There is no internal locking;
// only Manager.AllocStats may be called from elsewhere.
package session

import (
	"fmt"
	"net"
	"time"

	"github.com/marmos91/webio/pkg/alloc"
	"github.com/marmos91/webio/pkg/fsys"
)

// TxBufSize is the capacity of one transmit buffer.
const TxBufSize = 1400

// DefaultIdleTimeout is how long a persistent connection may stay idle.
const DefaultIdleTimeout = 300 * time.Second

// State is the protocol engine's position in the request cycle.
type State uint8

const (
	// StateHeader waits for or parses request headers.
	StateHeader State = iota
	// StateContent receives a request body.
	StateContent
	// StateSending drains the transmit queue.
	StateSending
	// StateDone has finished the exchange.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateHeader:
		return "header"
	case StateContent:
		return "content"
	case StateSending:
		return "sending"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Flags are per-session condition bits.
type Flags uint32

const (
	// FlagReadingCmds means the session is ready to read a request.
	FlagReadingCmds Flags = 1 << iota
	// FlagPersistent keeps the connection open between requests.
	FlagPersistent
	// FlagAuthenticated records successful authentication.
	FlagAuthenticated
)

// Session is the state of one connection.
type Session struct {
	handle alloc.Handle
	id     string

	// Conn is the connection socket, nil when none is attached.
	Conn net.Conn

	State State
	Flags Flags

	// Last is the creation or last activity time.
	Last time.Time

	txbufs []alloc.Handle // FIFO
	files  []alloc.Handle // newest first
	forms  []alloc.Handle
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// TransmitBuffer is a fixed-size chunk of outbound bytes queued on a
// session.
type TransmitBuffer struct {
	handle  alloc.Handle
	session alloc.Handle
	data    [TxBufSize]byte
	n       int
}

// Bytes returns the staged data.
func (b *TransmitBuffer) Bytes() []byte { return b.data[:b.n] }

// Len returns the number of staged bytes.
func (b *TransmitBuffer) Len() int { return b.n }

// Available returns the free space left in the buffer.
func (b *TransmitBuffer) Available() int { return TxBufSize - b.n }

// Write stages as much of p as fits. It returns ErrBufferFull when p was
// cut short.
func (b *TransmitBuffer) Write(p []byte) (int, error) {
	n := copy(b.data[b.n:], p)
	b.n += n
	if n < len(p) {
		return n, ErrBufferFull
	}
	return n, nil
}

// Reset discards the staged data.
func (b *TransmitBuffer) Reset() { b.n = 0 }

// File binds a session to a backend descriptor.
type File struct {
	handle  alloc.Handle
	session alloc.Handle

	// Name is the path the file was opened with.
	Name string

	// Mount is the backend that accepted the open.
	Mount *fsys.Mount

	// Desc is the backend's descriptor.
	Desc fsys.Descriptor
}

// Form is one name/value pair parsed from a request.
type Form struct {
	handle alloc.Handle
	Name   string
	Value  string
}
