package session

import (
	"fmt"

	"github.com/marmos91/webio/internal/logger"
	"github.com/marmos91/webio/pkg/fsys"
)

// NewTransmitBuffer appends an empty buffer to the tail of the session's
// transmit queue. Allocator exhaustion is returned as ErrMemory.
func (m *Manager) NewTransmitBuffer(s *Session) (*TransmitBuffer, error) {
	if err := m.live(s); err != nil {
		return nil, fmt.Errorf("new transmit buffer: %w", err)
	}

	h, b, err := m.buffers.Acquire()
	if err != nil {
		return nil, fmt.Errorf("new transmit buffer: %w: %w", fsys.ErrMemory, err)
	}
	b.handle = h
	b.session = s.handle

	s.txbufs = append(s.txbufs, h)

	if m.metrics != nil {
		m.metrics.TransmitBuffers(int(m.buffers.Stats().Blocks))
	}
	return b, nil
}

// FreeTransmitBuffer unlinks the buffer from its session's queue if it is
// still there, then releases it. Callers normally unlink first through
// PopTransmitBuffer; the queue is searched regardless.
func (m *Manager) FreeTransmitBuffer(b *TransmitBuffer) error {
	if b == nil || b.handle == 0 {
		return fmt.Errorf("free transmit buffer: %w", ErrBadBuffer)
	}
	if got, ok := m.buffers.Get(b.handle); !ok || got != b {
		return fmt.Errorf("free transmit buffer: %w", ErrBadBuffer)
	}

	h := b.handle
	if s, ok := m.owner(b.session); ok {
		var found bool
		if s.txbufs, found = removeHandle(s.txbufs, h); found {
			logger.Debug("Session %s: transmit buffer %s freed while still queued", s.id, h)
		}
	}

	b.handle = 0
	b.session = 0
	b.n = 0
	if err := m.buffers.Release(h); err != nil {
		return fmt.Errorf("free transmit buffer: %w", err)
	}

	if m.metrics != nil {
		m.metrics.TransmitBuffers(int(m.buffers.Stats().Blocks))
	}
	return nil
}

// PopTransmitBuffer unlinks and returns the head of the session's transmit
// queue. The buffer stays allocated until FreeTransmitBuffer.
func (m *Manager) PopTransmitBuffer(s *Session) (*TransmitBuffer, bool) {
	if m.live(s) != nil {
		return nil, false
	}

	for len(s.txbufs) > 0 {
		h := s.txbufs[0]
		s.txbufs = s.txbufs[1:]
		if b, ok := m.buffers.Get(h); ok {
			return b, true
		}
	}
	return nil, false
}

// TransmitBuffers returns the session's transmit queue, head first.
func (m *Manager) TransmitBuffers(s *Session) []*TransmitBuffer {
	if m.live(s) != nil {
		return nil
	}

	out := make([]*TransmitBuffer, 0, len(s.txbufs))
	for _, h := range s.txbufs {
		if b, ok := m.buffers.Get(h); ok {
			out = append(out, b)
		}
	}
	return out
}

// Printf formats into the session's transmit queue, filling the tail buffer
// and appending new buffers as each one fills.
func (m *Manager) Printf(s *Session, format string, args ...any) (int, error) {
	return m.write(s, []byte(fmt.Sprintf(format, args...)))
}

// write stages p on the transmit queue. When a new buffer cannot be
// allocated the bytes staged so far are kept and the count returned with
// the error.
func (m *Manager) write(s *Session, p []byte) (int, error) {
	if err := m.live(s); err != nil {
		return 0, fmt.Errorf("write: %w", err)
	}

	written := 0
	for len(p) > 0 {
		b := m.tail(s)
		if b == nil || b.Available() == 0 {
			var err error
			if b, err = m.NewTransmitBuffer(s); err != nil {
				return written, err
			}
		}

		n, _ := b.Write(p)
		written += n
		p = p[n:]
	}
	return written, nil
}

func (m *Manager) tail(s *Session) *TransmitBuffer {
	if len(s.txbufs) == 0 {
		return nil
	}
	b, _ := m.buffers.Get(s.txbufs[len(s.txbufs)-1])
	return b
}
