package session

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/webio/internal/logger"
	"github.com/marmos91/webio/pkg/alloc"
	"github.com/marmos91/webio/pkg/fsys"
	"github.com/marmos91/webio/pkg/metrics"
)

// Teardown reasons reported to metrics.
const (
	reasonClosed   = "closed"
	reasonIdle     = "idle"
	reasonShutdown = "shutdown"
)

// Config controls Manager construction.
type Config struct {
	// Strategy selects the allocation discipline for every object kind.
	// Default: heap
	Strategy alloc.Strategy

	// Limits sizes the pools when Strategy is pool. Zero fields take the
	// value from alloc.DefaultLimits.
	Limits alloc.Limits

	// IdleTimeout is used by ExpireIdle.
	// Default: DefaultIdleTimeout
	IdleTimeout time.Duration

	// Metrics is optional; nil disables collection.
	Metrics metrics.SessionMetrics

	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.Strategy == "" {
		c.Strategy = alloc.StrategyHeap
	}

	def := alloc.DefaultLimits()
	if c.Limits.Sessions <= 0 {
		c.Limits.Sessions = def.Sessions
	}
	if c.Limits.Files <= 0 {
		c.Limits.Files = def.Files
	}
	if c.Limits.Buffers <= 0 {
		c.Limits.Buffers = def.Buffers
	}
	if c.Limits.Forms <= 0 {
		c.Limits.Forms = def.Forms
	}

	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Manager owns every session and the objects hanging off them, together
// with the backend registry files are opened through.
type Manager struct {
	registry *fsys.Registry

	sessions alloc.Allocator[Session]
	files    alloc.Allocator[File]
	buffers  alloc.Allocator[TransmitBuffer]
	forms    alloc.Allocator[Form]

	// list holds live sessions, newest first.
	list []alloc.Handle

	idleTimeout time.Duration
	metrics     metrics.SessionMetrics
	now         func() time.Time
}

// New creates a Manager opening files through registry.
func New(registry *fsys.Registry, cfg Config) *Manager {
	cfg.applyDefaults()

	return &Manager{
		registry:    registry,
		sessions:    alloc.New[Session](cfg.Strategy, "sessions", cfg.Limits.Sessions),
		files:       alloc.New[File](cfg.Strategy, "files", cfg.Limits.Files),
		buffers:     alloc.New[TransmitBuffer](cfg.Strategy, "buffers", cfg.Limits.Buffers),
		forms:       alloc.New[Form](cfg.Strategy, "forms", cfg.Limits.Forms),
		idleTimeout: cfg.IdleTimeout,
		metrics:     cfg.Metrics,
		now:         cfg.Now,
	}
}

// Registry returns the backend registry.
func (m *Manager) Registry() *fsys.Registry {
	return m.registry
}

// NewSession creates a session with no socket, in StateHeader, ready to
// read, and links it at the head of the session list. Allocator exhaustion
// is returned as ErrMemory.
func (m *Manager) NewSession() (*Session, error) {
	h, s, err := m.sessions.Acquire()
	if err != nil {
		return nil, fmt.Errorf("new session: %w: %w", fsys.ErrMemory, err)
	}

	s.handle = h
	s.id = uuid.NewString()
	s.Conn = nil
	s.State = StateHeader
	s.Last = m.now()
	s.Flags = FlagReadingCmds

	m.list = slices.Insert(m.list, 0, h)

	if m.metrics != nil {
		m.metrics.SessionStarted(len(m.list))
	}
	logger.Debug("Session %s created (%d live)", s.id, len(m.list))
	return s, nil
}

// EndSession tears a session down and releases it.
//
// Teardown order:
//  1. Close the connection, if one is attached
//  2. Unlink the session from the live list
//  3. Release every queued transmit buffer
//  4. Close every open file through its backend
//  5. Release form fields, then the session itself
//
// Teardown always runs to completion. Errors from closing the socket or
// files are logged and returned joined. Ending a session that has already
// ended is a no-op, even when its slot now holds a newer session.
//
// Parameters:
//   - s: Session to end
//
// Returns:
//   - error: Joined connection and file close errors, nil otherwise
func (m *Manager) EndSession(s *Session) error {
	return m.endSession(s, reasonClosed)
}

func (m *Manager) endSession(s *Session, reason string) error {
	if m.live(s) != nil {
		return nil
	}

	id := s.id
	var errs []error

	if s.Conn != nil {
		if err := s.Conn.Close(); err != nil {
			logger.Warn("Session %s: closing connection: %v", id, err)
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
		s.Conn = nil
	}

	m.list, _ = removeHandle(m.list, s.handle)

	for len(s.txbufs) > 0 {
		h := s.txbufs[0]
		s.txbufs = s.txbufs[1:]
		if err := m.buffers.Release(h); err != nil {
			logger.Warn("Session %s: releasing transmit buffer: %v", id, err)
		}
	}

	for len(s.files) > 0 {
		h := s.files[0]
		f, ok := m.files.Get(h)
		if !ok {
			s.files = s.files[1:]
			continue
		}
		name := f.Name
		if err := m.CloseFile(f); err != nil {
			logger.Warn("Session %s: closing %q: %v", id, name, err)
			errs = append(errs, err)
		}
	}

	for len(s.forms) > 0 {
		h := s.forms[0]
		s.forms = s.forms[1:]
		if err := m.forms.Release(h); err != nil {
			logger.Warn("Session %s: releasing form: %v", id, err)
		}
	}

	if err := m.sessions.Release(s.handle); err != nil {
		errs = append(errs, err)
	}

	if m.metrics != nil {
		m.metrics.SessionEnded(reason, len(m.list))
		m.metrics.TransmitBuffers(int(m.buffers.Stats().Blocks))
	}
	logger.Debug("Session %s ended (%s, %d live)", id, reason, len(m.list))

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	return nil
}

// Attach binds a connection to the session.
func (m *Manager) Attach(s *Session, conn net.Conn) error {
	if err := m.live(s); err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	s.Conn = conn
	s.Last = m.now()
	return nil
}

// Touch records activity on the session.
func (m *Manager) Touch(s *Session) {
	if m.live(s) == nil {
		s.Last = m.now()
	}
}

// Sessions returns the live sessions, newest first.
func (m *Manager) Sessions() []*Session {
	out := make([]*Session, 0, len(m.list))
	for _, h := range m.list {
		if s, ok := m.sessions.Get(h); ok {
			out = append(out, s)
		}
	}
	return out
}

// Lookup finds a live session by ID.
func (m *Manager) Lookup(id string) (*Session, bool) {
	for _, s := range m.Sessions() {
		if s.id == id {
			return s, true
		}
	}
	return nil, false
}

// ExpireIdle ends every session idle for longer than the configured
// timeout as of now, and returns how many were ended.
func (m *Manager) ExpireIdle(now time.Time) (int, error) {
	var errs []error
	expired := 0

	for _, s := range m.Sessions() {
		if now.Sub(s.Last) <= m.idleTimeout {
			continue
		}
		logger.Info("Session %s idle since %s, closing", s.id, s.Last.Format(time.RFC3339))
		if err := m.endSession(s, reasonIdle); err != nil {
			errs = append(errs, err)
		}
		expired++
	}

	return expired, errors.Join(errs...)
}

// Close ends every session.
func (m *Manager) Close() error {
	var errs []error
	for _, s := range m.Sessions() {
		if err := m.endSession(s, reasonShutdown); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AllocStats reports every allocator owned by the Manager plus the open
// file allocators of mounted backends that expose one.
//
// Unlike the rest of the Manager it may be called from any goroutine: it
// only reads allocator snapshots and the frozen mount list.
func (m *Manager) AllocStats() map[string]alloc.Stats {
	out := map[string]alloc.Stats{
		m.sessions.Kind(): m.sessions.Stats(),
		m.files.Kind():    m.files.Stats(),
		m.buffers.Kind():  m.buffers.Stats(),
		m.forms.Kind():    m.forms.Stats(),
	}

	if m.registry != nil {
		for _, mount := range m.registry.Mounts() {
			if r, ok := mount.Backend.(interface{ Stats() alloc.Stats }); ok {
				out[mount.Name+"_open_files"] = r.Stats()
			}
		}
	}
	return out
}

var _ alloc.StatsReporter = (*Manager)(nil)

// live reports whether s is a session currently held by the Manager.
func (m *Manager) live(s *Session) error {
	if s == nil || s.handle == 0 {
		return ErrBadSession
	}
	got, ok := m.sessions.Get(s.handle)
	if !ok || got != s {
		return ErrBadSession
	}
	return nil
}

func (m *Manager) owner(h alloc.Handle) (*Session, bool) {
	if h == 0 {
		return nil, false
	}
	return m.sessions.Get(h)
}

func removeHandle(hs []alloc.Handle, h alloc.Handle) ([]alloc.Handle, bool) {
	i := slices.Index(hs, h)
	if i < 0 {
		return hs, false
	}
	return slices.Delete(hs, i, i+1), true
}
