package session

import (
	"errors"
	"fmt"
	"slices"

	"github.com/marmos91/webio/internal/logger"
	"github.com/marmos91/webio/pkg/fsys"
)

// OpenFile opens name through the registry on behalf of s and links the
// resulting file at the head of the session's file list.
//
// Backends are tried in registration order and the first one to issue a
// descriptor owns the file. When the file cannot be tracked the backend
// descriptor is closed again before returning.
//
// Parameters:
//   - s: Live session the file is opened for
//   - name: Path or entry name, passed to each backend unchanged
//   - mode: fopen-style mode string ("r", "w+", "ab", ...)
//
// Returns:
//   - *File: Open file, valid until CloseFile or EndSession
//   - error: ErrBadSession for an ended session, ErrNoFile when no backend
//     accepts the name, ErrMemory when the file table is exhausted, or an
//     invariant violation raised by a backend
//
// Example:
//
//	f, err := mgr.OpenFile(sess, "index.html", "r")
//	if err != nil {
//	    return err
//	}
//	defer mgr.CloseFile(f)
func (m *Manager) OpenFile(s *Session, name string, mode string) (*File, error) {
	if err := m.live(s); err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}

	fm, err := fsys.ParseMode(mode)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}

	mount, d, err := m.registry.Open(name, fm)
	if err != nil {
		if m.metrics != nil && errors.Is(err, fsys.ErrNoFile) {
			m.metrics.OpenFailed("no_file")
		}
		return nil, err
	}

	h, f, err := m.files.Acquire()
	if err != nil {
		if cerr := mount.Backend.Close(d); cerr != nil {
			logger.Warn("Closing %q on %s after failed tracking: %v", name, mount.Name, cerr)
		}
		if m.metrics != nil {
			m.metrics.OpenFailed("memory")
		}
		return nil, fmt.Errorf("open %q: %w: %w", name, fsys.ErrMemory, err)
	}

	f.handle = h
	f.session = s.handle
	f.Name = name
	f.Mount = mount
	f.Desc = d

	s.files = slices.Insert(s.files, 0, h)

	if m.metrics != nil {
		m.metrics.FileOpened(mount.Name)
	}
	logger.Debug("Session %s opened %q on %s (%s)", s.id, name, mount.Name, fm)
	return f, nil
}

// Files returns the session's open files, newest first.
func (m *Manager) Files(s *Session) []*File {
	if m.live(s) != nil {
		return nil
	}

	out := make([]*File, 0, len(s.files))
	for _, h := range s.files {
		if f, ok := m.files.Get(h); ok {
			out = append(out, f)
		}
	}
	return out
}

// Read forwards to the file's backend.
func (m *Manager) Read(f *File, p []byte) (int, error) {
	if err := m.liveFile(f); err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}

	n, err := f.Mount.Backend.Read(f.Desc, p)
	if m.metrics != nil {
		m.metrics.BytesTransferred(f.Mount.Name, "read", n)
	}
	return n, err
}

// Write forwards to the file's backend.
func (m *Manager) Write(f *File, p []byte) (int, error) {
	if err := m.liveFile(f); err != nil {
		return 0, fmt.Errorf("write: %w", err)
	}

	n, err := f.Mount.Backend.Write(f.Desc, p)
	if m.metrics != nil {
		m.metrics.BytesTransferred(f.Mount.Name, "write", n)
	}
	return n, err
}

// Seek forwards to the file's backend.
func (m *Manager) Seek(f *File, offset int64, whence fsys.Whence) error {
	if err := m.liveFile(f); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	return f.Mount.Backend.Seek(f.Desc, offset, whence)
}

// Tell forwards to the file's backend. It returns -1 on failure.
func (m *Manager) Tell(f *File) (int64, error) {
	if err := m.liveFile(f); err != nil {
		return -1, fmt.Errorf("tell: %w", err)
	}
	return f.Mount.Backend.Tell(f.Desc)
}

// CloseFile closes the backend descriptor, unlinks the file from its
// session and releases it. The file is released whatever the backend
// reports; the backend error is returned.
func (m *Manager) CloseFile(f *File) error {
	if err := m.liveFile(f); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	closeErr := f.Mount.Backend.Close(f.Desc)

	h := f.handle
	if s, ok := m.owner(f.session); ok {
		s.files, _ = removeHandle(s.files, h)
	}

	mountName := f.Mount.Name
	f.handle = 0
	f.session = 0
	f.Mount = nil
	f.Desc = nil
	if err := m.files.Release(h); err != nil {
		closeErr = errors.Join(closeErr, err)
	}

	if m.metrics != nil {
		m.metrics.FileClosed(mountName)
	}
	return closeErr
}

// Push runs the dynamic-content routine behind f, writing its output to
// the transmit queue of s. Backends without routines report ErrBadFile.
func (m *Manager) Push(f *File, s *Session) error {
	if err := m.liveFile(f); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	if err := m.live(s); err != nil {
		return fmt.Errorf("push: %w", err)
	}

	p, ok := f.Mount.Backend.(fsys.Pusher)
	if !ok {
		return fmt.Errorf("push %q: backend %s has no routines: %w", f.Name, f.Mount.Name, fsys.ErrBadFile)
	}
	return p.Push(f.Desc, &output{m: m, s: s})
}

// Authenticate asks the file's backend whether user may access it. Files
// on backends without an authenticator are always allowed; invalid files
// never are.
func (m *Manager) Authenticate(f *File, user, password string) bool {
	if m.liveFile(f) != nil {
		return false
	}

	a := f.Mount.Authenticator()
	if a == nil {
		return true
	}
	return a.Authenticate(f.Desc, user, password)
}

// SessionForDescriptor returns the live session holding d open.
func (m *Manager) SessionForDescriptor(d fsys.Descriptor) (*Session, bool) {
	if d == nil {
		return nil, false
	}

	for _, s := range m.Sessions() {
		for _, h := range s.files {
			if f, ok := m.files.Get(h); ok && f.Desc == d {
				return s, true
			}
		}
	}
	return nil, false
}

func (m *Manager) liveFile(f *File) error {
	if f == nil || f.handle == 0 {
		return fsys.ErrBadFile
	}
	if got, ok := m.files.Get(f.handle); !ok || got != f {
		return fsys.ErrBadFile
	}
	return nil
}
