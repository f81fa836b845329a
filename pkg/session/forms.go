package session

import (
	"fmt"

	"github.com/marmos91/webio/pkg/fsys"
)

// AddForm records a form field on the session. Allocator exhaustion is
// returned as ErrMemory.
func (m *Manager) AddForm(s *Session, name, value string) (*Form, error) {
	if err := m.live(s); err != nil {
		return nil, fmt.Errorf("add form %q: %w", name, err)
	}

	h, f, err := m.forms.Acquire()
	if err != nil {
		return nil, fmt.Errorf("add form %q: %w: %w", name, fsys.ErrMemory, err)
	}
	f.handle = h
	f.Name = name
	f.Value = value

	s.forms = append(s.forms, h)
	return f, nil
}

// FormValue returns the first field named name.
func (m *Manager) FormValue(s *Session, name string) (string, bool) {
	if m.live(s) != nil {
		return "", false
	}

	for _, h := range s.forms {
		if f, ok := m.forms.Get(h); ok && f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Forms returns the session's form fields in arrival order.
func (m *Manager) Forms(s *Session) []*Form {
	if m.live(s) != nil {
		return nil
	}

	out := make([]*Form, 0, len(s.forms))
	for _, h := range s.forms {
		if f, ok := m.forms.Get(h); ok {
			out = append(out, f)
		}
	}
	return out
}

// output is the fsys.Session handed to dynamic-content routines.
type output struct {
	m *Manager
	s *Session
}

var _ fsys.Session = (*output)(nil)

func (o *output) Write(p []byte) (int, error) { return o.m.write(o.s, p) }

func (o *output) ID() string { return o.s.id }

func (o *output) FormValue(name string) (string, bool) { return o.m.FormValue(o.s, name) }
