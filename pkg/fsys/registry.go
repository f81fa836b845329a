package fsys

import (
	"errors"
	"fmt"

	"github.com/marmos91/webio/internal/logger"
	"github.com/marmos91/webio/pkg/fault"
)

// Mount is one registered backend together with its optional
// authentication hook.
type Mount struct {
	Name    string
	Backend Backend
	auth    Authenticator
}

// Authenticator returns the installed hook. When none was installed and the
// backend implements Authenticator itself, the backend is returned. A nil
// result means every access is allowed.
func (m *Mount) Authenticator() Authenticator {
	if m.auth != nil {
		return m.auth
	}
	if a, ok := m.Backend.(Authenticator); ok {
		return a
	}
	return nil
}

// Registry is the ordered list of backends consulted by Open.
//
// Backends are registered during initialisation. Once frozen the list is
// read-only; the only later mutation is installing an authentication hook.
// The Registry is not safe for concurrent mutation.
type Registry struct {
	mounts []*Mount
	frozen bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a backend. Earlier registrations have priority.
func (r *Registry) Register(name string, b Backend) error {
	if r.frozen {
		return fmt.Errorf("register %q: registry is frozen", name)
	}
	if b == nil {
		return fmt.Errorf("register %q: nil backend", name)
	}
	for _, m := range r.mounts {
		if m.Name == name {
			return fmt.Errorf("register %q: duplicate backend name", name)
		}
	}

	r.mounts = append(r.mounts, &Mount{Name: name, Backend: b})
	logger.Debug("Registered backend %q at priority %d", name, len(r.mounts)-1)
	return nil
}

// Freeze makes the backend list immutable.
func (r *Registry) Freeze() {
	r.frozen = true
}

// SetAuthenticator installs the authentication hook for the named backend.
func (r *Registry) SetAuthenticator(name string, a Authenticator) error {
	m := r.Lookup(name)
	if m == nil {
		return fmt.Errorf("set authenticator: unknown backend %q", name)
	}
	m.auth = a
	return nil
}

// Lookup returns the mount registered under name.
func (r *Registry) Lookup(name string) *Mount {
	for _, m := range r.mounts {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Mounts returns the backends in priority order.
func (r *Registry) Mounts() []*Mount {
	out := make([]*Mount, len(r.mounts))
	copy(out, r.mounts)
	return out
}

// Open tries each backend in order and returns the first descriptor issued.
// There is no fallback or merging: a backend that fails simply did not
// accept the name.
//
// Invariant violations raised by a backend are not swallowed.
//
// Parameters:
//   - name: Name passed unchanged to each backend's Open
//   - mode: Access mode requested by the caller
//
// Returns:
//   - *Mount: Backend that accepted the name
//   - Descriptor: Backend-specific descriptor, closed through Mount.Backend
//   - error: ErrNoFile when no backend accepts the name, or a
//     fault.ErrInvariant violation from a backend
func (r *Registry) Open(name string, mode Mode) (*Mount, Descriptor, error) {
	for _, m := range r.mounts {
		d, err := m.Backend.Open(name, mode)
		if err != nil {
			if errors.Is(err, fault.ErrInvariant) {
				return nil, nil, err
			}
			logger.Debug("Backend %q declined %q (%s): %v", m.Name, name, mode, err)
			continue
		}
		if d == nil {
			continue
		}
		return m, d, nil
	}

	return nil, nil, fmt.Errorf("open %q: %w", name, ErrNoFile)
}
