package fsys

import (
	"errors"
	"fmt"
	"testing"

	"github.com/marmos91/webio/pkg/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBackend accepts a fixed set of names and records open attempts.
type stubBackend struct {
	names   map[string]bool
	opens   int
	openErr error
}

func newStub(names ...string) *stubBackend {
	s := &stubBackend{names: make(map[string]bool)}
	for _, n := range names {
		s.names[n] = true
	}
	return s
}

func (s *stubBackend) Open(name string, mode Mode) (Descriptor, error) {
	s.opens++
	if s.openErr != nil {
		return nil, s.openErr
	}
	if !s.names[name] {
		return nil, fmt.Errorf("stub %q: %w", name, ErrNoFile)
	}
	return name, nil
}

func (s *stubBackend) Read(Descriptor, []byte) (int, error) { return 0, nil }
func (s *stubBackend) Write(Descriptor, []byte) (int, error) { return 0, nil }
func (s *stubBackend) Close(Descriptor) error { return nil }
func (s *stubBackend) Seek(Descriptor, int64, Whence) error { return nil }
func (s *stubBackend) Tell(Descriptor) (int64, error) { return 0, nil }

func TestRegistry_FirstBackendWins(t *testing.T) {
	first := newStub("index.html")
	second := newStub("index.html", "other.html")

	r := NewRegistry()
	require.NoError(t, r.Register("embedded", first))
	require.NoError(t, r.Register("native", second))

	m, d, err := r.Open("index.html", ModeRead)
	require.NoError(t, err)
	assert.Equal(t, "embedded", m.Name)
	assert.Equal(t, "index.html", d)
	assert.Equal(t, 0, second.opens, "later backends are not consulted after a hit")

	m, _, err = r.Open("other.html", ModeRead)
	require.NoError(t, err)
	assert.Equal(t, "native", m.Name)
}

func TestRegistry_NoBackendAccepts(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("embedded", newStub()))

	_, _, err := r.Open("missing", ModeRead)
	assert.ErrorIs(t, err, ErrNoFile)
}

func TestRegistry_ViolationStopsScan(t *testing.T) {
	prev := fault.SetMode(fault.ModeError)
	defer fault.SetMode(prev)

	broken := newStub()
	broken.openErr = fault.Trap("stub.open", "bad state")
	next := newStub("x")

	r := NewRegistry()
	require.NoError(t, r.Register("broken", broken))
	require.NoError(t, r.Register("next", next))

	_, _, err := r.Open("x", ModeRead)
	assert.True(t, errors.Is(err, fault.ErrInvariant))
	assert.Equal(t, 0, next.opens)
}

func TestRegistry_RegisterRules(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", newStub()))
	assert.Error(t, r.Register("a", newStub()), "duplicate name")
	assert.Error(t, r.Register("b", nil), "nil backend")

	r.Freeze()
	assert.Error(t, r.Register("c", newStub()), "frozen")
	assert.Len(t, r.Mounts(), 1)
}

type authStub struct {
	*stubBackend
}

func (authStub) Authenticate(Descriptor, string, string) bool { return false }

func TestRegistry_Authenticator(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("plain", newStub()))
	require.NoError(t, r.Register("self", authStub{newStub()}))
	r.Freeze()

	assert.Nil(t, r.Lookup("plain").Authenticator())
	require.NotNil(t, r.Lookup("self").Authenticator())
	assert.False(t, r.Lookup("self").Authenticator().Authenticate(nil, "", ""))

	// Installing a hook is allowed after freezing and overrides the backend.
	require.NoError(t, r.SetAuthenticator("self", AuthFunc(func(Descriptor, string, string) bool { return true })))
	assert.True(t, r.Lookup("self").Authenticator().Authenticate(nil, "", ""))

	assert.Error(t, r.SetAuthenticator("ghost", nil))
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in       string
		want     Mode
		readOnly bool
	}{
		{"r", ModeRead, true},
		{"rb", ModeRead, true},
		{"r+", ModeRead | ModeWrite, false},
		{"w", ModeWrite | ModeCreate | ModeTruncate, false},
		{"wb+", ModeRead | ModeWrite | ModeCreate | ModeTruncate, false},
		{"a", ModeWrite | ModeAppend | ModeCreate, false},
		{"a+", ModeRead | ModeWrite | ModeAppend | ModeCreate, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, err := ParseMode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m)
			assert.Equal(t, tt.readOnly, m.ReadOnly())
		})
	}

	_, err := ParseMode("x")
	assert.ErrorIs(t, err, ErrBadParam)
	_, err = ParseMode("")
	assert.ErrorIs(t, err, ErrBadParam)
}

func TestWhenceString(t *testing.T) {
	assert.Equal(t, "SEEK_END", SeekEnd.String())
	assert.Equal(t, "Whence(9)", Whence(9).String())
	assert.Equal(t, "read|write", (ModeRead | ModeWrite).String())
}
