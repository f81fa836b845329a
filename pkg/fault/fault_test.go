package fault

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withMode(t *testing.T, m Mode) {
	t.Helper()
	prev := SetMode(m)
	t.Cleanup(func() { SetMode(prev) })
}

func TestTrapPanicsByDefault(t *testing.T) {
	withMode(t, ModePanic)

	defer func() {
		v := Recover(recover())
		require.NotNil(t, v)
		assert.Equal(t, "embedded.write", v.Op)
		assert.False(t, v.Fatal)
		assert.ErrorIs(t, v, ErrInvariant)
	}()

	_ = Trap("embedded.write", "backend is read-only")
	t.Fatal("Trap returned in panic mode")
}

func TestTrapReturnsInErrorMode(t *testing.T) {
	withMode(t, ModeError)

	err := Trap("embedded.read", "entry %q is dynamic", "index.ssi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvariant))
	assert.Contains(t, err.Error(), `entry "index.ssi" is dynamic`)
}

func TestFatalIgnoresMode(t *testing.T) {
	withMode(t, ModeError)

	assert.PanicsWithError(t,
		"fatal invariant violation in alloc.release: lead marker",
		func() { Fatal("alloc.release", "lead marker") })
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModePanic, false},
		{"panic", ModePanic, false},
		{"ERROR", ModeError, false},
		{"abort", ModePanic, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecoverIgnoresForeignPanics(t *testing.T) {
	assert.Nil(t, Recover("boom"))
	assert.Nil(t, Recover(nil))
}
