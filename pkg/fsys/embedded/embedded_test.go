package embedded

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/marmos91/webio/pkg/alloc"
	"github.com/marmos91/webio/pkg/fault"
	"github.com/marmos91/webio/pkg/fsys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helpers
// ============================================================================

type bufSession struct {
	bytes.Buffer
	forms map[string]string
}

func (s *bufSession) ID() string { return "test-session" }

func (s *bufSession) FormValue(name string) (string, bool) {
	v, ok := s.forms[name]
	return v, ok
}

func sampleTable() Table {
	return Table{
		{Name: "index.html", Data: []byte("hi")},
		{Name: "about.html", Data: []byte("0123456789")},
		{Name: "memory.ssi", Flags: FlagSSI, Data: []byte("<!--#memory-->")},
		{Name: "login.cgi", Flags: FlagForm},
		{Name: "secret.html", Flags: FlagAuth, Data: []byte("classified")},
		{Name: "push.html", Flags: FlagPush},
	}
}

func newBackend(t *testing.T, cfg Config) *Backend {
	t.Helper()
	b, err := New(sampleTable(), cfg)
	require.NoError(t, err)
	return b
}

func open(t *testing.T, b *Backend, name string) fsys.Descriptor {
	t.Helper()
	d, err := b.Open(name, fsys.ModeRead)
	require.NoError(t, err)
	require.NotNil(t, d)
	return d
}

func trapMode(t *testing.T, m fault.Mode) {
	t.Helper()
	prev := fault.SetMode(m)
	t.Cleanup(func() { fault.SetMode(prev) })
}

// ============================================================================
// Open
// ============================================================================

func TestOpen_Scenario(t *testing.T) {
	b := newBackend(t, Config{})

	d := open(t, b, "index.html")

	buf := make([]byte, 2)
	n, err := b.Read(d, buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "hi", string(buf))

	n, err = b.Read(d, make([]byte, 1))
	require.NoError(t, err)
	assert.Zero(t, n, "read at end of data returns 0 bytes")

	require.NoError(t, b.Close(d))

	_, err = b.Read(d, buf)
	assert.ErrorIs(t, err, fsys.ErrBadFile)
}

func TestOpen_FailuresDoNotAllocate(t *testing.T) {
	b := newBackend(t, Config{})

	_, err := b.Open("missing.html", fsys.ModeRead)
	assert.ErrorIs(t, err, fsys.ErrNoFile)

	for _, mode := range []fsys.Mode{
		fsys.ModeWrite,
		fsys.ModeRead | fsys.ModeWrite,
		fsys.ModeWrite | fsys.ModeAppend | fsys.ModeCreate,
	} {
		_, err := b.Open("index.html", mode)
		assert.ErrorIs(t, err, fsys.ErrReadOnly, mode.String())
	}

	assert.Zero(t, b.OpenCount())
	assert.Zero(t, b.Stats().TotalBlocks)
}

func TestOpen_FirstCharacterCollisions(t *testing.T) {
	b, err := New(Table{
		{Name: "a.html", Data: []byte("A")},
		{Name: "ab.html", Data: []byte("AB")},
	}, Config{})
	require.NoError(t, err)

	d := open(t, b, "ab.html")
	out, err := io.ReadAll(reader{b, d})
	require.NoError(t, err)
	assert.Equal(t, "AB", string(out))

	_, err = b.Open("", fsys.ModeRead)
	assert.ErrorIs(t, err, fsys.ErrNoFile)
}

func TestOpen_PoolExhaustion(t *testing.T) {
	b := newBackend(t, Config{Strategy: alloc.StrategyPool, MaxOpen: 2})

	d1 := open(t, b, "index.html")
	open(t, b, "index.html")

	_, err := b.Open("index.html", fsys.ModeRead)
	assert.ErrorIs(t, err, fsys.ErrMemory)
	assert.ErrorIs(t, err, alloc.ErrExhausted)
	assert.Equal(t, 2, b.OpenCount())

	require.NoError(t, b.Close(d1))
	open(t, b, "about.html")
}

// ============================================================================
// Read
// ============================================================================

// reader adapts a descriptor to io.Reader for io.ReadAll.
type reader struct {
	b *Backend
	d fsys.Descriptor
}

func (r reader) Read(p []byte) (int, error) {
	n, err := r.b.Read(r.d, p)
	if err == nil && n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, err
}

func TestRead_SumOfChunksEqualsSize(t *testing.T) {
	b := newBackend(t, Config{})
	entry, _ := b.Lookup("about.html")

	for _, chunk := range []int{1, 3, 4, 10, 64} {
		d := open(t, b, "about.html")

		total := 0
		buf := make([]byte, chunk)
		for {
			n, err := b.Read(d, buf)
			require.NoError(t, err)
			if n == 0 {
				break
			}
			total += n
		}
		assert.Equal(t, int(entry.Size()), total, "chunk %d", chunk)
		require.NoError(t, b.Close(d))
	}
}

func TestRead_DynamicEntryTraps(t *testing.T) {
	trapMode(t, fault.ModePanic)
	b := newBackend(t, Config{})

	for _, name := range []string{"memory.ssi", "login.cgi"} {
		d := open(t, b, name)
		assert.Panics(t, func() { _, _ = b.Read(d, make([]byte, 8)) }, name)
	}
}

func TestRead_DynamicEntryReleaseMode(t *testing.T) {
	trapMode(t, fault.ModeError)
	b := newBackend(t, Config{})

	d := open(t, b, "memory.ssi")
	n, err := b.Read(d, make([]byte, 8))
	assert.Zero(t, n)
	assert.True(t, errors.Is(err, fault.ErrInvariant))
}

func TestRead_ForeignDescriptor(t *testing.T) {
	b := newBackend(t, Config{})

	for _, d := range []fsys.Descriptor{nil, "index.html", Handle(42)} {
		_, err := b.Read(d, make([]byte, 1))
		assert.ErrorIs(t, err, fsys.ErrBadFile)
	}
}

// ============================================================================
// Write
// ============================================================================

func TestWrite_Traps(t *testing.T) {
	trapMode(t, fault.ModePanic)
	b := newBackend(t, Config{})
	d := open(t, b, "index.html")

	assert.Panics(t, func() { _, _ = b.Write(d, []byte("x")) })
}

func TestWrite_InvalidDescriptorIsBadFile(t *testing.T) {
	trapMode(t, fault.ModePanic)
	b := newBackend(t, Config{})

	_, err := b.Write(Handle(7), []byte("x"))
	assert.ErrorIs(t, err, fsys.ErrBadFile)
}

// ============================================================================
// Seek / Tell
// ============================================================================

func TestSeek_InRange(t *testing.T) {
	b := newBackend(t, Config{})
	d := open(t, b, "about.html")

	for p := int64(0); p <= 10; p++ {
		require.NoError(t, b.Seek(d, p, fsys.SeekSet))
		pos, err := b.Tell(d)
		require.NoError(t, err)
		assert.Equal(t, p, pos)
	}

	require.NoError(t, b.Seek(d, -3, fsys.SeekEnd))
	pos, _ := b.Tell(d)
	assert.Equal(t, int64(7), pos)

	require.NoError(t, b.Seek(d, -2, fsys.SeekCur))
	pos, _ = b.Tell(d)
	assert.Equal(t, int64(5), pos)

	buf := make([]byte, 2)
	_, err := b.Read(d, buf)
	require.NoError(t, err)
	assert.Equal(t, "56", string(buf))
}

func TestSeek_OutOfRangeLeavesPosition(t *testing.T) {
	b := newBackend(t, Config{})
	d := open(t, b, "about.html")
	require.NoError(t, b.Seek(d, 4, fsys.SeekSet))

	cases := []struct {
		offset int64
		whence fsys.Whence
	}{
		{-1, fsys.SeekSet},
		{11, fsys.SeekSet},
		{-5, fsys.SeekCur},
		{7, fsys.SeekCur},
		{1, fsys.SeekEnd},
		{-11, fsys.SeekEnd},
	}
	for _, c := range cases {
		err := b.Seek(d, c.offset, c.whence)
		assert.ErrorIs(t, err, fsys.ErrBadParam, "%d %s", c.offset, c.whence)

		pos, err := b.Tell(d)
		require.NoError(t, err)
		assert.Equal(t, int64(4), pos)
	}
}

func TestSeek_UnknownWhenceIsFatal(t *testing.T) {
	trapMode(t, fault.ModeError)
	b := newBackend(t, Config{})
	d := open(t, b, "about.html")

	defer func() {
		v := fault.Recover(recover())
		require.NotNil(t, v)
		assert.True(t, v.Fatal)
	}()
	_ = b.Seek(d, 0, fsys.Whence(7))
	t.Fatal("unknown whence did not panic")
}

func TestTell_InvalidDescriptor(t *testing.T) {
	b := newBackend(t, Config{})
	pos, err := b.Tell(Handle(3))
	assert.Equal(t, int64(-1), pos)
	assert.ErrorIs(t, err, fsys.ErrBadFile)
}

// ============================================================================
// Close
// ============================================================================

func TestClose_Twice(t *testing.T) {
	for _, strategy := range []alloc.Strategy{alloc.StrategyHeap, alloc.StrategyPool} {
		t.Run(string(strategy), func(t *testing.T) {
			b := newBackend(t, Config{Strategy: strategy})
			d1 := open(t, b, "index.html")
			d2 := open(t, b, "about.html")

			require.NoError(t, b.Close(d1))
			assert.ErrorIs(t, b.Close(d1), fsys.ErrBadFile)

			assert.Equal(t, 1, b.OpenCount())
			assert.Equal(t, uint64(1), b.Stats().Blocks)

			// The surviving descriptor is unaffected.
			pos, err := b.Tell(d2)
			require.NoError(t, err)
			assert.Zero(t, pos)
			require.NoError(t, b.Close(d2))
			assert.Zero(t, b.OpenCount())
		})
	}
}

func TestClose_StaleDescriptorAfterReuse(t *testing.T) {
	for _, strategy := range []alloc.Strategy{alloc.StrategyHeap, alloc.StrategyPool} {
		t.Run(string(strategy), func(t *testing.T) {
			b := newBackend(t, Config{Strategy: strategy, MaxOpen: 1})

			d1 := open(t, b, "index.html")
			require.NoError(t, b.Close(d1))

			// The only slot is reused for the next open.
			d2 := open(t, b, "about.html")
			assert.NotEqual(t, d1, d2)

			buf := make([]byte, 4)
			n, err := b.Read(d1, buf)
			assert.ErrorIs(t, err, fsys.ErrBadFile)
			assert.Zero(t, n)
			assert.ErrorIs(t, b.Close(d1), fsys.ErrBadFile)

			// The new descriptor still reads from its own entry.
			assert.Equal(t, 1, b.OpenCount())
			n, err = b.Read(d2, buf)
			require.NoError(t, err)
			assert.Equal(t, "0123", string(buf[:n]))
			require.NoError(t, b.Close(d2))
		})
	}
}

func TestClose_ForeignDescriptor(t *testing.T) {
	b := newBackend(t, Config{})
	assert.ErrorIs(t, b.Close("nope"), fsys.ErrBadFile)
	assert.ErrorIs(t, b.Close(Handle(0)), fsys.ErrBadFile)
}

// ============================================================================
// Push
// ============================================================================

func TestPush_InvokesRoutine(t *testing.T) {
	trapMode(t, fault.ModePanic)

	table := sampleTable()
	var seen OpenFile
	require.NoError(t, table.Bind("memory.ssi", func(s fsys.Session, f OpenFile) error {
		seen = f
		_, err := io.WriteString(s, "blocks: 3")
		return err
	}))

	b, err := New(table, Config{})
	require.NoError(t, err)
	d := open(t, b, "memory.ssi")

	sess := &bufSession{}
	require.NoError(t, b.Push(d, sess))
	assert.Equal(t, "blocks: 3", sess.String())
	assert.Equal(t, "memory.ssi", seen.Entry.Name)
	assert.Equal(t, d, seen.Descriptor)

	// Reading the same entry as a byte stream still traps.
	assert.Panics(t, func() { _, _ = b.Read(d, make([]byte, 4)) })
}

func TestPush_WithoutRoutine(t *testing.T) {
	b := newBackend(t, Config{})
	d := open(t, b, "push.html")

	err := b.Push(d, &bufSession{})
	assert.ErrorIs(t, err, fsys.ErrBadFile)

	assert.ErrorIs(t, b.Push(Handle(99), &bufSession{}), fsys.ErrBadFile)
}

func TestPush_RoutineReadsForm(t *testing.T) {
	table := sampleTable()
	require.NoError(t, table.Bind("login.cgi", func(s fsys.Session, _ OpenFile) error {
		name, _ := s.FormValue("your_name")
		_, err := io.WriteString(s, "hello "+name)
		return err
	}))
	b, err := New(table, Config{})
	require.NoError(t, err)

	sess := &bufSession{forms: map[string]string{"your_name": "John"}}
	require.NoError(t, b.Push(open(t, b, "login.cgi"), sess))
	assert.Equal(t, "hello John", sess.String())
}

// ============================================================================
// Authentication
// ============================================================================

func TestAuthenticate(t *testing.T) {
	b := newBackend(t, Config{User: "test", Password: "test"})

	plain := open(t, b, "index.html")
	secret := open(t, b, "secret.html")

	assert.True(t, b.Authenticate(plain, "", ""))
	assert.True(t, b.Authenticate(secret, "TEST", "Test"), "case-insensitive")
	assert.False(t, b.Authenticate(secret, "test", "wrong"))
	assert.False(t, b.Authenticate(secret, "other", "test"))
	assert.False(t, b.Authenticate(Handle(50), "test", "test"))

	noCreds := newBackend(t, Config{})
	assert.False(t, noCreds.Authenticate(open(t, noCreds, "secret.html"), "", ""))
}

// ============================================================================
// Table
// ============================================================================

func TestTableValidate(t *testing.T) {
	assert.Error(t, Table{{Name: ""}}.Validate())
	assert.Error(t, Table{{Name: "a"}, {Name: "a"}}.Validate())
	assert.Error(t, Table{{Name: string(bytes.Repeat([]byte("x"), MaxNameLen+1))}}.Validate())
	assert.NoError(t, sampleTable().Validate())

	_, err := New(Table{{Name: "a"}, {Name: "a"}}, Config{})
	assert.Error(t, err)

	assert.ErrorIs(t, sampleTable().Bind("ghost", nil), fsys.ErrNoFile)
}

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "0", Flags(0).String())
	assert.Equal(t, "SSI|AUTH", (FlagSSI | FlagAuth).String())
	assert.True(t, FlagForm.Dynamic())
	assert.False(t, (FlagPush | FlagAuth).Dynamic())
}
