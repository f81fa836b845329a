// Package embedded implements the read-only backend that serves the
// compiled-in content table.
//
// Every successful Open allocates an open-file record and pushes it on the
// backend's open list. Every other operation first validates the descriptor
// against that list, so a closed or forged descriptor is reported as
// fsys.ErrBadFile instead of touching released state.
//
// The backend is owned by the single goroutine driving the session core
// and performs no locking of its own.
package embedded

import (
	"fmt"
	"strings"

	"github.com/marmos91/webio/internal/logger"
	"github.com/marmos91/webio/pkg/alloc"
	"github.com/marmos91/webio/pkg/fault"
	"github.com/marmos91/webio/pkg/fsys"
)

// Handle is the descriptor type issued by this backend.
type Handle alloc.Handle

// openFile is the transient state of one open entry.
type openFile struct {
	entry    *Entry
	position int64
}

// Config controls backend construction.
type Config struct {
	// Strategy selects the allocator for open-file records.
	Strategy alloc.Strategy

	// MaxOpen bounds simultaneously open files under the pool strategy.
	MaxOpen int

	// User and Password guard entries flagged FlagAuth. When User is empty
	// such entries are always denied.
	User     string
	Password string
}

// Backend serves a Table.
type Backend struct {
	table Table
	files alloc.Allocator[openFile]

	// open lists live descriptors, most recent first.
	open []Handle

	user     string
	password string
}

var (
	_ fsys.Backend       = (*Backend)(nil)
	_ fsys.Authenticator = (*Backend)(nil)
	_ fsys.Pusher        = (*Backend)(nil)
)

// New validates the table and builds the backend.
func New(table Table, cfg Config) (*Backend, error) {
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("embedded table: %w", err)
	}

	strategy := cfg.Strategy
	if strategy == "" {
		strategy = alloc.StrategyHeap
	}
	maxOpen := cfg.MaxOpen
	if maxOpen <= 0 {
		maxOpen = alloc.DefaultLimits().EmbeddedFiles
	}

	return &Backend{
		table:    table,
		files:    alloc.New[openFile](strategy, "embedded_files", maxOpen),
		user:     cfg.User,
		password: cfg.Password,
	}, nil
}

// Table returns the served entries.
func (b *Backend) Table() Table {
	return b.table
}

// Lookup returns the entry called name.
func (b *Backend) Lookup(name string) (*Entry, bool) {
	i := b.table.index(name)
	if i < 0 {
		return nil, false
	}
	return &b.table[i], true
}

// OpenCount returns the number of live descriptors.
func (b *Backend) OpenCount() int {
	return len(b.open)
}

// Stats reports usage of the open-file allocator.
func (b *Backend) Stats() alloc.Stats {
	return b.files.Stats()
}

// Open accepts read-only opens of names present in the table.
func (b *Backend) Open(name string, mode fsys.Mode) (fsys.Descriptor, error) {
	if !mode.ReadOnly() {
		return nil, fmt.Errorf("embedded open %q (%s): %w", name, mode, fsys.ErrReadOnly)
	}

	entry, ok := b.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("embedded open %q: %w", name, fsys.ErrNoFile)
	}

	h, of, err := b.files.Acquire()
	if err != nil {
		return nil, fmt.Errorf("embedded open %q: %w: %w", name, fsys.ErrMemory, err)
	}
	of.entry = entry
	of.position = 0

	b.open = append([]Handle{Handle(h)}, b.open...)
	return Handle(h), nil
}

// Read copies from the current position and advances it. At end of data it
// returns 0 and no error. Dynamic entries (SSI, forms) cannot be streamed
// and trap.
func (b *Backend) Read(d fsys.Descriptor, p []byte) (int, error) {
	of, err := b.verify("read", d)
	if err != nil {
		return 0, err
	}

	if of.entry.Flags.Dynamic() {
		return 0, fault.Trap("embedded.read", "entry %q (%s) must be generated by its routine", of.entry.Name, of.entry.Flags)
	}

	n := copy(p, of.entry.Data[of.position:])
	of.position += int64(n)
	return n, nil
}

// Write always fails: embedded content is immutable, so reaching it is a
// caller defect.
func (b *Backend) Write(d fsys.Descriptor, p []byte) (int, error) {
	of, err := b.verify("write", d)
	if err != nil {
		return 0, err
	}
	return 0, fault.Trap("embedded.write", "write of %d bytes to read-only entry %q", len(p), of.entry.Name)
}

// Seek moves the position. Targets outside [0, size] are rejected with
// ErrBadParam and leave the position unchanged; an unknown whence is fatal.
func (b *Backend) Seek(d fsys.Descriptor, offset int64, whence fsys.Whence) error {
	of, err := b.verify("seek", d)
	if err != nil {
		return err
	}

	size := of.entry.Size()

	var pos int64
	switch whence {
	case fsys.SeekSet:
		pos = offset
	case fsys.SeekCur:
		pos = of.position + offset
	case fsys.SeekEnd:
		pos = size + offset
	default:
		fault.Fatal("embedded.seek", "unknown whence %d", int(whence))
	}

	if pos < 0 || pos > size {
		return fmt.Errorf("embedded seek %q to %d (size %d): %w", of.entry.Name, pos, size, fsys.ErrBadParam)
	}

	of.position = pos
	return nil
}

// Tell returns the position, or -1 with ErrBadFile for an invalid descriptor.
func (b *Backend) Tell(d fsys.Descriptor) (int64, error) {
	of, err := b.verify("tell", d)
	if err != nil {
		return -1, err
	}
	return of.position, nil
}

// Close unlinks the descriptor from the open list and releases it.
func (b *Backend) Close(d fsys.Descriptor) error {
	h, ok := d.(Handle)
	if !ok {
		return fmt.Errorf("embedded close %v: %w", d, fsys.ErrBadFile)
	}

	i := b.indexOpen(h)
	if i < 0 {
		return fmt.Errorf("embedded close %s: %w", alloc.Handle(h), fsys.ErrBadFile)
	}
	b.open = append(b.open[:i], b.open[i+1:]...)

	if err := b.files.Release(alloc.Handle(h)); err != nil {
		return fmt.Errorf("embedded close %s: %w", alloc.Handle(h), err)
	}
	return nil
}

// Push runs the entry's routine for s. Entries without a routine report
// ErrBadFile.
func (b *Backend) Push(d fsys.Descriptor, s fsys.Session) error {
	of, err := b.verify("push", d)
	if err != nil {
		return err
	}

	if of.entry.Routine == nil {
		return fmt.Errorf("embedded push %q: no routine: %w", of.entry.Name, fsys.ErrBadFile)
	}

	logger.Debug("Pushing %q to session %s", of.entry.Name, s.ID())
	return of.entry.Routine(s, OpenFile{
		Descriptor: d,
		Entry:      of.entry,
		Position:   of.position,
	})
}

// Authenticate allows unflagged entries. Entries flagged FlagAuth need the
// configured credentials; names and passwords compare case-insensitively.
func (b *Backend) Authenticate(d fsys.Descriptor, user, password string) bool {
	of, err := b.verify("authenticate", d)
	if err != nil {
		return false
	}

	if of.entry.Flags&FlagAuth == 0 {
		return true
	}
	if b.user == "" {
		return false
	}
	return strings.EqualFold(user, b.user) && strings.EqualFold(password, b.password)
}

// verify resolves d to its open-file record if it is on the open list.
// Descriptors closed before their slot was reused carry an older
// generation and are rejected.
func (b *Backend) verify(op string, d fsys.Descriptor) (*openFile, error) {
	h, ok := d.(Handle)
	if !ok || b.indexOpen(h) < 0 {
		return nil, fmt.Errorf("embedded %s %v: %w", op, d, fsys.ErrBadFile)
	}

	of, ok := b.files.Get(alloc.Handle(h))
	if !ok {
		return nil, fmt.Errorf("embedded %s %s: %w", op, alloc.Handle(h), fsys.ErrBadFile)
	}
	return of, nil
}

func (b *Backend) indexOpen(h Handle) int {
	for i, x := range b.open {
		if x == h {
			return i
		}
	}
	return -1
}
