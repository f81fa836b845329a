// Package kv implements a backend that keeps whole files as values in a
// BadgerDB database.
//
// An open file is materialised in memory: reads and seeks work on that
// copy, and writes are committed back to the database in a single
// transaction when the descriptor is closed.
package kv

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/marmos91/webio/pkg/fault"
	"github.com/marmos91/webio/pkg/fsys"
)

const keyPrefix = "file:"

// Config controls backend construction.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps the database in RAM only.
	InMemory bool

	// ReadOnly rejects every open that requests write access.
	ReadOnly bool

	// BadgerOptions overrides every other setting when non-nil.
	BadgerOptions *badger.Options
}

// file is the descriptor issued by this backend.
type file struct {
	name  string
	data  []byte
	pos   int64
	mode  fsys.Mode
	dirty bool
}

// Backend stores files in BadgerDB.
type Backend struct {
	db       *badger.DB
	readOnly bool
	open     map[*file]struct{}
}

var _ fsys.Backend = (*Backend)(nil)

// New opens the database described by cfg.
func New(cfg Config) (*Backend, error) {
	var opts badger.Options
	switch {
	case cfg.BadgerOptions != nil:
		opts = *cfg.BadgerOptions
	case cfg.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	default:
		if cfg.Path == "" {
			return nil, fmt.Errorf("kv backend: path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	if cfg.BadgerOptions == nil {
		opts = opts.WithLoggingLevel(badger.WARNING)
		opts = opts.WithCompression(options.None)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.Path, err)
	}

	return &Backend{
		db:       db,
		readOnly: cfg.ReadOnly,
		open:     make(map[*file]struct{}),
	}, nil
}

// Shutdown closes the database. Open descriptors are discarded without
// committing.
func (b *Backend) Shutdown() error {
	b.open = make(map[*file]struct{})
	return b.db.Close()
}

// Put stores a whole file, replacing any previous content.
func (b *Backend) Put(name string, data []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(name), data)
	})
}

// Names lists stored files in key order.
func (b *Backend) Names() ([]string, error) {
	var names []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), keyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kv names: %w", err)
	}
	return names, nil
}

// OpenCount returns the number of live descriptors.
func (b *Backend) OpenCount() int {
	return len(b.open)
}

func (b *Backend) Open(name string, mode fsys.Mode) (fsys.Descriptor, error) {
	if b.readOnly && !mode.ReadOnly() {
		return nil, fmt.Errorf("kv open %q (%s): %w", name, mode, fsys.ErrReadOnly)
	}

	data, err := b.load(name)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		if !mode.Has(fsys.ModeCreate) {
			return nil, fmt.Errorf("kv open %q: %w", name, fsys.ErrNoFile)
		}
		data = nil
	case err != nil:
		return nil, fmt.Errorf("kv open %q: %w", name, err)
	}

	f := &file{name: name, data: data, mode: mode}
	if mode.Has(fsys.ModeTruncate) {
		f.data = nil
		f.dirty = true
	}
	if mode.Has(fsys.ModeCreate) && data == nil {
		f.dirty = true
	}

	b.open[f] = struct{}{}
	return f, nil
}

// Read returns 0 and no error at end of data.
func (b *Backend) Read(d fsys.Descriptor, p []byte) (int, error) {
	f, err := b.verify("read", d)
	if err != nil {
		return 0, err
	}
	if !f.mode.Has(fsys.ModeRead) {
		return 0, fmt.Errorf("kv read %q: opened write-only: %w", f.name, fsys.ErrBadFile)
	}

	n := copy(p, f.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

// Write overwrites from the current position, growing the file as needed.
// In append mode every write goes to the end.
func (b *Backend) Write(d fsys.Descriptor, p []byte) (int, error) {
	f, err := b.verify("write", d)
	if err != nil {
		return 0, err
	}
	if !f.mode.Has(fsys.ModeWrite) {
		return 0, fmt.Errorf("kv write %q: %w", f.name, fsys.ErrReadOnly)
	}

	if f.mode.Has(fsys.ModeAppend) {
		f.pos = int64(len(f.data))
	}

	end := f.pos + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[f.pos:], p)
	f.pos = end
	f.dirty = true
	return len(p), nil
}

// Seek accepts targets in [0, size]; anything else is ErrBadParam and
// leaves the position unchanged. An unknown whence is fatal.
func (b *Backend) Seek(d fsys.Descriptor, offset int64, whence fsys.Whence) error {
	f, err := b.verify("seek", d)
	if err != nil {
		return err
	}

	size := int64(len(f.data))

	var pos int64
	switch whence {
	case fsys.SeekSet:
		pos = offset
	case fsys.SeekCur:
		pos = f.pos + offset
	case fsys.SeekEnd:
		pos = size + offset
	default:
		fault.Fatal("kv.seek", "unknown whence %d", int(whence))
	}

	if pos < 0 || pos > size {
		return fmt.Errorf("kv seek %q to %d (size %d): %w", f.name, pos, size, fsys.ErrBadParam)
	}
	f.pos = pos
	return nil
}

func (b *Backend) Tell(d fsys.Descriptor) (int64, error) {
	f, err := b.verify("tell", d)
	if err != nil {
		return -1, err
	}
	return f.pos, nil
}

// Close commits pending writes. The descriptor is forgotten even when the
// commit fails.
func (b *Backend) Close(d fsys.Descriptor) error {
	f, err := b.verify("close", d)
	if err != nil {
		return err
	}
	delete(b.open, f)

	if !f.dirty {
		return nil
	}
	if err := b.Put(f.name, f.data); err != nil {
		return fmt.Errorf("kv close %q: commit: %w", f.name, err)
	}
	return nil
}

func (b *Backend) load(name string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(name))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	return data, err
}

func (b *Backend) verify(op string, d fsys.Descriptor) (*file, error) {
	f, ok := d.(*file)
	if !ok {
		return nil, fmt.Errorf("kv %s %v: %w", op, d, fsys.ErrBadFile)
	}
	if _, live := b.open[f]; !live {
		return nil, fmt.Errorf("kv %s %q: %w", op, f.name, fsys.ErrBadFile)
	}
	return f, nil
}

func key(name string) []byte {
	return []byte(keyPrefix + name)
}
