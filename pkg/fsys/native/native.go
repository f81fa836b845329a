// Package native implements the host filesystem backend.
//
// Files are resolved below a root directory through an afero base-path
// filesystem, so names can never escape the root. Tests substitute an
// in-memory afero filesystem.
package native

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/afero"

	"github.com/marmos91/webio/pkg/fault"
	"github.com/marmos91/webio/pkg/fsys"
)

// file is the descriptor issued by this backend.
type file struct {
	f    afero.File
	name string
	mode fsys.Mode
}

// Backend serves files from a host directory.
type Backend struct {
	fs       afero.Fs
	readOnly bool
	open     map[*file]struct{}
}

var _ fsys.Backend = (*Backend)(nil)

// Config controls backend construction.
type Config struct {
	// Root is the directory served.
	Root string

	// ReadOnly rejects every open that requests write access.
	ReadOnly bool
}

// New serves cfg.Root from the host filesystem. The directory must exist.
func New(cfg Config) (*Backend, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("native backend: root is required")
	}

	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("native backend: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("native backend: %s is not a directory", cfg.Root)
	}

	return NewWithFs(afero.NewBasePathFs(afero.NewOsFs(), cfg.Root), cfg.ReadOnly), nil
}

// NewWithFs serves an arbitrary afero filesystem.
func NewWithFs(afs afero.Fs, readOnly bool) *Backend {
	return &Backend{
		fs:       afs,
		readOnly: readOnly,
		open:     make(map[*file]struct{}),
	}
}

// OpenCount returns the number of live descriptors.
func (b *Backend) OpenCount() int {
	return len(b.open)
}

func (b *Backend) Open(name string, mode fsys.Mode) (fsys.Descriptor, error) {
	if b.readOnly && !mode.ReadOnly() {
		return nil, fmt.Errorf("native open %q (%s): %w", name, mode, fsys.ErrReadOnly)
	}

	f, err := b.fs.OpenFile(name, osFlags(mode), 0644)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("native open %q: %w", name, fsys.ErrNoFile)
		}
		return nil, fmt.Errorf("native open %q: %w", name, err)
	}

	info, err := f.Stat()
	if err == nil && info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("native open %q: is a directory: %w", name, fsys.ErrNoFile)
	}

	d := &file{f: f, name: name, mode: mode}
	b.open[d] = struct{}{}
	return d, nil
}

// Read returns 0 and no error at end of file, matching the embedded backend.
func (b *Backend) Read(d fsys.Descriptor, p []byte) (int, error) {
	nf, err := b.verify("read", d)
	if err != nil {
		return 0, err
	}

	n, err := nf.f.Read(p)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	if err != nil {
		return n, fmt.Errorf("native read %q: %w", nf.name, err)
	}
	return n, nil
}

func (b *Backend) Write(d fsys.Descriptor, p []byte) (int, error) {
	nf, err := b.verify("write", d)
	if err != nil {
		return 0, err
	}
	if !nf.mode.Has(fsys.ModeWrite) {
		return 0, fmt.Errorf("native write %q: %w", nf.name, fsys.ErrReadOnly)
	}

	n, err := nf.f.Write(p)
	if err != nil {
		return n, fmt.Errorf("native write %q: %w", nf.name, err)
	}
	return n, nil
}

// Seek allows positions past the end of file, as the host does. Negative
// targets are ErrBadParam; an unknown whence is fatal.
func (b *Backend) Seek(d fsys.Descriptor, offset int64, whence fsys.Whence) error {
	nf, err := b.verify("seek", d)
	if err != nil {
		return err
	}

	switch whence {
	case fsys.SeekSet, fsys.SeekCur, fsys.SeekEnd:
	default:
		fault.Fatal("native.seek", "unknown whence %d", int(whence))
	}

	cur, err := nf.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("native seek %q: %w", nf.name, err)
	}

	var target int64
	switch whence {
	case fsys.SeekSet:
		target = offset
	case fsys.SeekCur:
		target = cur + offset
	case fsys.SeekEnd:
		info, err := nf.f.Stat()
		if err != nil {
			return fmt.Errorf("native seek %q: %w", nf.name, err)
		}
		target = info.Size() + offset
	}
	if target < 0 {
		return fmt.Errorf("native seek %q to %d: %w", nf.name, target, fsys.ErrBadParam)
	}

	if _, err := nf.f.Seek(target, io.SeekStart); err != nil {
		return fmt.Errorf("native seek %q: %w", nf.name, err)
	}
	return nil
}

func (b *Backend) Tell(d fsys.Descriptor) (int64, error) {
	nf, err := b.verify("tell", d)
	if err != nil {
		return -1, err
	}

	pos, err := nf.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return -1, fmt.Errorf("native tell %q: %w", nf.name, err)
	}
	return pos, nil
}

// Close forgets the descriptor even when the host close fails.
func (b *Backend) Close(d fsys.Descriptor) error {
	nf, err := b.verify("close", d)
	if err != nil {
		return err
	}
	delete(b.open, nf)

	if err := nf.f.Close(); err != nil {
		return fmt.Errorf("native close %q: %w", nf.name, err)
	}
	return nil
}

func (b *Backend) verify(op string, d fsys.Descriptor) (*file, error) {
	nf, ok := d.(*file)
	if !ok {
		return nil, fmt.Errorf("native %s %v: %w", op, d, fsys.ErrBadFile)
	}
	if _, live := b.open[nf]; !live {
		return nil, fmt.Errorf("native %s %q: %w", op, nf.name, fsys.ErrBadFile)
	}
	return nf, nil
}

func osFlags(m fsys.Mode) int {
	var flags int
	switch {
	case m.Has(fsys.ModeRead) && m.Has(fsys.ModeWrite):
		flags = os.O_RDWR
	case m.Has(fsys.ModeWrite):
		flags = os.O_WRONLY
	default:
		flags = os.O_RDONLY
	}
	if m.Has(fsys.ModeAppend) {
		flags |= os.O_APPEND
	}
	if m.Has(fsys.ModeCreate) {
		flags |= os.O_CREATE
	}
	if m.Has(fsys.ModeTruncate) {
		flags |= os.O_TRUNC
	}
	return flags
}
