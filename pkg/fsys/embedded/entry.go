package embedded

import (
	"fmt"
	"strings"

	"github.com/marmos91/webio/pkg/fsys"
)

// MaxNameLen is the longest entry name the content compiler emits.
const MaxNameLen = 32

// Flags describe how an entry is served.
type Flags uint32

const (
	// FlagSSI marks server-side-include content generated by the routine.
	FlagSSI Flags = 1 << iota

	// FlagPush marks content delivered by the routine through Push.
	FlagPush

	// FlagCExpr marks entries containing compiled C-expression tokens.
	FlagCExpr

	// FlagForm marks form handlers; the routine processes the submission.
	FlagForm

	// FlagAuth marks entries that require authentication.
	FlagAuth
)

// Dynamic reports whether the entry must be produced by its routine rather
// than streamed with Read.
func (f Flags) Dynamic() bool {
	return f&(FlagSSI|FlagForm) != 0
}

func (f Flags) String() string {
	var parts []string
	for _, x := range []struct {
		flag Flags
		name string
	}{
		{FlagSSI, "SSI"},
		{FlagPush, "PUSH"},
		{FlagCExpr, "CEXP"},
		{FlagForm, "FORM"},
		{FlagAuth, "AUTH"},
	} {
		if f&x.flag != 0 {
			parts = append(parts, x.name)
		}
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, "|")
}

// OpenFile is what a routine sees of the file it was invoked for.
type OpenFile struct {
	Descriptor fsys.Descriptor
	Entry      *Entry
	Position   int64
}

// Routine generates dynamic content for an entry into the session.
type Routine func(s fsys.Session, f OpenFile) error

// Entry is one compiled-in resource. Entries are immutable once placed in
// a Table.
type Entry struct {
	Name    string
	Data    []byte
	Flags   Flags
	Routine Routine
}

// Size is the entry length in bytes.
func (e *Entry) Size() int64 {
	return int64(len(e.Data))
}

// Table is the ordered set of embedded entries, scanned front to back.
type Table []Entry

// Validate checks names for emptiness, length and uniqueness.
func (t Table) Validate() error {
	seen := make(map[string]struct{}, len(t))
	for i := range t {
		name := t[i].Name
		if name == "" {
			return fmt.Errorf("entry %d: empty name", i)
		}
		if len(name) > MaxNameLen {
			return fmt.Errorf("entry %q: name longer than %d bytes", name, MaxNameLen)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("entry %q: duplicate name", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Bind attaches a routine to the named entry. It is meant for tables loaded
// from an image, where routines cannot be serialised.
func (t Table) Bind(name string, r Routine) error {
	i := t.index(name)
	if i < 0 {
		return fmt.Errorf("bind %q: %w", name, fsys.ErrNoFile)
	}
	t[i].Routine = r
	return nil
}

// index scans for name, comparing the first byte before the full name.
func (t Table) index(name string) int {
	if name == "" {
		return -1
	}
	first := name[0]
	for i := range t {
		n := t[i].Name
		if n == "" || n[0] != first {
			continue
		}
		if n == name {
			return i
		}
	}
	return -1
}
