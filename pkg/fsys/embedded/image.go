package embedded

import (
	"fmt"
	"io"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// An image is a Table serialised with XDR (RFC 4506) so content can be
// shipped as a file next to the binary instead of being compiled in.
// Routines are not serialised; bind them with Table.Bind after loading.
//
//	struct image {
//	    unsigned int magic;      /* "WFS1" */
//	    unsigned int version;
//	    imageEntry   entries<>;
//	};
//	struct imageEntry {
//	    string       name<32>;
//	    unsigned int flags;
//	    opaque       data<>;
//	};

const (
	imageMagic   uint32 = 0x57465331 // "WFS1"
	imageVersion uint32 = 1
)

type image struct {
	Magic   uint32
	Version uint32
	Entries []imageEntry
}

type imageEntry struct {
	Name  string
	Flags uint32
	Data  []byte
}

// WriteImage encodes t to w.
func WriteImage(w io.Writer, t Table) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("write image: %w", err)
	}

	img := image{
		Magic:   imageMagic,
		Version: imageVersion,
		Entries: make([]imageEntry, len(t)),
	}
	for i := range t {
		img.Entries[i] = imageEntry{
			Name:  t[i].Name,
			Flags: uint32(t[i].Flags),
			Data:  t[i].Data,
		}
	}

	if _, err := xdr.Marshal(w, &img); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}

// ReadImage decodes a table written by WriteImage.
func ReadImage(r io.Reader) (Table, error) {
	var img image
	if _, err := xdr.Unmarshal(r, &img); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	if img.Magic != imageMagic {
		return nil, fmt.Errorf("read image: bad magic 0x%08x", img.Magic)
	}
	if img.Version != imageVersion {
		return nil, fmt.Errorf("read image: unsupported version %d", img.Version)
	}

	t := make(Table, len(img.Entries))
	for i, e := range img.Entries {
		t[i] = Entry{
			Name:  e.Name,
			Flags: Flags(e.Flags),
			Data:  e.Data,
		}
	}

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return t, nil
}
