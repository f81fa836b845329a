package commands

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/marmos91/webio/pkg/fsys/embedded"
)

var imageCmd = &cobra.Command{
	Use:   "image DIR OUTPUT",
	Short: "Pack a directory into an embedded image",
	Long: `Pack every regular file under DIR into an image that an embedded
backend can serve through its "image" option.

Entry names are paths relative to DIR with forward slashes. Files ending in
.ssi or .shtml are flagged SSI; their routine must be bound at runtime.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		afs := afero.NewOsFs()

		table, err := packDir(afs, args[0])
		if err != nil {
			return err
		}
		if err := writeImageFile(afs, args[1], table); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d entries to %s\n", len(table), args[1])
		return nil
	},
}

// packDir builds a table from the regular files under root.
func packDir(afs afero.Fs, root string) (embedded.Table, error) {
	var table embedded.Table

	err := afero.Walk(afs, root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		data, err := afero.ReadFile(afs, p)
		if err != nil {
			return err
		}

		name := filepath.ToSlash(rel)
		table = append(table, embedded.Entry{Name: name, Data: data, Flags: flagsFor(name)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", root, err)
	}

	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("pack %s: %w", root, err)
	}
	return table, nil
}

func flagsFor(name string) embedded.Flags {
	switch strings.ToLower(path.Ext(name)) {
	case ".ssi", ".shtml":
		return embedded.FlagSSI
	default:
		return 0
	}
}

func writeImageFile(afs afero.Fs, name string, table embedded.Table) error {
	f, err := afs.Create(name)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}

	if err := embedded.WriteImage(f, table); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
