package commands

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/webio/internal/cli/output"
	"github.com/marmos91/webio/pkg/fsys/kv"
)

var lsOutput string

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List configured backends and the entries they expose",
	Long: `List every configured backend in lookup order.

Embedded backends list their entries with size and flags; key/value
backends list their stored files. Other backends only show their name.`,
	Args: cobra.NoArgs,
	RunE: runLs,
}

func init() {
	lsCmd.Flags().StringVarP(&lsOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

type lsEntry struct {
	Name  string `json:"name" yaml:"name"`
	Size  int64  `json:"size,omitempty" yaml:"size,omitempty"`
	Flags string `json:"flags,omitempty" yaml:"flags,omitempty"`
}

type lsMount struct {
	Priority int       `json:"priority" yaml:"priority"`
	Name     string    `json:"name" yaml:"name"`
	Type     string    `json:"type" yaml:"type"`
	Entries  []lsEntry `json:"entries,omitempty" yaml:"entries,omitempty"`
}

func runLs(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(lsOutput)
	if err != nil {
		return err
	}

	_, rt, stop, err := start(cmd.Context())
	if err != nil {
		return err
	}
	defer stop()

	var mounts []lsMount
	for i, m := range rt.Registry.Mounts() {
		lm := lsMount{Priority: i, Name: m.Name, Type: backendType(fmt.Sprintf("%T", m.Backend))}

		if e, ok := rt.Embedded[m.Name]; ok {
			for _, entry := range e.Table() {
				lm.Entries = append(lm.Entries, lsEntry{Name: entry.Name, Size: entry.Size(), Flags: entry.Flags.String()})
			}
		}

		if store, ok := m.Backend.(*kv.Backend); ok {
			names, err := store.Names()
			if err != nil {
				return fmt.Errorf("list %s: %w", m.Name, err)
			}
			sort.Strings(names)
			for _, name := range names {
				lm.Entries = append(lm.Entries, lsEntry{Name: name})
			}
		}

		mounts = append(mounts, lm)
	}

	table := output.NewTable("priority", "backend", "type", "entry", "size", "flags")
	for _, m := range mounts {
		prio := strconv.Itoa(m.Priority)
		if len(m.Entries) == 0 {
			table.AddRow(prio, m.Name, m.Type, "", "", "")
			continue
		}
		for _, e := range m.Entries {
			table.AddRow(prio, m.Name, m.Type, e.Name, strconv.FormatInt(e.Size, 10), e.Flags)
		}
	}

	return output.Print(cmd.OutOrStdout(), format, table, mounts)
}

// backendType turns "*embedded.Backend" into "embedded".
func backendType(t string) string {
	t = strings.TrimPrefix(t, "*")
	if i := strings.IndexByte(t, '.'); i > 0 {
		return t[:i]
	}
	return t
}
