package commands

import (
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/webio/internal/cli/output"
)

var statsOutput string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print allocator usage per object kind",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(statsOutput)
		if err != nil {
			return err
		}

		_, rt, stop, err := start(cmd.Context())
		if err != nil {
			return err
		}
		defer stop()

		stats := rt.Manager.AllocStats()
		kinds := make([]string, 0, len(stats))
		for k := range stats {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)

		table := output.NewTable("kind", "blocks", "bytes", "max bytes", "total", "capacity")
		for _, k := range kinds {
			st := stats[k]
			table.AddRow(k,
				strconv.FormatUint(st.Blocks, 10),
				strconv.FormatUint(st.Bytes, 10),
				strconv.FormatUint(st.MaxBytes, 10),
				strconv.FormatUint(st.TotalBlocks, 10),
				strconv.Itoa(st.Capacity),
			)
		}

		return output.Print(cmd.OutOrStdout(), format, table, stats)
	},
}

func init() {
	statsCmd.Flags().StringVarP(&statsOutput, "output", "o", "table", "Output format (table|json|yaml)")
}
