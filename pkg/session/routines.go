package session

import (
	"fmt"
	"sort"

	"github.com/marmos91/webio/pkg/alloc"
	"github.com/marmos91/webio/pkg/fsys"
	"github.com/marmos91/webio/pkg/fsys/embedded"
)

// MemoryStatsRoutine returns an embedded routine that prints allocator
// usage, one line per kind, into the requesting session.
func MemoryStatsRoutine(reporter alloc.StatsReporter) embedded.Routine {
	return func(s fsys.Session, _ embedded.OpenFile) error {
		stats := reporter.AllocStats()

		kinds := make([]string, 0, len(stats))
		for k := range stats {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)

		for _, k := range kinds {
			st := stats[k]
			_, err := fmt.Fprintf(s, "%s: blocks %d, bytes %d, max bytes %d, total blocks %d\n",
				k, st.Blocks, st.Bytes, st.MaxBytes, st.TotalBlocks)
			if err != nil {
				return err
			}
		}
		return nil
	}
}
