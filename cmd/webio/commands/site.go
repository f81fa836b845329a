package commands

import (
	"github.com/marmos91/webio/pkg/fsys/embedded"
)

// MemoryStatsEntry is the built-in entry that reports allocator usage.
const MemoryStatsEntry = "memory.ssi"

// Site returns the table served by embedded backends configured without an
// image.
func Site() embedded.Table {
	return embedded.Table{
		{
			Name: "index.html",
			Data: []byte("<html><head><title>webio</title></head>\n" +
				"<body><h1>webio</h1><p><a href=\"memory.ssi\">memory statistics</a></p></body></html>\n"),
		},
		{
			Name: "404.html",
			Data: []byte("<html><body><h1>404 Not Found</h1></body></html>\n"),
		},
		{
			Name:  MemoryStatsEntry,
			Flags: embedded.FlagSSI | embedded.FlagPush,
		},
		{
			Name:  "private.html",
			Data:  []byte("<html><body><h1>Restricted</h1></body></html>\n"),
			Flags: embedded.FlagAuth,
		},
	}
}
