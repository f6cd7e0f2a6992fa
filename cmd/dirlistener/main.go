// Command dirlistener tails an authoritative directory's change log and
// drives the handler modules registered to react to it.
package main

import (
	"fmt"
	"os"

	"github.com/dirlistener/dirlistener/cmd/dirlistener/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
