package main

import (
	"fmt"
	"os"

	"github.com/marmos91/volumed/cmd/volumed/commands"
	"github.com/marmos91/volumed/internal/bootstrap"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Set version info for commands package
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(bootstrap.ExitCode(err))
	}
}
