// Package main provides the entry point for the idrecon CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/idrecon/internal/cli"
)

// Version information, set with -ldflags at release time.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	root := cli.NewRootCommand()
	root.Version = fmt.Sprintf("%s (%s)", version, commit)

	if err := root.ExecuteContext(context.Background()); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
