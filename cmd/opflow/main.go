// Package main implements the opflow CLI. It lowers Go function bodies
// into control flow graphs and reports blocks, regions, and complexity.
package main

import (
	"os"

	"github.com/opflow-dev/opflow/cmd/opflow/commands"
)

var version = "dev"

func main() {
	commands.RootCmd.Version = version
	commands.RootCmd.SetVersionTemplate(`opflow version {{.Version}}
`)

	if err := commands.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
