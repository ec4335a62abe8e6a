// Package main implements the go-type-query CLI (gtq).
// It infers flow-sensitive variable types in Python sources and flow
// documents, and exposes the flow, reaching definitions and slices the
// inference works from.
package main

import (
	"os"

	"github.com/l3aro/go-type-query/cmd/gtq/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.RootCmd.Version = version
	if buildTime != "" {
		commands.RootCmd.Version = version + " (built " + buildTime + ")"
	}
	commands.RootCmd.SetVersionTemplate(`gtq version {{.Version}}
`)

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
