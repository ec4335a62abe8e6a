// Package commands provides the CLI commands for the go-type-query tool.
package commands

import (
	"github.com/spf13/cobra"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "gtq",
	Short: "go-type-query - Flow-sensitive type inference",
	Long: `go-type-query infers the type of a variable at a point in a function,
following assignments, destructuring and isinstance narrowing through the
control flow.

Inputs are Python files (a function is selected by name, "Class.method" for
methods, "<module>" or nothing for the module body) or flow documents in
YAML, JSON or msgpack.

Commands:
  infer       Infer the type of a variable at a line or instruction
  flow        Print or convert the instruction flow of a scope
  defs        Show the reaching definitions of a variable
  slice       Show the instructions a type query depends on
  init        Create a configuration file interactively
  doctor      Check the configuration and run canned inference scenarios

Use "gtq [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Config file path (default: project then global config)")
	RootCmd.PersistentFlags().BoolP("verbose", "V", false, "Debug logging")
}
