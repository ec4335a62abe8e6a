package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-type-query/pkg/cfg"
)

var flowCmd = &cobra.Command{
	Use:   "flow <file> [function]",
	Short: "Print or convert the instruction flow of a scope",
	Long: `Prints the instructions of a scope with their successors, or writes
the scope as a flow document (yaml, json or msgpack) that the other
commands accept in place of a Python file.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		t, err := loadTarget(args[0], functionArg(args), newLogger(c))
		if err != nil {
			return err
		}
		defer t.close()

		w := cmd.OutOrStdout()
		if path, _ := cmd.Flags().GetString("output"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "text" {
			printFlow(w, t.flow)
			return nil
		}
		f, err := cfg.ParseFormat(format)
		if err != nil {
			return err
		}
		return cfg.NewDocument(t.flow, t.classes).Encode(w, f)
	},
}

// printFlow prints the flow in human-readable format.
func printFlow(w io.Writer, flow *cfg.Flow) {
	fmt.Fprintf(w, "=== Flow for scope: %s ===\n", flow.Name)
	fmt.Fprintf(w, "Instructions (%d):\n", flow.Len())
	for i := 0; i < flow.Len(); i++ {
		inst := flow.At(i)
		fmt.Fprintf(w, "  %-40s line %-4d -> %v\n", inst.String(), inst.Line, inst.Succ)
	}
	fmt.Fprintf(w, "\nVariables: %v\n", flow.Variables())
}

func init() {
	flowCmd.Flags().StringP("format", "f", "text", "Output format: text, yaml, json or msgpack")
	flowCmd.Flags().StringP("output", "O", "", "Write to a file instead of stdout")
	RootCmd.AddCommand(flowCmd)
}
