package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-type-query/pkg/slicer"
)

// sliceOutput is the JSON form of a dependency slice.
type sliceOutput struct {
	Target       int           `json:"target"`
	Variable     string        `json:"variable"`
	Instructions []int         `json:"instructions"`
	Pairs        []slicer.Pair `json:"pairs"`
}

var sliceCmd = &cobra.Command{
	Use:   "slice <file> [function] --var <name> (--line <n> | --ordinal <n>)",
	Short: "Show the instructions a type query depends on",
	Long: `Computes the dependency slice of a query: the (instruction, variable)
pairs reached backwards through reaching definitions and the references
inside each definition's expression. Only these instructions are
evaluated when the type is inferred.`,
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

		variable, line, ordinal := queryFlags(cmd)
		ordinal, err = t.resolveOrdinal(variable, line, ordinal)
		if err != nil {
			return err
		}

		defs, err := reachingDefs(cmd.Context(), t, c)
		if err != nil {
			return err
		}
		s := slicer.Compute(t.flow, ordinal, variable, defs)
		out := sliceOutput{
			Target:       s.Target,
			Variable:     s.Variable,
			Instructions: s.Ordinals(),
			Pairs:        s.Pairs,
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return writeJSON(cmd.OutOrStdout(), out)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Slice of %s @ %d: %d instructions\n", variable, ordinal, len(out.Instructions))
		for _, o := range out.Instructions {
			inst := t.flow.At(o)
			fmt.Fprintf(w, "  line %-4d %s\n", inst.Line, inst.String())
		}
		fmt.Fprintf(w, "\nPairs (%d):\n", len(out.Pairs))
		for _, p := range out.Pairs {
			fmt.Fprintf(w, "  %d %s\n", p.Instruction, p.Variable)
		}
		return nil
	},
}

func init() {
	addQueryFlags(sliceCmd, true)
	sliceCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	RootCmd.AddCommand(sliceCmd)
}
