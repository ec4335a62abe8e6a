package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-type-query/internal/config"
	"github.com/l3aro/go-type-query/pkg/dfa"
	"github.com/l3aro/go-type-query/pkg/dfg"
)

// definitionOutput is one reaching definition.
type definitionOutput struct {
	Instruction int    `json:"instruction"`
	Line        int    `json:"line"`
	Op          string `json:"op"`
}

var defsCmd = &cobra.Command{
	Use:   "defs <file> [function] (--var <name> (--line <n> | --ordinal <n>) | --chains)",
	Short: "Show the reaching definitions of a variable",
	Long: `Runs reaching-definitions analysis over the scope and lists the writes,
narrowings and call arguments of the variable that reach the queried
instruction. With --chains every read of the scope is listed together
with the definitions reaching it.`,
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

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if chains, _ := cmd.Flags().GetBool("chains"); chains {
			defs, err := reachingDefs(cmd.Context(), t, c)
			if err != nil {
				return err
			}
			edges := defs.DefUseChains()
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), edges)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Def-use chains (%d):\n", len(edges))
			for _, e := range edges {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s@%d (line %d) -> use@%d (line %d)\n",
					e.VarName, e.DefRef.RefType, e.DefRef.Ordinal, e.DefRef.Line, e.UseRef.Ordinal, e.UseRef.Line)
			}
			return nil
		}

		variable, line, ordinal := queryFlags(cmd)
		if variable == "" {
			return fmt.Errorf("--var is required unless --chains is set")
		}
		ordinal, err = t.resolveOrdinal(variable, line, ordinal)
		if err != nil {
			return err
		}

		defs, err := reachingDefs(cmd.Context(), t, c)
		if err != nil {
			return err
		}

		var out []definitionOutput
		for _, d := range defs.DefinitionsOf(variable, ordinal) {
			inst := t.flow.At(d)
			out = append(out, definitionOutput{Instruction: d, Line: inst.Line, Op: inst.String()})
		}

		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), out)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Definitions of %s reaching %d (%d):\n", variable, ordinal, len(out))
		for _, d := range out {
			fmt.Fprintf(cmd.OutOrStdout(), "  line %-4d %s\n", d.Line, d.Op)
		}
		return nil
	},
}

func reachingDefs(ctx context.Context, t *target, c *config.Config) (*dfg.ReachingDefs, error) {
	defs, err := dfg.Compute(ctx, t.flow, dfa.Options{
		Timeout:         c.DefinitionsTimeout,
		MaxInstructions: c.MaxInstructions,
	})
	if err != nil {
		return nil, fmt.Errorf("computing reaching definitions: %w", err)
	}
	return defs, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func init() {
	addQueryFlags(defsCmd, false)
	defsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	defsCmd.Flags().Bool("chains", false, "List def-use chains for every read")
	RootCmd.AddCommand(defsCmd)
}
