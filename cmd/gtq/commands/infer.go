package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-type-query/pkg/infer"
	"github.com/l3aro/go-type-query/pkg/types"
)

// inferOutput is the JSON form of an answer.
type inferOutput struct {
	Scope       string        `json:"scope"`
	Variable    string        `json:"variable"`
	Instruction int           `json:"instruction"`
	Line        int           `json:"line"`
	Type        string        `json:"type,omitempty"`
	Descriptor  string        `json:"descriptor,omitempty"`
	Outcome     infer.Outcome `json:"outcome"`
	Quick       bool          `json:"quick,omitempty"`
}

var inferCmd = &cobra.Command{
	Use:   "infer <file> [function] --var <name> (--line <n> | --ordinal <n>)",
	Short: "Infer the type of a variable",
	Long: `Infers the type of a variable after the instruction at a source line
(preferring a read of the variable on that line) or at an explicit
instruction ordinal.

With --quick the single-pass inference over reaching definitions is used
instead of the full slice-based analysis.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(c)

		t, err := loadTarget(args[0], functionArg(args), logger)
		if err != nil {
			return err
		}
		defer t.close()

		variable, line, ordinal := queryFlags(cmd)
		ordinal, err = t.resolveOrdinal(variable, line, ordinal)
		if err != nil {
			return err
		}

		quick, _ := cmd.Flags().GetBool("quick")
		e := infer.NewEngine(t.hierarchy, c.EngineOptions(logger))
		var res infer.Result
		if quick {
			res, err = e.QuickType(cmd.Context(), t.scope, variable, ordinal)
		} else {
			res, err = e.Infer(cmd.Context(), t.scope, variable, ordinal)
		}
		if err != nil {
			return fmt.Errorf("inferring %s: %w", variable, err)
		}

		out := inferOutput{
			Scope:       t.flow.Name,
			Variable:    variable,
			Instruction: ordinal,
			Line:        t.flow.At(ordinal).Line,
			Descriptor:  res.Descriptor,
			Outcome:     res.Outcome,
			Quick:       quick,
		}
		if res.Outcome == infer.Resolved {
			out.Type = types.String(res.Type)
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s @ %d (line %d): %s\n", variable, ordinal, out.Line, res)
		if c.Verbose && res.Descriptor != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  candidates: %s\n", res.Descriptor)
		}
		return nil
	},
}

func init() {
	addQueryFlags(inferCmd, true)
	inferCmd.Flags().BoolP("quick", "q", false, "Use quick inference")
	inferCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	RootCmd.AddCommand(inferCmd)
}
