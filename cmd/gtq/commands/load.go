package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-type-query/internal/config"
	"github.com/l3aro/go-type-query/internal/log"
	"github.com/l3aro/go-type-query/pkg/cfg"
	"github.com/l3aro/go-type-query/pkg/dirty"
	"github.com/l3aro/go-type-query/pkg/frontend"
	"github.com/l3aro/go-type-query/pkg/infer"
	"github.com/l3aro/go-type-query/pkg/types"
)

// target is the scope a command works on, lowered from a Python file or
// decoded from a flow document.
type target struct {
	path      string
	scope     infer.Scope
	flow      *cfg.Flow
	classes   map[string][]string
	hierarchy *types.Hierarchy
	tracker   *dirty.Tracker // nil for flow documents
}

// loadConfig loads the --config file when given and the layered config
// otherwise.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		c   *config.Config
		err error
	)
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		c, err = config.LoadFromFile(path)
	} else {
		c, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		c.Verbose = true
	}
	return c, nil
}

func newLogger(c *config.Config) log.Logger {
	return log.New(log.LoggerConfig{
		Level:      c.Level(),
		JSONOutput: c.JSONLogs,
		Colors:     os.Getenv("NO_COLOR") == "",
	})
}

// isPythonFile checks if the file has a .py extension.
func isPythonFile(filePath string) bool {
	return strings.HasSuffix(filePath, ".py")
}

// loadTarget opens a Python file or a flow document. The function name only
// applies to Python files.
func loadTarget(path, function string, logger log.Logger) (*target, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, expected a file: %s", path)
	}

	h := types.NewHierarchy()
	if !isPythonFile(path) {
		doc, err := cfg.LoadDocument(path)
		if err != nil {
			return nil, err
		}
		flow, err := doc.Flow()
		if err != nil {
			return nil, fmt.Errorf("building flow from %s: %w", path, err)
		}
		h.DeclareAll(doc.Classes)
		return &target{
			path:      path,
			scope:     infer.NewStaticScope(doc.Scope, flow),
			flow:      flow,
			classes:   doc.Classes,
			hierarchy: h,
		}, nil
	}

	tracker := dirty.New()
	if err := tracker.Load(); err != nil {
		logger.Warn("ignoring unreadable stamp cache", "error", err)
		tracker.Clear()
	}
	scope := frontend.NewFileScope(path, function, tracker, h)
	unit, err := scope.Unit()
	if err != nil {
		if errors.Is(err, frontend.ErrFunctionNotFound) {
			return nil, functionNotFound(path, function)
		}
		return nil, fmt.Errorf("lowering %s: %w", path, err)
	}
	logger.Debug("lowered python scope", "scope", scope.ID(), "instructions", unit.Flow.Len(), "generation", scope.ModificationStamp())
	return &target{
		path:      path,
		scope:     scope,
		flow:      unit.Flow,
		classes:   unit.ClassMap(),
		hierarchy: h,
		tracker:   tracker,
	}, nil
}

// functionNotFound lists the functions of the file in the error.
func functionNotFound(path, function string) error {
	unit, err := frontend.ParseFile(context.Background(), path, frontend.ModuleScope)
	if err != nil || len(unit.Functions) == 0 {
		return fmt.Errorf("function %q not found in %s", function, path)
	}
	return fmt.Errorf("function %q not found in %s\nAvailable: %s", function, path, strings.Join(unit.Names(), ", "))
}

// close persists the modification stamps of Python targets.
func (t *target) close() error {
	if t.tracker == nil {
		return nil
	}
	if err := t.tracker.Save(); err != nil {
		return fmt.Errorf("saving stamps: %w", err)
	}
	return nil
}

// resolveOrdinal picks the queried instruction from --ordinal or --line.
func (t *target) resolveOrdinal(variable string, line, ordinal int) (int, error) {
	if ordinal >= 0 {
		if ordinal >= t.flow.Len() {
			return 0, fmt.Errorf("instruction %d out of range (flow has %d)", ordinal, t.flow.Len())
		}
		return ordinal, nil
	}
	if line <= 0 {
		return 0, fmt.Errorf("either --line or --ordinal is required")
	}
	o := t.flow.Locate(variable, line)
	if o < 0 {
		return 0, fmt.Errorf("no instruction on line %d", line)
	}
	return o, nil
}

// functionArg returns the optional function argument.
func functionArg(args []string) string {
	if len(args) > 1 {
		return args[1]
	}
	return ""
}

// addQueryFlags registers the flags selecting a variable at an instruction.
func addQueryFlags(cmd *cobra.Command, requireVar bool) {
	cmd.Flags().StringP("var", "x", "", "Variable name")
	cmd.Flags().IntP("line", "l", 0, "Source line of the query")
	cmd.Flags().IntP("ordinal", "o", -1, "Instruction ordinal of the query (overrides --line)")
	if requireVar {
		_ = cmd.MarkFlagRequired("var")
	}
}

// queryFlags reads the flags added by addQueryFlags.
func queryFlags(cmd *cobra.Command) (variable string, line, ordinal int) {
	variable, _ = cmd.Flags().GetString("var")
	line, _ = cmd.Flags().GetInt("line")
	ordinal, _ = cmd.Flags().GetInt("ordinal")
	return variable, line, ordinal
}
