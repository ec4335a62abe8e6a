package healthcheck

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/l3aro/go-type-query/internal/config"
	"github.com/l3aro/go-type-query/internal/log"
	"github.com/l3aro/go-type-query/pkg/cfg"
	"github.com/l3aro/go-type-query/pkg/frontend"
	"github.com/l3aro/go-type-query/pkg/infer"
	"github.com/l3aro/go-type-query/pkg/types"
)

// ScenarioStatus is the outcome of one canned inference scenario.
type ScenarioStatus struct {
	Name     string
	Expected string
	Got      string
	Status   string // "ok" or "error"
	Error    string
	Duration time.Duration
}

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	SavedPath      string
	SavedScope     string // "global" or "project"
	EffectivePath  string
	EffectiveScope string // "global" or "project"
	ConfigError    string
	Scenarios      []ScenarioStatus
}

// Healthy reports whether the config is valid and every scenario passed.
func (r *HealthCheckResult) Healthy() bool {
	if r.ConfigError != "" {
		return false
	}
	for _, s := range r.Scenarios {
		if s.Status != "ok" {
			return false
		}
	}
	return true
}

// scenario is a query with a known answer.
type scenario struct {
	name     string
	python   string // lowered with the frontend when set
	function string
	document string // YAML flow document otherwise
	variable string
	line     int
	expected string
	timeout  bool // run with a clock that always overruns
}

const narrowingPython = `class A:
    pass

class B(A):
    pass

def check(x: A):
    if isinstance(x, B):
        print(x)
    print(x)
`

const tuplePython = `def compute_tuple() -> tuple[int, str]:
    return 1, "a"

def use():
    x, y = compute_tuple()
    print(x)
    print(y)
`

// x = A()
// while cond:
//     if isinstance(x, B):
//         x = x
// use(x)
const chainDocument = `
scope: chain
classes:
  A: []
  B: [A]
nodes:
  - {id: 0, kind: statement, text: "x = x", line: 4}
  - {id: 1, parent: 0, kind: reference, name: x, line: 4}
instructions:
  - {op: write, var: x, type: A, line: 1}
  - {op: plain, line: 2, succ: [2, 7], negates: [2]}
  - {op: plain, line: 3}
  - {op: read, var: x, line: 3, succ: [4, 1]}
  - {op: narrowing, var: x, type: B, condition: 2, target: 3, line: 3}
  - {op: read, var: x, element: 1, line: 4}
  - {op: write, var: x, value: 1, element: 0, line: 4, succ: [1]}
  - {op: read, var: x, line: 5, end: true}
`

var scenarios = []scenario{
	{name: "narrowing inside branch", python: narrowingPython, function: "check", variable: "x", line: 9, expected: "B"},
	{name: "narrowing after branch", python: narrowingPython, function: "check", variable: "x", line: 10, expected: "A"},
	{name: "tuple destructuring", python: tuplePython, function: "use", variable: "y", line: 7, expected: "str"},
	{name: "loop with narrowing", document: chainDocument, variable: "x", line: 4, expected: "B"},
	{name: "timeout", document: chainDocument, variable: "x", line: 5, expected: "too_complex", timeout: true},
}

// Check performs a health check against the given config.
// savedPath is where the user saved config (may be empty outside init).
// effectivePath is the config file actually in use (considering priority).
func Check(ctx context.Context, c *config.Config, savedPath string, effectivePath string) (*HealthCheckResult, error) {
	if c == nil {
		return nil, fmt.Errorf("config is nil")
	}

	result := &HealthCheckResult{
		SavedPath:      savedPath,
		SavedScope:     scopeFromPath(savedPath),
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
	}
	if err := c.Validate(); err != nil {
		result.ConfigError = err.Error()
	}

	for _, s := range scenarios {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Scenarios = append(result.Scenarios, run(ctx, c, s))
	}
	return result, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}

	home, err := os.UserHomeDir()
	if err == nil {
		globalDir := filepath.Join(home, ".gtq")
		if strings.HasPrefix(path, globalDir) {
			return "global"
		}
	}
	return "project"
}

func run(ctx context.Context, c *config.Config, s scenario) ScenarioStatus {
	status := ScenarioStatus{Name: s.name, Expected: s.expected}
	start := time.Now()
	got, err := query(ctx, c, s)
	status.Duration = time.Since(start)

	switch {
	case err != nil:
		status.Status = "error"
		status.Error = err.Error()
	case got != s.expected:
		status.Got = got
		status.Status = "error"
		status.Error = fmt.Sprintf("expected %s, got %s", s.expected, got)
	default:
		status.Got = got
		status.Status = "ok"
	}
	return status
}

func query(ctx context.Context, c *config.Config, s scenario) (string, error) {
	h := types.NewHierarchy()
	var flow *cfg.Flow
	if s.python != "" {
		unit, err := frontend.ParsePython(ctx, []byte(s.python), s.function)
		if err != nil {
			return "", err
		}
		unit.Declare(h)
		flow = unit.Flow
	} else {
		doc, err := cfg.DecodeDocument(strings.NewReader(s.document), cfg.FormatYAML)
		if err != nil {
			return "", err
		}
		h.DeclareAll(doc.Classes)
		if flow, err = doc.Flow(); err != nil {
			return "", err
		}
	}

	ordinal := flow.Locate(s.variable, s.line)
	if ordinal < 0 {
		return "", fmt.Errorf("no instruction for %s at line %d", s.variable, s.line)
	}

	opts := c.EngineOptions(log.Nop())
	if s.timeout {
		if opts.InferenceTimeout <= 0 {
			opts.InferenceTimeout = time.Second
		}
		opts.DefinitionsTimeout = 0
		opts.Clock = steppingClock(2 * opts.InferenceTimeout)
	}
	e := infer.NewEngine(h, opts)
	res, err := e.Infer(ctx, infer.NewStaticScope(flow.Name, flow), s.variable, ordinal)
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

// steppingClock advances by step on every reading.
func steppingClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := time.Unix(0, 0)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}
