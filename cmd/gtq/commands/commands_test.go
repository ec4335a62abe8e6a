package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-type-query/pkg/cfg"
	"github.com/l3aro/go-type-query/pkg/dfg"
)

const narrowingSource = `class A:
    pass

class B(A):
    pass

def check(x: A):
    if isinstance(x, B):
        print(x)
    print(x)
`

// workspace isolates config lookup and the stamp cache in temp dirs and
// writes the sample source.
func workspace(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "m.py")
	require.NoError(t, os.WriteFile(path, []byte(narrowingSource), 0644))
	return path
}

// run executes the root command. Every flag the tests use is passed
// explicitly since cobra keeps flag values between executions.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	RootCmd.SetOut(&buf)
	RootCmd.SetErr(&buf)
	RootCmd.SetArgs(args)
	defer RootCmd.SetArgs(nil)
	err := RootCmd.Execute()
	return buf.String(), err
}

func TestInferCommand(t *testing.T) {
	path := workspace(t)

	out, err := run(t, "infer", path, "check", "--var", "x", "--line", "9", "--ordinal=-1", "--quick=false", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "(line 9): B")

	out, err = run(t, "infer", path, "check", "--var", "x", "--line", "10", "--ordinal=-1", "--quick=true", "--json=true")
	require.NoError(t, err)
	var res struct {
		Type    string `json:"type"`
		Line    int    `json:"line"`
		Outcome string `json:"outcome"`
		Quick   bool   `json:"quick"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "A", res.Type)
	assert.Equal(t, 10, res.Line)
	assert.Equal(t, "resolved", res.Outcome)
	assert.True(t, res.Quick)

	assert.FileExists(t, filepath.Join(".gtq", "cache", "stamps.json"), "stamps are persisted")
}

func TestInferCommand_Errors(t *testing.T) {
	path := workspace(t)

	_, err := run(t, "infer", path, "missing", "--var", "x", "--line", "9", "--ordinal=-1", "--quick=false", "--json=false")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Available: check")

	_, err = run(t, "infer", path, "check", "--var", "x", "--line", "0", "--ordinal=-1", "--quick=false", "--json=false")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--line or --ordinal")

	_, err = run(t, "infer", filepath.Dir(path), "--var", "x", "--line", "1", "--ordinal=-1", "--quick=false", "--json=false")
	require.Error(t, err)
}

func TestFlowCommand_Document(t *testing.T) {
	path := workspace(t)
	docPath := filepath.Join(filepath.Dir(path), "check.json")

	_, err := run(t, "flow", path, "check", "--format", "json", "--output", docPath)
	require.NoError(t, err)

	doc, err := cfg.LoadDocument(docPath)
	require.NoError(t, err)
	assert.Equal(t, "check", doc.Scope)
	assert.Equal(t, []string{"A"}, doc.Classes["B"])

	// documents are accepted wherever python files are
	out, err := run(t, "infer", docPath, "--var", "x", "--line", "9", "--ordinal=-1", "--quick=false", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "(line 9): B")

	out, err = run(t, "flow", docPath, "--format", "text", "--output", "")
	require.NoError(t, err)
	assert.Contains(t, out, "=== Flow for scope: check ===")
	assert.Contains(t, out, "narrowing x is B")

	_, err = run(t, "flow", docPath, "--format", "xml", "--output", "")
	assert.Error(t, err)
}

func TestDefsAndSliceCommands(t *testing.T) {
	path := workspace(t)

	out, err := run(t, "defs", path, "check", "--var", "x", "--line", "9", "--ordinal=-1", "--json=true", "--chains=false")
	require.NoError(t, err)
	var defs []definitionOutput
	require.NoError(t, json.Unmarshal([]byte(out), &defs))
	require.Len(t, defs, 1)
	assert.Contains(t, defs[0].Op, "narrowing x is B")

	out, err = run(t, "slice", path, "check", "--var", "x", "--line", "9", "--ordinal=-1", "--json=true")
	require.NoError(t, err)
	var s sliceOutput
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, "x", s.Variable)
	assert.Contains(t, s.Instructions, s.Target)
	assert.Contains(t, s.Instructions, defs[0].Instruction)
}

func TestDefsCommand_Chains(t *testing.T) {
	path := workspace(t)

	out, err := run(t, "defs", path, "check", "--var", "", "--line", "0", "--ordinal=-1", "--json=true", "--chains=true")
	require.NoError(t, err)
	var edges []dfg.DataflowEdge
	require.NoError(t, json.Unmarshal([]byte(out), &edges))
	require.NotEmpty(t, edges)

	var narrowedLines []int
	for _, e := range edges {
		assert.Equal(t, dfg.RefTypeUse, e.UseRef.RefType)
		if e.VarName == "x" && e.DefRef.RefType == dfg.RefTypeNarrowing {
			narrowedLines = append(narrowedLines, e.UseRef.Line)
		}
	}
	assert.Contains(t, narrowedLines, 9)
	assert.NotContains(t, narrowedLines, 8, "the isinstance argument precedes the narrowing")

	_, err = run(t, "defs", path, "check", "--var", "", "--line", "9", "--ordinal=-1", "--json=true", "--chains=false")
	assert.Error(t, err)
}

func TestDoctorCommand(t *testing.T) {
	workspace(t)

	out, err := run(t, "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "Using config: defaults")
	assert.Contains(t, out, "tuple destructuring")
	assert.NotContains(t, out, "Error:")
}
