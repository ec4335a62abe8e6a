package slicer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-type-query/pkg/cfg"
	"github.com/l3aro/go-type-query/pkg/dfa"
	"github.com/l3aro/go-type-query/pkg/dfg"
)

func compute(t *testing.T, f *cfg.Flow, target int, variable string) *Slice {
	t.Helper()
	defs, err := dfg.Compute(context.Background(), f, dfa.Options{})
	require.NoError(t, err)
	return Compute(f, target, variable, defs)
}

// y = A(); x = y; z = B(); use(x)
func assignmentFlow(t *testing.T) *cfg.Flow {
	t.Helper()
	b := cfg.NewBuilder("assign")

	s1 := b.Node(cfg.Node{Parent: cfg.NoNode, Kind: cfg.NodeStatement, Line: 1})
	a := b.Node(cfg.Node{Parent: s1, Kind: cfg.NodeExpression, Eval: cfg.EvalTyped, Type: "A", Line: 1})
	s2 := b.Node(cfg.Node{Parent: cfg.NoNode, Kind: cfg.NodeStatement, Line: 2})
	refY := b.Node(cfg.Node{Parent: s2, Kind: cfg.NodeReference, Name: "y", Eval: cfg.EvalReference, Line: 2})
	s3 := b.Node(cfg.Node{Parent: cfg.NoNode, Kind: cfg.NodeStatement, Line: 3})
	bb := b.Node(cfg.Node{Parent: s3, Kind: cfg.NodeExpression, Eval: cfg.EvalTyped, Type: "B", Line: 3})
	s4 := b.Node(cfg.Node{Parent: cfg.NoNode, Kind: cfg.NodeStatement, Line: 4})
	call := b.Node(cfg.Node{Parent: s4, Kind: cfg.NodeExpression, Line: 4})
	refX := b.Node(cfg.Node{Parent: call, Kind: cfg.NodeReference, Name: "x", Line: 4})

	b.Emit(cfg.Write{Variable: "y", Value: a, TupleIndex: -1}, s1, 1)
	b.Emit(cfg.Read{Variable: "y"}, refY, 2)
	b.Emit(cfg.Write{Variable: "x", Value: refY, TupleIndex: -1}, s2, 2)
	b.Emit(cfg.Write{Variable: "z", Value: bb, TupleIndex: -1}, s3, 3)
	b.Emit(cfg.Read{Variable: "x"}, refX, 4)

	f, err := b.Build()
	require.NoError(t, err)
	return f
}

func TestCompute_FollowsValueReferences(t *testing.T) {
	s := compute(t, assignmentFlow(t), 4, "x")

	assert.Equal(t, []int{0, 1, 2, 4}, s.Ordinals())
	assert.Equal(t, []Pair{
		{Instruction: 4, Variable: "x"},
		{Instruction: 2, Variable: "x"},
		{Instruction: 1, Variable: "y"},
		{Instruction: 0, Variable: "y"},
	}, s.Pairs)
	assert.True(t, s.Contains(2))
	assert.False(t, s.Contains(3))
}

func TestCompute_Narrowing(t *testing.T) {
	b := cfg.NewBuilder("narrow")
	b.Emit(cfg.Write{Variable: "x", Value: cfg.NoNode, TupleIndex: -1}, cfg.NoNode, 1)
	cond := b.Emit(cfg.Plain{}, cfg.NoNode, 2)
	read := b.Emit(cfg.Read{Variable: "x"}, cfg.NoNode, 2)
	b.Emit(cfg.Narrowing{Variable: "x", Type: "B", Condition: cond, Target: read}, cfg.NoNode, 2)
	use := b.Emit(cfg.Read{Variable: "x"}, cfg.NoNode, 3)
	f, err := b.Build()
	require.NoError(t, err)

	s := compute(t, f, use, "x")
	assert.Equal(t, []int{0, 2, 3, 4}, s.Ordinals())
	assert.Len(t, s.Pairs, 4)
}

func TestCompute_SelfReferenceTerminates(t *testing.T) {
	// x = x + 1 in a loop
	b := cfg.NewBuilder("loop")
	s0 := b.Node(cfg.Node{Parent: cfg.NoNode, Kind: cfg.NodeStatement})
	b.Emit(cfg.Write{Variable: "x", Value: b.Node(cfg.Node{Parent: s0, Kind: cfg.NodeExpression, Eval: cfg.EvalTyped, Type: "int"}), TupleIndex: -1}, s0, 1)
	head := b.Emit(cfg.Plain{}, cfg.NoNode, 2)
	stmt := b.Node(cfg.Node{Parent: cfg.NoNode, Kind: cfg.NodeStatement})
	sum := b.Node(cfg.Node{Parent: stmt, Kind: cfg.NodeExpression, Eval: cfg.EvalJoin})
	ref := b.Node(cfg.Node{Parent: sum, Kind: cfg.NodeReference, Name: "x", Eval: cfg.EvalReference})
	b.Emit(cfg.Read{Variable: "x"}, ref, 3)
	body := b.Emit(cfg.Write{Variable: "x", Value: sum, TupleIndex: -1}, stmt, 3)
	b.Edge(body, head)
	b.SetPending([]int{head})
	exit := b.Emit(cfg.Read{Variable: "x"}, cfg.NoNode, 4)
	f, err := b.Build()
	require.NoError(t, err)

	s := compute(t, f, exit, "x")
	assert.Equal(t, []int{0, 2, 3, 4}, s.Ordinals())
}

func TestCompute_EmptyQueries(t *testing.T) {
	f := assignmentFlow(t)

	assert.Empty(t, compute(t, f, 42, "x").Pairs)
	assert.Empty(t, compute(t, f, 4, "").Pairs)

	s := compute(t, f, 4, "unknown")
	assert.Equal(t, []int{4}, s.Ordinals())
}
