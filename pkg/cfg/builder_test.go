package cfg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDiamond builds: entry; x = A; if cond { narrow x } ; merge; read x
func buildDiamond(t *testing.T) *Flow {
	t.Helper()
	b := NewBuilder("diamond")
	stmt := b.Node(Node{Parent: NoNode, Kind: NodeStatement, Line: 1})
	val := b.Node(Node{Parent: stmt, Kind: NodeExpression, Eval: EvalTyped, Type: "A", Line: 1})

	b.Emit(Plain{}, NoNode, 0)
	b.Emit(Write{Variable: "x", Value: val, TupleIndex: -1}, stmt, 1)
	cond := b.Emit(Plain{}, NoNode, 2)
	read := b.Emit(Read{Variable: "x"}, NoNode, 2)
	b.Emit(Narrowing{Variable: "x", Type: "B", Condition: cond, Target: read}, NoNode, 2)
	thenEnd := b.Pending()
	b.SetPending([]int{read})
	b.SetPending(append(b.Pending(), thenEnd...))
	merge := b.Emit(Plain{}, NoNode, 3)
	b.Negate(merge, cond)
	b.Emit(Read{Variable: "x"}, NoNode, 4)

	f, err := b.Build()
	require.NoError(t, err)
	return f
}

func TestBuilder_EmitLinksPending(t *testing.T) {
	f := buildDiamond(t)

	assert.Equal(t, 7, f.Len())
	assert.Equal(t, []int{1}, f.At(0).Succ)
	assert.Equal(t, []int{4, 5}, f.At(3).Succ)
	assert.ElementsMatch(t, []int{3, 4}, f.At(5).Pred)
	assert.Equal(t, []int{2}, f.At(5).Negates)
	assert.Empty(t, f.At(6).Succ)
	assert.Nil(t, f.At(7))
	assert.Nil(t, f.At(-1))
}

func TestBuilder_DeduplicatesEdgesAndNegations(t *testing.T) {
	b := NewBuilder("dup")
	a := b.Emit(Plain{}, NoNode, 0)
	c := b.Emit(Plain{}, NoNode, 0)
	b.Edge(a, c)
	b.Negate(c, a, a)

	f, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, []int{c}, f.At(a).Succ)
	assert.Equal(t, []int{a}, f.At(c).Negates)
}

func TestBuilder_Validation(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder)
	}{
		{
			name: "dangling successor",
			build: func(b *Builder) {
				o := b.Emit(Plain{}, NoNode, 0)
				b.Edge(o, 9)
			},
		},
		{
			name: "narrowing target is not a read",
			build: func(b *Builder) {
				c := b.Emit(Plain{}, NoNode, 0)
				b.Emit(Narrowing{Variable: "x", Type: "int", Condition: c, Target: c}, NoNode, 0)
			},
		},
		{
			name: "narrowing target reads another variable",
			build: func(b *Builder) {
				c := b.Emit(Plain{}, NoNode, 0)
				r := b.Emit(Read{Variable: "y"}, NoNode, 0)
				b.Emit(Narrowing{Variable: "x", Type: "int", Condition: c, Target: r}, NoNode, 0)
			},
		},
		{
			name: "write without variable",
			build: func(b *Builder) {
				b.Emit(Write{Value: NoNode, TupleIndex: -1}, NoNode, 0)
			},
		},
		{
			name: "bad element",
			build: func(b *Builder) {
				b.Emit(Read{Variable: "x"}, NodeID(3), 0)
			},
		},
		{
			name: "negates unknown condition",
			build: func(b *Builder) {
				o := b.Emit(Plain{}, NoNode, 0)
				b.Negate(o, 12)
			},
		},
		{
			name: "bad parent",
			build: func(b *Builder) {
				b.Node(Node{Parent: 5, Kind: NodeExpression})
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBuilder("bad")
			tc.build(b)
			_, err := b.Build()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidFlow))
		})
	}
}

func TestFlow_DependencyScopeAndReferences(t *testing.T) {
	b := NewBuilder("refs")
	stmt := b.Node(Node{Parent: NoNode, Kind: NodeStatement})
	call := b.Node(Node{Parent: stmt, Kind: NodeExpression})
	x := b.Node(Node{Parent: call, Kind: NodeReference, Name: "x"})
	attr := b.Node(Node{Parent: call, Kind: NodeReference, Name: "y", Qualified: true})
	arg := b.Node(Node{Parent: call, Kind: NodeExpression})
	z := b.Node(Node{Parent: arg, Kind: NodeReference, Name: "z"})
	lone := b.Node(Node{Parent: stmt, Kind: NodeReference, Name: "w"})

	b.Emit(Read{Variable: "x"}, x, 1)
	b.Emit(Read{Variable: "z"}, z, 1)
	f, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, call, f.DependencyScope(x))
	assert.Equal(t, call, f.DependencyScope(z))
	assert.Equal(t, call, f.DependencyScope(attr))
	assert.Equal(t, lone, f.DependencyScope(lone))
	assert.Equal(t, stmt, f.DependencyScope(stmt))
	assert.Equal(t, NoNode, f.DependencyScope(NoNode))

	assert.Equal(t, []NodeID{x, z}, f.References(call))
	assert.Equal(t, []NodeID{x, z, lone}, f.References(stmt))
	assert.Equal(t, []int{0}, f.InstructionsAt(x))
	assert.Empty(t, f.InstructionsAt(attr))
}

func TestFlow_LocateAndVariables(t *testing.T) {
	f := buildDiamond(t)

	assert.Equal(t, []string{"x"}, f.Variables())
	assert.Equal(t, 3, f.Locate("x", 2))
	assert.Equal(t, 1, f.Locate("x", 1))
	assert.Equal(t, 6, f.Locate("x", 4))
	assert.Equal(t, 5, f.Locate("y", 3))
	assert.Equal(t, -1, f.Locate("x", 99))
}

func TestInstruction_String(t *testing.T) {
	f := buildDiamond(t)

	assert.Equal(t, "1: write x", f.At(1).String())
	assert.Equal(t, "4: narrowing x is B (cond 2)", f.At(4).String())
	assert.Equal(t, "5: plain negates [2]", f.At(5).String())
	assert.Equal(t, "6: read x", f.At(6).String())
}
