package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealNarrowings_PartialMerge(t *testing.T) {
	// entry; cond; read x; narrow x; join(read, narrow) without negation
	b := NewBuilder("partial")
	b.Emit(Plain{}, NoNode, 0)
	cond := b.Emit(Plain{}, NoNode, 1)
	read := b.Emit(Read{Variable: "x"}, NoNode, 1)
	narrow := b.Emit(Narrowing{Variable: "x", Type: "B", Condition: cond, Target: read}, NoNode, 1)
	b.SetPending([]int{read, narrow})
	merge := b.Emit(Plain{}, NoNode, 2)
	after := b.Emit(Read{Variable: "x"}, NoNode, 3)

	f, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, 1, f.SealNarrowings())
	assert.Equal(t, []int{cond}, f.At(merge).Negates)
	assert.Empty(t, f.At(after).Negates)

	// sealing is idempotent
	assert.Equal(t, 0, f.SealNarrowings())
}

func TestSealNarrowings_KeepsFullyNarrowedAndNegatedMerges(t *testing.T) {
	f := buildDiamond(t)
	assert.Equal(t, 0, f.SealNarrowings(), "the merge already negates the condition")

	// both paths narrow under the same condition
	b := NewBuilder("both")
	b.Emit(Plain{}, NoNode, 0)
	cond := b.Emit(Plain{}, NoNode, 1)
	read := b.Emit(Read{Variable: "x"}, NoNode, 1)
	left := b.Emit(Narrowing{Variable: "x", Type: "B", Condition: cond, Target: read}, NoNode, 1)
	b.SetPending([]int{read})
	right := b.Emit(Narrowing{Variable: "x", Type: "B", Condition: cond, Target: read}, NoNode, 2)
	b.SetPending([]int{left, right})
	merge := b.Emit(Plain{}, NoNode, 3)

	f, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, 0, f.SealNarrowings())
	assert.Empty(t, f.At(merge).Negates)
}

func TestSealNarrowings_LoopBackEdge(t *testing.T) {
	// head; read x; narrow x; back to head; head exits
	b := NewBuilder("loop")
	b.Emit(Plain{}, NoNode, 0)
	head := b.Emit(Plain{}, NoNode, 1)
	cond := b.Emit(Plain{}, NoNode, 2)
	read := b.Emit(Read{Variable: "x"}, NoNode, 2)
	narrow := b.Emit(Narrowing{Variable: "x", Type: "B", Condition: cond, Target: read}, NoNode, 2)
	b.Edge(narrow, head)
	b.SetPending([]int{head})
	b.Emit(Read{Variable: "x"}, NoNode, 4)

	f, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, 1, f.SealNarrowings())
	assert.Equal(t, []int{cond}, f.At(head).Negates)
}

func TestSealNarrowings_NoNarrowings(t *testing.T) {
	b := NewBuilder("plain")
	a := b.Emit(Plain{}, NoNode, 0)
	c := b.Emit(Plain{}, NoNode, 1)
	b.SetPending([]int{a, c})
	b.Emit(Plain{}, NoNode, 2)

	f, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, 0, f.SealNarrowings())
}
