// Package dfg computes reaching definitions over a cfg.Flow and derives
// def-use chains from them.
package dfg

import (
	"slices"

	"github.com/l3aro/go-type-query/pkg/cfg"
)

// RefType represents the type of variable reference in data flow analysis.
type RefType string

const (
	RefTypeDefinition RefType = "definition" // Write
	RefTypeNarrowing  RefType = "narrowing"  // Runtime type test
	RefTypeArgument   RefType = "argument"   // Passed to a call
	RefTypeUse        RefType = "use"        // Read
)

// VarRef represents a variable reference at one instruction.
type VarRef struct {
	Name    string  `json:"name" yaml:"name"`
	RefType RefType `json:"ref_type" yaml:"ref_type"`
	Ordinal int     `json:"ordinal" yaml:"ordinal"`
	Line    int     `json:"line" yaml:"line"`
}

// DataflowEdge connects a definition to a use it reaches.
type DataflowEdge struct {
	DefRef  VarRef `json:"def_ref" yaml:"def_ref"`
	UseRef  VarRef `json:"use_ref" yaml:"use_ref"`
	VarName string `json:"var_name" yaml:"var_name"`
}

// DefinitionMap maps variable indexes to the sorted ordinals of the
// definitions reaching a program point. Values are immutable; every
// operation returns a new map sharing unchanged sets.
type DefinitionMap struct {
	defs [][]int
}

// Get returns the definitions of a variable, nil when none reach.
func (m DefinitionMap) Get(varIndex int) []int {
	if varIndex < 0 || varIndex >= len(m.defs) {
		return nil
	}
	return m.defs[varIndex]
}

// Define returns a map where varIndex is defined only by ordinal.
func (m DefinitionMap) Define(varIndex, ordinal int) DefinitionMap {
	size := max(len(m.defs), varIndex+1)
	defs := make([][]int, size)
	copy(defs, m.defs)
	defs[varIndex] = []int{ordinal}
	return DefinitionMap{defs: defs}
}

// Equal reports whether both maps hold the same definitions.
func (m DefinitionMap) Equal(o DefinitionMap) bool {
	n := max(len(m.defs), len(o.defs))
	for i := 0; i < n; i++ {
		if !slices.Equal(m.Get(i), o.Get(i)) {
			return false
		}
	}
	return true
}

// Join returns the per-variable union of m and o.
func (m DefinitionMap) Join(o DefinitionMap) DefinitionMap {
	n := max(len(m.defs), len(o.defs))
	defs := make([][]int, n)
	for i := 0; i < n; i++ {
		defs[i] = unionSorted(m.Get(i), o.Get(i))
	}
	return DefinitionMap{defs: defs}
}

func unionSorted(a, b []int) []int {
	switch {
	case len(a) == 0:
		return b
	case len(b) == 0, slices.Equal(a, b):
		return a
	}
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

func refOf(inst *cfg.Instruction) VarRef {
	ref := VarRef{Name: inst.Variable(), Ordinal: inst.Ordinal, Line: inst.Line}
	switch inst.Op.(type) {
	case cfg.Write:
		ref.RefType = RefTypeDefinition
	case cfg.Narrowing:
		ref.RefType = RefTypeNarrowing
	case cfg.Argument:
		ref.RefType = RefTypeArgument
	default:
		ref.RefType = RefTypeUse
	}
	return ref
}
