package dfg

import (
	"context"
	"fmt"

	"github.com/l3aro/go-type-query/pkg/cfg"
	"github.com/l3aro/go-type-query/pkg/dfa"
)

// ReachingDefs is the result of reaching-definitions analysis on one flow.
type ReachingDefs struct {
	flow   *cfg.Flow
	vars   []string
	index  map[string]int
	states []DefinitionMap
}

// reachingDefsInstance is the forward analysis: writes, narrowings and
// arguments replace the definitions of their variable with themselves.
type reachingDefsInstance struct {
	index map[string]int
}

func (r reachingDefsInstance) Initial() DefinitionMap { return DefinitionMap{} }

func (r reachingDefsInstance) Direction() dfa.Direction { return dfa.Forward }

func (r reachingDefsInstance) Transfer(in DefinitionMap, inst *cfg.Instruction) DefinitionMap {
	if !Defines(inst) {
		return in
	}
	return in.Define(r.index[inst.Variable()], inst.Ordinal)
}

// Semilattice joins definition maps by per-variable union.
type Semilattice struct{}

func (Semilattice) Join(states []DefinitionMap) DefinitionMap {
	var out DefinitionMap
	for _, s := range states {
		out = out.Join(s)
	}
	return out
}

func (Semilattice) Equal(a, b DefinitionMap) bool {
	return a.Equal(b)
}

// Defines reports whether the instruction defines its variable.
func Defines(inst *cfg.Instruction) bool {
	switch inst.Op.(type) {
	case cfg.Write, cfg.Narrowing, cfg.Argument:
		return true
	}
	return false
}

// Compute runs reaching-definitions analysis. Errors come from the solver
// (timeout, size limit, cancellation).
func Compute(ctx context.Context, flow *cfg.Flow, opts dfa.Options) (*ReachingDefs, error) {
	vars := flow.Variables()
	index := make(map[string]int, len(vars))
	for i, v := range vars {
		index[v] = i
	}

	states, err := dfa.Run[DefinitionMap](ctx, flow, reachingDefsInstance{index: index}, Semilattice{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to compute reaching definitions for %s: %w", flow.Name, err)
	}
	return &ReachingDefs{flow: flow, vars: vars, index: index, states: states}, nil
}

// Flow returns the analysed flow.
func (r *ReachingDefs) Flow() *cfg.Flow {
	return r.flow
}

// Variables returns the variables in index order.
func (r *ReachingDefs) Variables() []string {
	return r.vars
}

// VarIndex returns the index of a variable, -1 when the flow never
// mentions it.
func (r *ReachingDefs) VarIndex(name string) int {
	if i, ok := r.index[name]; ok {
		return i
	}
	return -1
}

// Definitions returns the ordinals of the definitions of a variable that
// reach the point after the instruction, nil when none do.
func (r *ReachingDefs) Definitions(varIndex, ordinal int) []int {
	if ordinal < 0 || ordinal >= len(r.states) {
		return nil
	}
	return r.states[ordinal].Get(varIndex)
}

// DefinitionsOf is Definitions by variable name.
func (r *ReachingDefs) DefinitionsOf(name string, ordinal int) []int {
	i := r.VarIndex(name)
	if i < 0 {
		return nil
	}
	return r.Definitions(i, ordinal)
}

// State returns the definition map after the instruction.
func (r *ReachingDefs) State(ordinal int) DefinitionMap {
	if ordinal < 0 || ordinal >= len(r.states) {
		return DefinitionMap{}
	}
	return r.states[ordinal]
}

// DefUseChains connects every read to the definitions reaching it.
func (r *ReachingDefs) DefUseChains() []DataflowEdge {
	var edges []DataflowEdge
	for i := range r.flow.Instructions {
		use := r.flow.At(i)
		if _, ok := use.Op.(cfg.Read); !ok {
			continue
		}
		name := use.Variable()
		for _, d := range r.DefinitionsOf(name, use.Ordinal) {
			edges = append(edges, DataflowEdge{
				DefRef:  refOf(r.flow.At(d)),
				UseRef:  refOf(use),
				VarName: name,
			})
		}
	}
	return edges
}
