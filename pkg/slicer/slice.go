// Package slicer computes the instructions a type query depends on. Starting
// from the queried (instruction, variable) pair it follows reaching
// definitions backwards, and for every definition it pulls in the variable
// references inside the definition's dependency scope, until no new pair is
// found.
package slicer

import (
	"cmp"
	"container/list"

	set "github.com/hashicorp/go-set/v3"

	"github.com/l3aro/go-type-query/pkg/cfg"
	"github.com/l3aro/go-type-query/pkg/dfg"
)

// Pair is a variable at an instruction.
type Pair struct {
	Instruction int    `json:"instruction" yaml:"instruction"`
	Variable    string `json:"variable" yaml:"variable"`
}

// Slice is the dependency closure of one query.
type Slice struct {
	Target   int
	Variable string

	// Instructions is the interesting set: every instruction of a processed
	// pair, in ordinal order.
	Instructions *set.TreeSet[int]

	// Pairs lists every processed pair in breadth-first order, the query
	// pair first.
	Pairs []Pair
}

// Contains reports whether the instruction is interesting.
func (s *Slice) Contains(ordinal int) bool {
	return s.Instructions.Contains(ordinal)
}

// Ordinals returns the interesting instructions in order.
func (s *Slice) Ordinals() []int {
	return s.Instructions.Slice()
}

// Compute slices flow for variable at the target instruction.
func Compute(flow *cfg.Flow, target int, variable string, defs *dfg.ReachingDefs) *Slice {
	s := &Slice{
		Target:       target,
		Variable:     variable,
		Instructions: set.NewTreeSet[int](cmp.Compare[int]),
	}
	if flow.At(target) == nil || variable == "" {
		return s
	}

	visited := set.New[Pair](0)
	queue := list.New()
	enqueue := func(p Pair) {
		if visited.Insert(p) {
			queue.PushBack(p)
		}
	}
	enqueue(Pair{Instruction: target, Variable: variable})

	for queue.Len() > 0 {
		p := queue.Remove(queue.Front()).(Pair)
		s.Pairs = append(s.Pairs, p)
		s.Instructions.Insert(p.Instruction)

		for _, d := range defs.DefinitionsOf(p.Variable, p.Instruction) {
			enqueue(Pair{Instruction: d, Variable: p.Variable})
		}

		inst := flow.At(p.Instruction)
		if !dfg.Defines(inst) || inst.Variable() != p.Variable {
			continue
		}
		if n, ok := inst.Op.(cfg.Narrowing); ok {
			enqueue(Pair{Instruction: n.Target, Variable: p.Variable})
		}
		for _, root := range scopeRoots(flow, inst) {
			for _, ref := range flow.References(root) {
				name := flow.Node(ref).Name
				for _, o := range flow.InstructionsAt(ref) {
					if flow.At(o).Variable() == name {
						enqueue(Pair{Instruction: o, Variable: name})
					}
				}
			}
		}
	}
	return s
}

// scopeRoots returns the dependency scopes of a defining instruction: the
// scope of its element and, for writes, of the written value.
func scopeRoots(flow *cfg.Flow, inst *cfg.Instruction) []cfg.NodeID {
	var roots []cfg.NodeID
	if inst.Element != cfg.NoNode {
		roots = append(roots, flow.DependencyScope(inst.Element))
	}
	if w, ok := inst.Op.(cfg.Write); ok && w.Value != cfg.NoNode {
		if r := flow.DependencyScope(w.Value); len(roots) == 0 || r != roots[0] {
			roots = append(roots, r)
		}
	}
	return roots
}
