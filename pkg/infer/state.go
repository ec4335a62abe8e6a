package infer

import (
	"maps"
	"slices"

	"github.com/l3aro/go-type-query/pkg/cfg"
)

// TypeDfaState maps variables to their DFAType at a program point. It is
// immutable; every update returns a new state.
type TypeDfaState struct {
	bindings map[string]DFAType
}

// Get returns the binding of a variable.
func (s TypeDfaState) Get(variable string) (DFAType, bool) {
	t, ok := s.bindings[variable]
	return t, ok
}

// Len returns the number of bound variables.
func (s TypeDfaState) Len() int {
	return len(s.bindings)
}

// Variables returns the bound variables in sorted order.
func (s TypeDfaState) Variables() []string {
	return slices.Sorted(maps.Keys(s.bindings))
}

// With returns a state where variable is bound to t.
func (s TypeDfaState) With(variable string, t DFAType) TypeDfaState {
	next := make(map[string]DFAType, len(s.bindings)+1)
	maps.Copy(next, s.bindings)
	next[variable] = t
	return TypeDfaState{bindings: next}
}

// Without returns a state where variable is unbound.
func (s TypeDfaState) Without(variable string) TypeDfaState {
	if _, ok := s.bindings[variable]; !ok {
		return s
	}
	next := maps.Clone(s.bindings)
	delete(next, variable)
	return TypeDfaState{bindings: next}
}

// Negate strips the narrowings guarded by conditions from every binding.
// Bindings left without candidates are dropped.
func (s TypeDfaState) Negate(conditions []int) TypeDfaState {
	if len(conditions) == 0 || len(s.bindings) == 0 {
		return s
	}
	var next map[string]DFAType
	for v, t := range s.bindings {
		n := t.Negate(conditions...)
		if n.Equal(t) {
			continue
		}
		if next == nil {
			next = maps.Clone(s.bindings)
		}
		if n.IsBottom() {
			delete(next, v)
		} else {
			next[v] = n
		}
	}
	if next == nil {
		return s
	}
	return TypeDfaState{bindings: next}
}

// Bindings returns the view of the state an instruction evaluates in: the
// narrowings the instruction ends are removed.
func (s TypeDfaState) Bindings(inst *cfg.Instruction) TypeDfaState {
	return s.Negate(inst.Negates)
}

// Join returns the per-variable union. A variable bound on one side only
// keeps that binding.
func (s TypeDfaState) Join(o TypeDfaState) TypeDfaState {
	switch {
	case len(o.bindings) == 0:
		return s
	case len(s.bindings) == 0:
		return o
	}
	next := maps.Clone(s.bindings)
	for v, t := range o.bindings {
		if cur, ok := next[v]; ok {
			next[v] = cur.Join(t)
		} else {
			next[v] = t
		}
	}
	return TypeDfaState{bindings: next}
}

// Equal reports whether both states bind the same variables to equal types.
func (s TypeDfaState) Equal(o TypeDfaState) bool {
	if len(s.bindings) != len(o.bindings) {
		return false
	}
	for v, t := range s.bindings {
		ot, ok := o.bindings[v]
		if !ok || !t.Equal(ot) {
			return false
		}
	}
	return true
}

// typesSemilattice joins type states.
type typesSemilattice struct{}

func (typesSemilattice) Join(states []TypeDfaState) TypeDfaState {
	var out TypeDfaState
	for _, s := range states {
		out = out.Join(s)
	}
	return out
}

func (typesSemilattice) Equal(a, b TypeDfaState) bool {
	return a.Equal(b)
}
