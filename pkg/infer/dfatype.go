package infer

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/l3aro/go-type-query/pkg/types"
)

// NoCondition marks a candidate that holds on every path.
const NoCondition = -1

// Candidate is one possible type of a variable. Conditioned candidates are
// narrowings ("mixins") that hold only while the branch condition with the
// given ordinal is in effect. A nil Type is an unknown value.
type Candidate struct {
	Type      types.Type
	Condition int
}

func (c Candidate) key() string {
	return types.String(c.Type)
}

func compareCandidates(a, b Candidate) int {
	if c := cmp.Compare(a.Condition, b.Condition); c != 0 {
		return c
	}
	return strings.Compare(a.key(), b.key())
}

// DFAType is the lattice value bound to a variable: a canonical set of
// candidates. The empty set is bottom.
type DFAType struct {
	cands []Candidate
}

// Definite returns the type holding exactly t.
func Definite(t types.Type) DFAType {
	return DFAType{cands: []Candidate{{Type: t, Condition: NoCondition}}}
}

func newDFAType(cands []Candidate) DFAType {
	slices.SortFunc(cands, compareCandidates)
	cands = slices.CompactFunc(cands, func(a, b Candidate) bool {
		return compareCandidates(a, b) == 0
	})
	if len(cands) == 0 {
		return DFAType{}
	}
	return DFAType{cands: cands}
}

// IsBottom reports whether the type carries no information.
func (t DFAType) IsBottom() bool {
	return len(t.cands) == 0
}

// Candidates returns the candidates in canonical order.
func (t DFAType) Candidates() []Candidate {
	return slices.Clone(t.cands)
}

// conditions returns the distinct conditions of the narrowings, ascending.
func (t DFAType) conditions() []int {
	var out []int
	for _, c := range t.cands {
		if c.Condition != NoCondition && !slices.Contains(out, c.Condition) {
			out = append(out, c.Condition)
		}
	}
	return out
}

// Equal reports whether both types have the same candidates.
func (t DFAType) Equal(o DFAType) bool {
	return slices.EqualFunc(t.cands, o.cands, func(a, b Candidate) bool {
		return compareCandidates(a, b) == 0
	})
}

// Join returns the union of both candidate sets.
func (t DFAType) Join(o DFAType) DFAType {
	switch {
	case len(o.cands) == 0:
		return t
	case len(t.cands) == 0:
		return o
	}
	return newDFAType(append(slices.Clone(t.cands), o.cands...))
}

// AddMixin returns t narrowed to typ while condition holds.
func (t DFAType) AddMixin(typ types.Type, condition int) DFAType {
	if typ == nil {
		return t
	}
	return newDFAType(append(slices.Clone(t.cands), Candidate{Type: typ, Condition: condition}))
}

// Negate removes the narrowings guarded by the given conditions.
func (t DFAType) Negate(conditions ...int) DFAType {
	if len(conditions) == 0 || len(t.cands) == 0 {
		return t
	}
	out := make([]Candidate, 0, len(t.cands))
	for _, c := range t.cands {
		if c.Condition == NoCondition || !slices.Contains(conditions, c.Condition) {
			out = append(out, c)
		}
	}
	if len(out) == len(t.cands) {
		return t
	}
	return newDFAType(out)
}

// ResultType collapses the candidates to one type. Without active
// narrowings it is the least upper bound of the unconditioned candidates.
// Otherwise the innermost narrowing wins (the one with the highest
// condition ordinal), replaced by any other narrowing that inherits from
// it; when the unconditioned type already inherits from the narrowed type
// it is kept.
func (t DFAType) ResultType(sys types.System) types.Type {
	var primary types.Type
	innermost := NoCondition
	for _, c := range t.cands {
		if c.Condition == NoCondition {
			primary = sys.LeastUpperBound(primary, c.Type)
			continue
		}
		innermost = max(innermost, c.Condition)
	}
	if innermost == NoCondition {
		return primary
	}

	var mixin types.Type
	for _, c := range t.cands {
		if c.Condition == innermost {
			mixin = sys.LeastUpperBound(mixin, c.Type)
		}
	}
	mixinName := types.Name(mixin)
	for _, c := range t.cands {
		if c.Condition != NoCondition && c.Condition != innermost && sys.IsInheritorOf(c.Type, mixinName) {
			mixin = c.Type
			mixinName = types.Name(mixin)
		}
	}

	if primary != nil && sys.IsInheritorOf(primary, mixinName) {
		return primary
	}
	return mixin
}

// String renders the candidates, conditioned ones as "T@cond".
func (t DFAType) String() string {
	if len(t.cands) == 0 {
		return "⊥"
	}
	parts := make([]string, len(t.cands))
	for i, c := range t.cands {
		parts[i] = c.key()
		if c.Condition != NoCondition {
			parts[i] += "@" + strconv.Itoa(c.Condition)
		}
	}
	return strings.Join(parts, " | ")
}
