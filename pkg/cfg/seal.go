package cfg

import (
	"slices"

	set "github.com/hashicorp/go-set/v3"
)

// SealNarrowings ends narrowings at merge points. A condition whose
// narrowing is active on some incoming edge of an instruction but not on
// every one is added to the instruction's Negates, so a type narrowed on
// one path never survives a join with a path that did not narrow it. It
// returns the number of negations added.
func (f *Flow) SealNarrowings() int {
	conds := set.New[int](0)
	for i := range f.Instructions {
		if n, ok := f.Instructions[i].Op.(Narrowing); ok {
			conds.Insert(n.Condition)
		}
	}
	if conds.Empty() {
		return 0
	}

	n := len(f.Instructions)
	may := make([]*set.Set[int], n)  // active on some path
	must := make([]*set.Set[int], n) // active on every path
	for i := range n {
		may[i] = set.New[int](0)
		must[i] = conds.Copy()
	}

	transfer := func(inst *Instruction, in *set.Set[int]) *set.Set[int] {
		out := in.Copy()
		for _, c := range inst.Negates {
			out.Remove(c)
		}
		if nw, ok := inst.Op.(Narrowing); ok {
			out.Insert(nw.Condition)
		}
		return out
	}

	for changed := true; changed; {
		changed = false
		for i := range f.Instructions {
			inst := &f.Instructions[i]
			mayIn, mustIn := f.incoming(inst, may, must)
			if out := transfer(inst, mayIn); !out.Equal(may[i]) {
				may[i], changed = out, true
			}
			if out := transfer(inst, mustIn); !out.Equal(must[i]) {
				must[i], changed = out, true
			}
		}
	}

	added := 0
	for i := range f.Instructions {
		inst := &f.Instructions[i]
		if len(inst.Pred) < 2 {
			continue
		}
		mayIn, mustIn := f.incoming(inst, may, must)
		partial := mayIn.Slice()
		slices.Sort(partial)
		for _, c := range partial {
			if !mustIn.Contains(c) && !slices.Contains(inst.Negates, c) {
				inst.Negates = append(inst.Negates, c)
				added++
			}
		}
	}
	return added
}

// incoming joins the predecessor states of inst. Instructions without
// predecessors start with nothing active.
func (f *Flow) incoming(inst *Instruction, may, must []*set.Set[int]) (mayIn, mustIn *set.Set[int]) {
	mayIn = set.New[int](0)
	if len(inst.Pred) == 0 {
		return mayIn, set.New[int](0)
	}
	for i, p := range inst.Pred {
		mayIn.InsertSet(may[p])
		if i == 0 {
			mustIn = must[p].Copy()
			continue
		}
		mustIn.RemoveFunc(func(c int) bool { return !must[p].Contains(c) })
	}
	return mayIn, mustIn
}
