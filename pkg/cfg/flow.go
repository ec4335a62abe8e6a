package cfg

import "slices"

// Flow is the control-flow graph of one lexical scope.
type Flow struct {
	Name         string        // Scope name
	Instructions []Instruction // Indexed by ordinal
	Nodes        []Node        // Indexed by NodeID

	byElement map[NodeID][]int
}

// Validate checks edge, element and narrowing references and re-derives
// predecessor lists and node children. Flows assembled by hand must be
// validated before use.
func (f *Flow) Validate() error {
	return f.index()
}

// Len returns the number of instructions.
func (f *Flow) Len() int {
	return len(f.Instructions)
}

// At returns the instruction with the given ordinal, or nil when out of range.
func (f *Flow) At(ordinal int) *Instruction {
	if ordinal < 0 || ordinal >= len(f.Instructions) {
		return nil
	}
	return &f.Instructions[ordinal]
}

// Node returns the syntax node with the given ID, or nil.
func (f *Flow) Node(id NodeID) *Node {
	if !f.validNode(id) {
		return nil
	}
	return &f.Nodes[id]
}

// InstructionsAt returns the ordinals of the instructions whose element is id.
func (f *Flow) InstructionsAt(id NodeID) []int {
	return f.byElement[id]
}

// DependencyScope returns the nearest ancestor-or-self of id that is a
// statement or whose parent is not an expression. References inside the
// returned subtree are the data the element depends on.
func (f *Flow) DependencyScope(id NodeID) NodeID {
	cur := id
	for f.validNode(cur) {
		node := &f.Nodes[cur]
		if node.Kind == NodeStatement {
			return cur
		}
		parent := f.Node(node.Parent)
		if parent == nil || !parent.IsExpression() {
			return cur
		}
		cur = node.Parent
	}
	return NoNode
}

// References returns the unqualified reference nodes in the subtree rooted at
// id, in pre-order.
func (f *Flow) References(id NodeID) []NodeID {
	if !f.validNode(id) {
		return nil
	}
	var out []NodeID
	stack := []NodeID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := &f.Nodes[cur]
		if node.Kind == NodeReference && !node.Qualified && node.Name != "" {
			out = append(out, cur)
		}
		for i := len(node.Children) - 1; i >= 0; i-- {
			stack = append(stack, node.Children[i])
		}
	}
	return out
}

// Variables returns every variable the flow mentions, in order of first
// appearance.
func (f *Flow) Variables() []string {
	var out []string
	for i := range f.Instructions {
		v := f.Instructions[i].Variable()
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// Locate finds the instruction that best represents variable at a source
// line: a read of the variable, then any other instruction on the variable,
// then the first instruction on the line. It returns -1 when the line has no
// instructions.
func (f *Flow) Locate(variable string, line int) int {
	first, other := -1, -1
	for i := range f.Instructions {
		inst := &f.Instructions[i]
		if inst.Line != line {
			continue
		}
		if first < 0 {
			first = i
		}
		if inst.Variable() != variable {
			continue
		}
		if _, ok := inst.Op.(Read); ok {
			return i
		}
		if other < 0 {
			other = i
		}
	}
	if other >= 0 {
		return other
	}
	return first
}
