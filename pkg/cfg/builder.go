package cfg

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidFlow is returned when a flow fails structural validation.
var ErrInvalidFlow = errors.New("invalid flow")

// Builder assembles a Flow instruction by instruction. Emit connects every
// pending instruction to the new one, which makes straight-line code a
// sequence of Emit calls; branches are expressed by saving and restoring the
// pending set.
type Builder struct {
	name    string
	nodes   []Node
	insts   []Instruction
	pending []int
}

// NewBuilder creates a builder for the named scope.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// Node adds a syntax node and returns its ID. The node's ID field is ignored.
func (b *Builder) Node(n Node) NodeID {
	n.ID = NodeID(len(b.nodes))
	n.Children = nil
	if n.Kind == "" {
		n.Kind = NodeOther
	}
	b.nodes = append(b.nodes, n)
	return n.ID
}

// Emit appends an instruction, links it after the pending instructions and
// makes it the only pending instruction. It returns the new ordinal.
func (b *Builder) Emit(op Op, element NodeID, line int) int {
	ord := b.Detached(op, element, line)
	for _, p := range b.pending {
		b.Edge(p, ord)
	}
	b.pending = []int{ord}
	return ord
}

// Detached appends an instruction without linking it.
func (b *Builder) Detached(op Op, element NodeID, line int) int {
	if op == nil {
		op = Plain{}
	}
	ord := len(b.insts)
	b.insts = append(b.insts, Instruction{
		Ordinal: ord,
		Op:      op,
		Element: element,
		Line:    line,
	})
	return ord
}

// Edge adds a control-flow edge. Duplicate edges are ignored.
func (b *Builder) Edge(from, to int) {
	if from < 0 || from >= len(b.insts) {
		return
	}
	if !slices.Contains(b.insts[from].Succ, to) {
		b.insts[from].Succ = append(b.insts[from].Succ, to)
	}
}

// Negate records that the narrowings guarded by the given conditions end at
// the instruction.
func (b *Builder) Negate(ordinal int, conditions ...int) {
	if ordinal < 0 || ordinal >= len(b.insts) {
		return
	}
	for _, c := range conditions {
		if !slices.Contains(b.insts[ordinal].Negates, c) {
			b.insts[ordinal].Negates = append(b.insts[ordinal].Negates, c)
		}
	}
}

// Pending returns a copy of the instructions the next Emit will follow.
func (b *Builder) Pending() []int {
	return slices.Clone(b.pending)
}

// SetPending replaces the pending set.
func (b *Builder) SetPending(p []int) {
	b.pending = slices.Clone(p)
}

// Len returns the number of instructions emitted so far.
func (b *Builder) Len() int {
	return len(b.insts)
}

// Build validates the instructions and returns the finished flow. The
// builder must not be used afterwards.
func (b *Builder) Build() (*Flow, error) {
	f := &Flow{
		Name:         b.name,
		Nodes:        b.nodes,
		Instructions: b.insts,
	}
	if err := f.index(); err != nil {
		return nil, err
	}
	return f, nil
}

// index validates the flow and derives predecessor lists, node children and
// the element lookup table.
func (f *Flow) index() error {
	n := len(f.Instructions)
	for i := range f.Nodes {
		f.Nodes[i].Children = nil
	}
	for i := range f.Nodes {
		node := &f.Nodes[i]
		if node.ID != NodeID(i) {
			return fmt.Errorf("%w: node %d has id %d", ErrInvalidFlow, i, node.ID)
		}
		if node.Parent == NoNode {
			continue
		}
		if !f.validNode(node.Parent) || node.Parent == node.ID {
			return fmt.Errorf("%w: node %d has bad parent %d", ErrInvalidFlow, i, node.Parent)
		}
		f.Nodes[node.Parent].Children = append(f.Nodes[node.Parent].Children, node.ID)
	}

	for i := range f.Instructions {
		f.Instructions[i].Pred = nil
	}
	f.byElement = make(map[NodeID][]int)
	for i := range f.Instructions {
		inst := &f.Instructions[i]
		if inst.Ordinal != i {
			return fmt.Errorf("%w: instruction %d has ordinal %d", ErrInvalidFlow, i, inst.Ordinal)
		}
		if inst.Op == nil {
			inst.Op = Plain{}
		}
		if inst.Element != NoNode {
			if !f.validNode(inst.Element) {
				return fmt.Errorf("%w: instruction %d has bad element %d", ErrInvalidFlow, i, inst.Element)
			}
			f.byElement[inst.Element] = append(f.byElement[inst.Element], i)
		}
		for _, s := range inst.Succ {
			if s < 0 || s >= n {
				return fmt.Errorf("%w: instruction %d has bad successor %d", ErrInvalidFlow, i, s)
			}
			f.Instructions[s].Pred = append(f.Instructions[s].Pred, i)
		}
		for _, c := range inst.Negates {
			if c < 0 || c >= n {
				return fmt.Errorf("%w: instruction %d negates unknown condition %d", ErrInvalidFlow, i, c)
			}
		}
		if err := f.validateOp(inst); err != nil {
			return err
		}
	}
	return nil
}

func (f *Flow) validateOp(inst *Instruction) error {
	n := len(f.Instructions)
	switch op := inst.Op.(type) {
	case Read:
		if op.Variable == "" {
			return fmt.Errorf("%w: read %d has no variable", ErrInvalidFlow, inst.Ordinal)
		}
	case Argument:
		if op.Variable == "" {
			return fmt.Errorf("%w: argument %d has no variable", ErrInvalidFlow, inst.Ordinal)
		}
	case Write:
		if op.Variable == "" {
			return fmt.Errorf("%w: write %d has no variable", ErrInvalidFlow, inst.Ordinal)
		}
		if op.Value != NoNode && !f.validNode(op.Value) {
			return fmt.Errorf("%w: write %d has bad value node %d", ErrInvalidFlow, inst.Ordinal, op.Value)
		}
	case Narrowing:
		if op.Variable == "" || op.Type == "" {
			return fmt.Errorf("%w: narrowing %d needs a variable and a type", ErrInvalidFlow, inst.Ordinal)
		}
		if op.Condition < 0 || op.Condition >= n {
			return fmt.Errorf("%w: narrowing %d has bad condition %d", ErrInvalidFlow, inst.Ordinal, op.Condition)
		}
		if op.Target < 0 || op.Target >= n {
			return fmt.Errorf("%w: narrowing %d has bad target %d", ErrInvalidFlow, inst.Ordinal, op.Target)
		}
		if r, ok := f.Instructions[op.Target].Op.(Read); !ok || r.Variable != op.Variable {
			return fmt.Errorf("%w: narrowing %d target %d is not a read of %s", ErrInvalidFlow, inst.Ordinal, op.Target, op.Variable)
		}
	}
	return nil
}

func (f *Flow) validNode(id NodeID) bool {
	return id >= 0 && int(id) < len(f.Nodes)
}
