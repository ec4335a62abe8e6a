// Package cfg defines the instruction graph consumed by the inference engine.
// A Flow is the ordered instruction list of one lexical scope together with
// the successor/predecessor edges between instructions and the syntax nodes
// the instructions point into.
package cfg

import (
	"fmt"
	"strings"
)

// NodeID identifies a syntax node within a Flow.
type NodeID int

// NoNode marks an absent syntax node.
const NoNode NodeID = -1

// NodeKind classifies a syntax node.
type NodeKind string

const (
	NodeStatement  NodeKind = "statement"  // Statement boundary
	NodeExpression NodeKind = "expression" // Expression (may contain references)
	NodeReference  NodeKind = "reference"  // Variable reference
	NodeOther      NodeKind = "other"      // Anything else (blocks, type names, keywords)
)

// Eval tells a resolver how the static type of an expression node is derived.
type Eval string

const (
	EvalNone      Eval = ""          // Unknown type
	EvalTyped     Eval = "typed"     // Node.Type holds a type expression
	EvalReference Eval = "reference" // Type of the referenced variable
	EvalJoin      Eval = "join"      // Least upper bound of the child expressions
	EvalTuple     Eval = "tuple"     // Tuple of the child expression types
	EvalContainer Eval = "container" // Node.Type parameterised by the join of the children
	EvalElement   Eval = "element"   // Element type of the single child expression
)

// Node is a syntax node. Instructions refer to nodes through Instruction.Element.
type Node struct {
	ID        NodeID   `json:"id"`                  // Position in Flow.Nodes
	Parent    NodeID   `json:"parent"`              // Parent node, NoNode for roots
	Kind      NodeKind `json:"kind"`                // Statement, expression, reference or other
	Name      string   `json:"name,omitempty"`      // Variable name of reference nodes
	Qualified bool     `json:"qualified,omitempty"` // Reference has a qualifier (a.b)
	Eval      Eval     `json:"eval,omitempty"`      // How the expression type is computed
	Type      string   `json:"type,omitempty"`      // Type expression for EvalTyped/EvalContainer
	Line      int      `json:"line,omitempty"`      // Source line, 1-based
	Text      string   `json:"text,omitempty"`      // Source text, informational
	Children  []NodeID `json:"children,omitempty"`  // Derived by the builder
}

// IsExpression reports whether the node is part of an expression tree.
func (n *Node) IsExpression() bool {
	return n.Kind == NodeExpression || n.Kind == NodeReference
}

// Op is the variable effect of an instruction. It is a closed set:
// Plain, Read, Write, Narrowing and Argument.
type Op interface {
	op()
	// Var returns the variable the op reads or writes, "" for Plain.
	Var() string
}

// Plain has no effect on variables (entry, exit, merge and condition markers).
type Plain struct{}

// Read reads a variable.
type Read struct {
	Variable string
}

// Write assigns a variable. Value is the right-hand expression; TupleIndex is
// the target position for destructuring assignments and -1 otherwise.
type Write struct {
	Variable   string
	Value      NodeID
	TupleIndex int
}

// Narrowing applies a runtime type test to Variable. Condition is the
// branch-condition instruction guarding the narrowed region and Target is the
// read instruction of Variable the narrowed type is mixed into.
type Narrowing struct {
	Variable  string
	Type      string
	Condition int
	Target    int
}

// Argument passes a variable as a call argument.
type Argument struct {
	Variable string
}

func (Plain) op()     {}
func (Read) op()      {}
func (Write) op()     {}
func (Narrowing) op() {}
func (Argument) op()  {}

func (Plain) Var() string       { return "" }
func (o Read) Var() string      { return o.Variable }
func (o Write) Var() string     { return o.Variable }
func (o Narrowing) Var() string { return o.Variable }
func (o Argument) Var() string  { return o.Variable }

// OpName returns the short name of an op, as used in flow documents.
func OpName(op Op) string {
	switch op.(type) {
	case Read:
		return "read"
	case Write:
		return "write"
	case Narrowing:
		return "narrowing"
	case Argument:
		return "argument"
	default:
		return "plain"
	}
}

// Instruction is one node of the control-flow graph. Instructions are
// immutable once a Flow has been built.
type Instruction struct {
	Ordinal int    // Position in Flow.Instructions
	Op      Op     // Variable effect
	Element NodeID // Syntax node the instruction belongs to
	Line    int    // Source line, 1-based, 0 when unknown
	Succ    []int  // Successor ordinals
	Pred    []int  // Predecessor ordinals, derived by the builder
	Negates []int  // Condition ordinals whose narrowings end here
}

// Variable returns the variable the instruction reads or writes.
func (i *Instruction) Variable() string {
	if i.Op == nil {
		return ""
	}
	return i.Op.Var()
}

// IsWrite reports whether the instruction assigns its variable.
func (i *Instruction) IsWrite() bool {
	_, ok := i.Op.(Write)
	return ok
}

func (i *Instruction) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d: %s", i.Ordinal, OpName(i.Op))
	switch op := i.Op.(type) {
	case Write:
		sb.WriteString(" " + op.Variable)
		if op.TupleIndex >= 0 {
			fmt.Fprintf(&sb, "[%d]", op.TupleIndex)
		}
	case Narrowing:
		fmt.Fprintf(&sb, " %s is %s (cond %d)", op.Variable, op.Type, op.Condition)
	case Read, Argument:
		sb.WriteString(" " + i.Op.Var())
	}
	if len(i.Negates) > 0 {
		fmt.Fprintf(&sb, " negates %v", i.Negates)
	}
	return sb.String()
}
