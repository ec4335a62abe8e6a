// Package types defines the static type model used by inference: named
// (optionally parameterised) types, tuples, the System interface answering
// subtyping questions, and the class and function records frontends report.
package types

import "strings"

// Type is a static type. A nil Type means "unknown".
type Type interface {
	String() string
}

// Named is a class type, optionally parameterised (list[int]).
type Named struct {
	Name string
	Args []Type
}

// NewNamed creates a named type.
func NewNamed(name string, args ...Type) Named {
	return Named{Name: name, Args: args}
}

func (n Named) String() string {
	if len(n.Args) == 0 {
		return n.Name
	}
	return n.Name + "[" + join(n.Args) + "]"
}

// Tuple is a fixed-arity tuple type.
type Tuple struct {
	Elems []Type
}

// NewTuple creates a tuple type.
func NewTuple(elems ...Type) Tuple {
	return Tuple{Elems: elems}
}

func (t Tuple) String() string {
	return "tuple[" + join(t.Elems) + "]"
}

func join(ts []Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = String(t)
	}
	return strings.Join(parts, ", ")
}

// String renders a type, "?" for unknown.
func String(t Type) string {
	if t == nil {
		return "?"
	}
	return t.String()
}

// Equal reports whether two types are the same. Two unknown types are equal.
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.String() == b.String()
}

// Name returns the class name of a type: the name of a named type, "tuple"
// for tuples and "" for unknown.
func Name(t Type) string {
	switch v := t.(type) {
	case Named:
		return v.Name
	case Tuple:
		return "tuple"
	default:
		return ""
	}
}

// System answers the subtyping questions inference needs.
type System interface {
	// IsInheritorOf reports whether t is the class name or a subclass of it.
	IsInheritorOf(t Type, name string) bool
	// LeastUpperBound returns the most specific common supertype of a and b.
	LeastUpperBound(a, b Type) Type
	// ElementType returns the type produced by iterating t, or nil.
	ElementType(t Type) Type
}

// Class represents a class definition found by a frontend.
type Class struct {
	Name       string   `json:"name"`
	Bases      []string `json:"bases"`
	LineNumber int      `json:"line_number"`
}

// Function represents a function definition found by a frontend.
type Function struct {
	Name       string `json:"name"`
	Params     string `json:"params"`
	ReturnType string `json:"return_type"`
	LineNumber int    `json:"line_number"`
}
