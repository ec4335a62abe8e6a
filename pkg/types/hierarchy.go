package types

import (
	"slices"
	"sort"
	"sync"
)

// Object is the top of every class hierarchy.
const Object = "object"

// Hierarchy is a class hierarchy implementing System. It is safe for
// concurrent use; declarations may be added while queries run.
type Hierarchy struct {
	mu     sync.RWMutex
	supers map[string][]string
}

// builtins mirrors the Python numeric tower and the common containers.
var builtins = []struct {
	name   string
	supers []string
}{
	{"complex", nil},
	{"float", []string{"complex"}},
	{"int", []string{"float"}},
	{"bool", []string{"int"}},
	{"str", nil},
	{"bytes", nil},
	{"list", nil},
	{"dict", nil},
	{"set", nil},
	{"frozenset", nil},
	{"tuple", nil},
	{"None", nil},
}

// iterables are the containers whose first type argument is what iteration
// yields (dict iterates its keys).
var iterables = map[string]bool{
	"list":      true,
	"set":       true,
	"frozenset": true,
	"tuple":     true,
	"dict":      true,
	"Iterable":  true,
	"Iterator":  true,
	"Sequence":  true,
	"Generator": true,
}

// NewHierarchy creates a hierarchy preloaded with the builtin classes.
func NewHierarchy() *Hierarchy {
	h := &Hierarchy{supers: map[string][]string{Object: nil}}
	for _, b := range builtins {
		h.Declare(b.name, b.supers...)
	}
	return h
}

// Declare adds or replaces a class. A class without bases derives from
// object.
func (h *Hierarchy) Declare(name string, supers ...string) {
	if name == Object {
		return
	}
	if len(supers) == 0 {
		supers = []string{Object}
	}
	h.mu.Lock()
	h.supers[name] = slices.Clone(supers)
	h.mu.Unlock()
}

// DeclareAll adds every class of a name → bases map.
func (h *Hierarchy) DeclareAll(classes map[string][]string) {
	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.Declare(name, classes[name]...)
	}
}

// Has reports whether the class is declared.
func (h *Hierarchy) Has(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.supers[name]
	return ok
}

// Ancestors returns the class and all its superclasses in breadth-first
// order, ending with object. Unknown classes only have object above them.
func (h *Hierarchy) Ancestors(name string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ancestors(name)
}

func (h *Hierarchy) ancestors(name string) []string {
	out := []string{name}
	seen := map[string]bool{name: true}
	for i := 0; i < len(out); i++ {
		for _, s := range h.supers[out[i]] {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	if !seen[Object] {
		out = append(out, Object)
	}
	return out
}

// IsInheritorOf reports whether t is the named class or one of its
// subclasses.
func (h *Hierarchy) IsInheritorOf(t Type, name string) bool {
	tn := Name(t)
	if tn == "" {
		return false
	}
	if tn == name || name == Object {
		return true
	}
	return slices.Contains(h.Ancestors(tn), name)
}

// LeastUpperBound returns the most specific common supertype. An unknown
// operand yields the other one.
func (h *Hierarchy) LeastUpperBound(a, b Type) Type {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case Equal(a, b):
		return a
	}

	if ta, ok := a.(Tuple); ok {
		if tb, ok := b.(Tuple); ok && len(ta.Elems) == len(tb.Elems) {
			elems := make([]Type, len(ta.Elems))
			for i := range ta.Elems {
				elems[i] = h.LeastUpperBound(ta.Elems[i], tb.Elems[i])
			}
			return Tuple{Elems: elems}
		}
	}

	na, nb := Name(a), Name(b)
	if na == nb {
		ga, _ := a.(Named)
		gb, _ := b.(Named)
		if len(ga.Args) > 0 && len(ga.Args) == len(gb.Args) {
			args := make([]Type, len(ga.Args))
			for i := range ga.Args {
				args[i] = h.LeastUpperBound(ga.Args[i], gb.Args[i])
			}
			return Named{Name: na, Args: args}
		}
		return Named{Name: na}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if slices.Contains(h.ancestors(na), nb) {
		return generic(b)
	}
	upper := h.ancestors(nb)
	for _, anc := range h.ancestors(na) {
		if slices.Contains(upper, anc) {
			if anc == na {
				return generic(a)
			}
			return Named{Name: anc}
		}
	}
	return Named{Name: Object}
}

// generic keeps parameterised named types as they are and widens tuples to
// the bare tuple class.
func generic(t Type) Type {
	if _, ok := t.(Tuple); ok {
		return Named{Name: "tuple"}
	}
	return t
}

// ElementType returns the type produced by iterating t: the first type
// argument of containers, the join of tuple components, str for str.
func (h *Hierarchy) ElementType(t Type) Type {
	switch v := t.(type) {
	case Tuple:
		var out Type
		for _, e := range v.Elems {
			out = h.LeastUpperBound(out, e)
		}
		return out
	case Named:
		if v.Name == "str" {
			return v
		}
		if iterables[v.Name] && len(v.Args) > 0 {
			return v.Args[0]
		}
	}
	return nil
}
