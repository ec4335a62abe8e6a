package infer

import (
	"github.com/l3aro/go-type-query/pkg/cfg"
	"github.com/l3aro/go-type-query/pkg/types"
)

// Env is what a Resolver may ask while computing an expression type.
type Env interface {
	// VariableType returns the type of the variable referenced at node,
	// from the partial bindings of the instruction being resolved when
	// available and by full inference otherwise.
	VariableType(name string, node cfg.NodeID) types.Type
	// Types returns the type system.
	Types() types.System
}

// Resolver computes the static type of an expression node.
type Resolver interface {
	ResolveStaticType(env Env, flow *cfg.Flow, expr cfg.NodeID) types.Type
}

// NodeResolver resolves expressions from the Eval annotations of syntax
// nodes.
type NodeResolver struct{}

// ResolveStaticType implements Resolver.
func (r NodeResolver) ResolveStaticType(env Env, flow *cfg.Flow, expr cfg.NodeID) types.Type {
	node := flow.Node(expr)
	if node == nil {
		return nil
	}
	sys := env.Types()

	eval := node.Eval
	if eval == cfg.EvalNone && node.Kind == cfg.NodeReference && !node.Qualified {
		eval = cfg.EvalReference
	}

	switch eval {
	case cfg.EvalTyped:
		return parseType(node.Type)
	case cfg.EvalReference:
		return env.VariableType(node.Name, expr)
	case cfg.EvalJoin:
		var out types.Type
		for _, c := range node.Children {
			out = sys.LeastUpperBound(out, r.ResolveStaticType(env, flow, c))
		}
		return out
	case cfg.EvalTuple:
		elems := make([]types.Type, len(node.Children))
		for i, c := range node.Children {
			elems[i] = r.ResolveStaticType(env, flow, c)
		}
		return types.Tuple{Elems: elems}
	case cfg.EvalContainer:
		var elem types.Type
		for _, c := range node.Children {
			elem = sys.LeastUpperBound(elem, r.ResolveStaticType(env, flow, c))
		}
		if elem == nil {
			return types.Named{Name: node.Type}
		}
		return types.Named{Name: node.Type, Args: []types.Type{elem}}
	case cfg.EvalElement:
		if len(node.Children) == 0 {
			return nil
		}
		return sys.ElementType(r.ResolveStaticType(env, flow, node.Children[0]))
	default:
		return nil
	}
}

// parseType parses a type expression, keeping unparsable text as a plain
// class name.
func parseType(s string) types.Type {
	if s == "" {
		return nil
	}
	t, err := types.Parse(s)
	if err != nil {
		return types.Named{Name: s}
	}
	return t
}

// component returns the type assigned to position index of a destructuring
// target: the tuple component, else the element type of an iterable.
func component(sys types.System, t types.Type, index int) types.Type {
	if index < 0 {
		return t
	}
	if tup, ok := t.(types.Tuple); ok && index < len(tup.Elems) {
		return tup.Elems[index]
	}
	if t == nil {
		return nil
	}
	return sys.ElementType(t)
}
