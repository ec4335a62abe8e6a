package frontend

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/go-type-query/pkg/cfg"
)

// expr lowers an expression under parent and returns its node. Identifiers
// become reads in evaluation order.
func (t *translator) expr(n *sitter.Node, parent cfg.NodeID) cfg.NodeID {
	if n == nil {
		return cfg.NoNode
	}
	switch n.Type() {
	case "identifier":
		return t.reference(n, parent)
	case "integer":
		return t.typed("int", parent, n)
	case "float":
		return t.typed("float", parent, n)
	case "string", "concatenated_string":
		return t.typed("str", parent, n)
	case "true", "false":
		return t.typed("bool", parent, n)
	case "none":
		return t.typed("None", parent, n)
	case "comparison_operator", "not_operator":
		id := t.typed("bool", parent, n)
		t.children(n, id)
		return id
	case "list", "set":
		id := t.node(cfg.Node{Parent: parent, Kind: cfg.NodeExpression, Eval: cfg.EvalContainer, Type: n.Type(), Line: lineOf(n), Text: t.text(n)})
		t.children(n, id)
		return id
	case "tuple", "expression_list":
		id := t.node(cfg.Node{Parent: parent, Kind: cfg.NodeExpression, Eval: cfg.EvalTuple, Line: lineOf(n), Text: t.text(n)})
		t.children(n, id)
		return id
	case "dictionary":
		id := t.typed("dict", parent, n)
		t.children(n, id)
		return id
	case "list_comprehension":
		return t.typed("list", parent, n)
	case "set_comprehension":
		return t.typed("set", parent, n)
	case "dictionary_comprehension":
		return t.typed("dict", parent, n)
	case "generator_expression":
		return t.typed("Generator", parent, n)
	case "lambda":
		return t.typed("Callable", parent, n)
	case "parenthesized_expression":
		if n.NamedChildCount() == 0 {
			return cfg.NoNode
		}
		return t.expr(n.NamedChild(0), parent)
	case "binary_operator", "boolean_operator", "unary_operator", "await":
		id := t.join(parent, n)
		t.children(n, id)
		return id
	case "conditional_expression":
		// body if condition else alternative
		id := t.join(parent, n)
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if i == 1 {
				t.expr(n.NamedChild(i), parent)
				continue
			}
			t.expr(n.NamedChild(i), id)
		}
		return id
	case "named_expression":
		id := t.join(parent, n)
		t.expr(n.ChildByFieldName("value"), id)
		name := n.ChildByFieldName("name")
		target := t.node(cfg.Node{Parent: parent, Kind: cfg.NodeOther, Name: t.text(name), Line: lineOf(n)})
		t.b.Emit(cfg.Write{Variable: t.text(name), Value: id, TupleIndex: -1}, target, lineOf(n))
		return id
	case "attribute":
		id := t.node(cfg.Node{Parent: parent, Kind: cfg.NodeReference, Name: t.text(n.ChildByFieldName("attribute")), Qualified: true, Line: lineOf(n), Text: t.text(n)})
		t.expr(n.ChildByFieldName("object"), id)
		return id
	case "subscript":
		id := t.node(cfg.Node{Parent: parent, Kind: cfg.NodeExpression, Eval: cfg.EvalElement, Line: lineOf(n), Text: t.text(n)})
		value := n.ChildByFieldName("value")
		t.expr(value, id)
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); value == nil || c.StartByte() != value.StartByte() {
				t.expr(c, id)
			}
		}
		return id
	case "call":
		return t.call(n, parent)
	default:
		id := t.node(cfg.Node{Parent: parent, Kind: cfg.NodeExpression, Line: lineOf(n), Text: t.text(n)})
		t.children(n, id)
		return id
	}
}

func (t *translator) children(n *sitter.Node, parent cfg.NodeID) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		t.expr(n.NamedChild(i), parent)
	}
}

func (t *translator) join(parent cfg.NodeID, n *sitter.Node) cfg.NodeID {
	return t.node(cfg.Node{Parent: parent, Kind: cfg.NodeExpression, Eval: cfg.EvalJoin, Line: lineOf(n), Text: t.text(n)})
}

// reference lowers an identifier to a reference node read in place.
func (t *translator) reference(n *sitter.Node, parent cfg.NodeID) cfg.NodeID {
	name := t.text(n)
	id := t.node(cfg.Node{Parent: parent, Kind: cfg.NodeReference, Name: name, Line: lineOf(n), Text: name})
	t.reads[n.StartByte()] = t.b.Emit(cfg.Read{Variable: name}, id, lineOf(n))
	return id
}

// callType returns the result type of a call from the callee name.
func (t *translator) callType(callee string) string {
	if t.classes[callee] || builtinClasses[callee] {
		return callee
	}
	if r, ok := builtinResults[callee]; ok {
		return r
	}
	return t.returns[callee]
}

func (t *translator) call(n *sitter.Node, parent cfg.NodeID) cfg.NodeID {
	fn := n.ChildByFieldName("function")
	callee := ""
	if fn != nil && fn.Type() == "identifier" {
		callee = t.text(fn)
	}

	node := cfg.Node{Parent: parent, Kind: cfg.NodeExpression, Line: lineOf(n), Text: t.text(n)}
	if typ := t.callType(callee); typ != "" {
		node.Eval, node.Type = cfg.EvalTyped, typ
	}
	id := t.node(node)

	if fn != nil && fn.Type() == "attribute" {
		t.expr(fn.ChildByFieldName("object"), id)
	}

	args := n.ChildByFieldName("arguments")
	if args == nil {
		return id
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		switch arg.Type() {
		case "identifier":
			ref := t.reference(arg, id)
			if callee != "isinstance" {
				t.b.Emit(cfg.Argument{Variable: t.text(arg)}, ref, lineOf(arg))
			}
		case "keyword_argument":
			t.expr(arg.ChildByFieldName("value"), id)
		default:
			t.expr(arg, id)
		}
	}
	return id
}
