package frontend

import (
	"slices"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/go-type-query/pkg/cfg"
)

// builtinClasses are constructors whose call produces an instance of the
// class itself.
var builtinClasses = map[string]bool{
	"object": true, "int": true, "float": true, "complex": true, "bool": true,
	"str": true, "bytes": true, "list": true, "dict": true, "set": true,
	"frozenset": true, "tuple": true,
}

// builtinResults are the result types of common builtin functions.
var builtinResults = map[string]string{
	"len":        "int",
	"hash":       "int",
	"id":         "int",
	"ord":        "int",
	"repr":       "str",
	"chr":        "str",
	"format":     "str",
	"input":      "str",
	"isinstance": "bool",
	"issubclass": "bool",
	"callable":   "bool",
	"hasattr":    "bool",
	"all":        "bool",
	"any":        "bool",
	"range":      "list[int]",
	"sorted":     "list",
}

type loopFrame struct {
	head   int
	breaks []int
}

// narrowing is an isinstance test on a variable read.
type narrowing struct {
	variable string
	typ      string
	target   int
}

// translator lowers one Python scope into instructions.
type translator struct {
	src     []byte
	b       *cfg.Builder
	class   string            // class enclosing the lowered function
	classes map[string]bool   // classes declared in the module
	returns map[string]string // return annotations by function name
	reads   map[uint32]int    // identifier start byte -> read ordinal
	loops   []*loopFrame
	exits   []int
}

func newTranslator(src []byte, scope string, unit *Unit) *translator {
	t := &translator{
		src:     src,
		b:       cfg.NewBuilder(scope),
		classes: make(map[string]bool, len(unit.Classes)),
		returns: make(map[string]string, len(unit.Functions)),
		reads:   make(map[uint32]int),
	}
	for _, c := range unit.Classes {
		t.classes[c.Name] = true
	}
	for _, f := range unit.Functions {
		if f.ReturnType != "" && !strings.Contains(f.Name, ".") {
			t.returns[f.Name] = f.ReturnType
		}
	}
	return t
}

func (t *translator) text(n *sitter.Node) string {
	return content(n, t.src)
}

func (t *translator) node(n cfg.Node) cfg.NodeID {
	return t.b.Node(n)
}

// statement creates the root node of a statement.
func (t *translator) statement(n *sitter.Node) cfg.NodeID {
	text := t.text(n)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return t.node(cfg.Node{Parent: cfg.NoNode, Kind: cfg.NodeStatement, Line: lineOf(n), Text: text})
}

func (t *translator) typed(typ string, parent cfg.NodeID, n *sitter.Node) cfg.NodeID {
	return t.node(cfg.Node{Parent: parent, Kind: cfg.NodeExpression, Eval: cfg.EvalTyped, Type: typ, Line: lineOf(n), Text: t.text(n)})
}

func (t *translator) module(root *sitter.Node) {
	t.b.Emit(cfg.Plain{}, cfg.NoNode, 1)
	t.block(root)
	t.finish(endLineOf(root))
}

func (t *translator) function(fn *sitter.Node) {
	t.b.Emit(cfg.Plain{}, cfg.NoNode, lineOf(fn))
	t.parameters(fn.ChildByFieldName("parameters"))
	t.block(fn.ChildByFieldName("body"))
	t.finish(endLineOf(fn))
}

// finish joins the fall-through end with every return and raise.
func (t *translator) finish(line int) {
	t.b.SetPending(append(t.b.Pending(), t.exits...))
	t.b.Emit(cfg.Plain{}, cfg.NoNode, line)
}

func (t *translator) parameters(params *sitter.Node) {
	if params == nil {
		return
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		var name, typ string
		var def *sitter.Node
		switch p.Type() {
		case "identifier":
			name = t.text(p)
		case "typed_parameter":
			inner := p.NamedChild(0)
			typ = t.text(p.ChildByFieldName("type"))
			switch inner.Type() {
			case "identifier":
				name = t.text(inner)
			case "list_splat_pattern":
				name = t.text(inner.NamedChild(0))
				typ = "tuple[" + typ + ", ...]"
			case "dictionary_splat_pattern":
				name = t.text(inner.NamedChild(0))
				typ = "dict[str, " + typ + "]"
			}
		case "default_parameter":
			name = t.text(p.ChildByFieldName("name"))
			def = p.ChildByFieldName("value")
		case "typed_default_parameter":
			name = t.text(p.ChildByFieldName("name"))
			typ = t.text(p.ChildByFieldName("type"))
			def = p.ChildByFieldName("value")
		case "list_splat_pattern":
			name, typ = t.text(p.NamedChild(0)), "tuple"
		case "dictionary_splat_pattern":
			name, typ = t.text(p.NamedChild(0)), "dict"
		}
		if name == "" {
			continue
		}

		stmt := t.statement(p)
		value := cfg.NoNode
		switch {
		case typ != "":
			value = t.typed(typ, stmt, p)
		case i == 0 && t.class != "" && def == nil:
			// self
			value = t.typed(t.class, stmt, p)
		case def != nil:
			value = t.expr(def, stmt)
		}
		t.b.Emit(cfg.Write{Variable: name, Value: value, TupleIndex: -1}, stmt, lineOf(p))
	}
}

func (t *translator) block(n *sitter.Node) {
	if n == nil {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		t.stmt(n.NamedChild(i))
	}
}

func (t *translator) stmt(n *sitter.Node) {
	switch n.Type() {
	case "comment", "pass_statement", "global_statement", "nonlocal_statement",
		"import_statement", "import_from_statement", "future_import_statement":
	case "expression_statement":
		stmt := t.statement(n)
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			switch c.Type() {
			case "assignment":
				t.assignment(c, stmt)
			case "augmented_assignment":
				t.augmented(c, stmt)
			default:
				t.expr(c, stmt)
			}
		}
	case "if_statement":
		t.branch(n.ChildByFieldName("condition"), n.ChildByFieldName("consequence"), alternatives(n), n)
	case "while_statement":
		t.while(n)
	case "for_statement":
		t.forLoop(n)
	case "try_statement":
		t.try(n)
	case "with_statement":
		t.with(n)
	case "return_statement", "raise_statement":
		stmt := t.statement(n)
		for i := 0; i < int(n.NamedChildCount()); i++ {
			t.expr(n.NamedChild(i), stmt)
		}
		t.exits = append(t.exits, t.b.Pending()...)
		t.b.SetPending(nil)
	case "break_statement":
		if len(t.loops) > 0 {
			loop := t.loops[len(t.loops)-1]
			loop.breaks = append(loop.breaks, t.b.Pending()...)
			t.b.SetPending(nil)
		}
	case "continue_statement":
		if len(t.loops) > 0 {
			head := t.loops[len(t.loops)-1].head
			for _, p := range t.b.Pending() {
				t.b.Edge(p, head)
			}
			t.b.SetPending(nil)
		}
	case "assert_statement":
		t.assert(n)
	case "decorated_definition":
		t.stmt(n.ChildByFieldName("definition"))
	case "function_definition", "class_definition":
		stmt := t.statement(n)
		target := t.node(cfg.Node{Parent: stmt, Kind: cfg.NodeOther, Name: t.text(n.ChildByFieldName("name")), Line: lineOf(n)})
		t.b.Emit(cfg.Write{Variable: t.text(n.ChildByFieldName("name")), Value: cfg.NoNode, TupleIndex: -1}, target, lineOf(n))
	default:
		stmt := t.statement(n)
		for i := 0; i < int(n.NamedChildCount()); i++ {
			t.expr(n.NamedChild(i), stmt)
		}
	}
}

// alternatives returns the elif and else clauses of an if statement.
func alternatives(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "elif_clause" || c.Type() == "else_clause" {
			out = append(out, c)
		}
	}
	return out
}

func (t *translator) assignment(n *sitter.Node, stmt cfg.NodeID) {
	var targets []*sitter.Node
	var annotation, value *sitter.Node
	for cur := n; cur != nil; {
		targets = append(targets, cur.ChildByFieldName("left"))
		if typ := cur.ChildByFieldName("type"); typ != nil && annotation == nil {
			annotation = typ
		}
		right := cur.ChildByFieldName("right")
		if right != nil && right.Type() == "assignment" {
			cur = right
			continue
		}
		value = right
		break
	}
	if value == nil {
		// bare annotation, nothing is bound
		return
	}

	v := t.expr(value, stmt)
	if annotation != nil {
		v = t.typed(t.text(annotation), stmt, annotation)
	}
	for _, target := range targets {
		t.bind(target, v, -1, stmt)
	}
}

func (t *translator) augmented(n *sitter.Node, stmt cfg.NodeID) {
	left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")
	if left.Type() != "identifier" {
		t.expr(left, stmt)
		t.expr(right, stmt)
		return
	}
	join := t.node(cfg.Node{Parent: stmt, Kind: cfg.NodeExpression, Eval: cfg.EvalJoin, Line: lineOf(n), Text: t.text(n)})
	t.expr(left, join)
	t.expr(right, join)
	t.b.Emit(cfg.Write{Variable: t.text(left), Value: join, TupleIndex: -1}, stmt, lineOf(n))
}

// bind assigns value to a target. Patterns assign their positions; nested
// patterns get unknown values.
func (t *translator) bind(target *sitter.Node, value cfg.NodeID, index int, stmt cfg.NodeID) {
	if target == nil {
		return
	}
	switch target.Type() {
	case "identifier", "as_pattern_target":
		name := t.text(target)
		el := t.node(cfg.Node{Parent: stmt, Kind: cfg.NodeOther, Name: name, Line: lineOf(target), Text: name})
		t.b.Emit(cfg.Write{Variable: name, Value: value, TupleIndex: index}, el, lineOf(target))
	case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list", "expression_list":
		pos := 0
		for i := 0; i < int(target.NamedChildCount()); i++ {
			c := target.NamedChild(i)
			switch c.Type() {
			case "comment":
				continue
			case "identifier":
				if index < 0 {
					t.bind(c, value, pos, stmt)
				} else {
					t.bind(c, cfg.NoNode, -1, stmt)
				}
			case "list_splat_pattern", "list_splat":
				rest := t.typed("list", stmt, c)
				t.bind(c.NamedChild(0), rest, -1, stmt)
			default:
				t.bind(c, cfg.NoNode, -1, stmt)
			}
			pos++
		}
	case "parenthesized_expression":
		t.bind(target.NamedChild(0), value, index, stmt)
	default:
		// attribute and subscript targets only read their operands
		t.expr(target, stmt)
	}
}

// branch lowers an if or elif: condition marker, narrowings per outcome,
// and a merge that ends the narrowings when both outcomes fall through.
func (t *translator) branch(condition, consequence *sitter.Node, alts []*sitter.Node, at *sitter.Node) {
	if condition == nil {
		return
	}
	stmt := t.statement(condition)
	line := lineOf(condition)
	cond := t.b.Emit(cfg.Plain{}, stmt, line)
	t.expr(condition, stmt)
	whenTrue, whenFalse := t.narrowings(condition)
	from := t.b.Pending()

	t.narrow(whenTrue, cond, line)
	t.block(consequence)
	taken := t.b.Pending()

	t.b.SetPending(from)
	t.narrow(whenFalse, cond, line)
	if len(alts) > 0 {
		alt := alts[0]
		switch alt.Type() {
		case "elif_clause":
			t.branch(alt.ChildByFieldName("condition"), alt.ChildByFieldName("consequence"), alts[1:], alt)
		case "else_clause":
			t.block(alt.ChildByFieldName("body"))
		}
	}
	skipped := t.b.Pending()

	t.b.SetPending(append(taken, skipped...))
	merge := t.b.Emit(cfg.Plain{}, cfg.NoNode, endLineOf(at))
	if len(taken) > 0 && len(skipped) > 0 {
		t.b.Negate(merge, cond)
	}
}

func (t *translator) while(n *sitter.Node) {
	condition := n.ChildByFieldName("condition")
	stmt := t.statement(condition)
	line := lineOf(condition)
	head := t.b.Emit(cfg.Plain{}, stmt, line)
	t.b.Negate(head, head)
	t.expr(condition, stmt)
	whenTrue, whenFalse := t.narrowings(condition)
	from := t.b.Pending()

	loop := &loopFrame{head: head}
	t.loops = append(t.loops, loop)
	t.narrow(whenTrue, head, line)
	t.block(n.ChildByFieldName("body"))
	for _, p := range t.b.Pending() {
		t.b.Edge(p, head)
	}
	t.loops = t.loops[:len(t.loops)-1]

	if condition.Type() == "true" {
		// only breaks leave the loop
		t.b.SetPending(nil)
	} else {
		t.b.SetPending(from)
		t.narrow(whenFalse, head, line)
		t.elseClause(n)
	}
	t.loopExit(loop, n)
}

func (t *translator) forLoop(n *sitter.Node) {
	header := t.statement(n)
	elem := t.node(cfg.Node{Parent: header, Kind: cfg.NodeExpression, Eval: cfg.EvalElement, Line: lineOf(n)})
	t.expr(n.ChildByFieldName("right"), elem)
	head := t.b.Emit(cfg.Plain{}, header, lineOf(n))

	loop := &loopFrame{head: head}
	t.loops = append(t.loops, loop)
	t.bind(n.ChildByFieldName("left"), elem, -1, header)
	t.block(n.ChildByFieldName("body"))
	for _, p := range t.b.Pending() {
		t.b.Edge(p, head)
	}
	t.loops = t.loops[:len(t.loops)-1]

	t.b.SetPending([]int{head})
	t.elseClause(n)
	t.loopExit(loop, n)
}

func (t *translator) elseClause(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "else_clause" {
			t.block(c.ChildByFieldName("body"))
		}
	}
}

// loopExit joins the normal exit with the breaks. Narrowings of the loop
// condition end where breaks join in.
func (t *translator) loopExit(loop *loopFrame, n *sitter.Node) {
	if len(loop.breaks) == 0 {
		return
	}
	t.b.SetPending(append(t.b.Pending(), loop.breaks...))
	exit := t.b.Emit(cfg.Plain{}, cfg.NoNode, endLineOf(n))
	t.b.Negate(exit, loop.head)
}

// try lowers a try statement. Any instruction of the body may raise, so
// every handler is entered from the state before the body and from after
// each body instruction. The finally block is entered from every
// instruction of the statement as well as from the normal end.
func (t *translator) try(n *sitter.Node) {
	start := t.b.Pending()
	first := t.b.Len()
	t.block(n.ChildByFieldName("body"))
	done := t.b.Pending()
	raising := append(slices.Clone(start), span(first, t.b.Len())...)

	var handlers []*sitter.Node
	var elseBody, finally *sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "except_clause", "except_group_clause":
			handlers = append(handlers, c)
		case "else_clause":
			elseBody = c.ChildByFieldName("body")
		case "finally_clause":
			finally = c
		}
	}

	var ends []int
	for _, h := range handlers {
		t.b.SetPending(raising)
		t.handler(h)
		ends = append(ends, t.b.Pending()...)
	}

	t.b.SetPending(done)
	t.block(elseBody)
	t.b.SetPending(append(t.b.Pending(), ends...))

	if finally != nil {
		entries := append(t.b.Pending(), start...)
		t.b.SetPending(append(entries, span(first, t.b.Len())...))
		for i := 0; i < int(finally.NamedChildCount()); i++ {
			if c := finally.NamedChild(i); c.Type() == "block" {
				t.block(c)
			}
		}
	}
}

// span returns the ordinals from lo up to hi.
func span(lo, hi int) []int {
	out := make([]int, 0, max(hi-lo, 0))
	for o := lo; o < hi; o++ {
		out = append(out, o)
	}
	return out
}

// handler lowers an except clause, binding the exception to its alias.
func (t *translator) handler(h *sitter.Node) {
	stmt := t.statement(h)
	t.b.Emit(cfg.Plain{}, stmt, lineOf(h))

	var parts []*sitter.Node
	var body *sitter.Node
	for i := 0; i < int(h.NamedChildCount()); i++ {
		c := h.NamedChild(i)
		switch c.Type() {
		case "block":
			body = c
		case "comment":
		case "as_pattern":
			for j := 0; j < int(c.NamedChildCount()); j++ {
				parts = append(parts, c.NamedChild(j))
			}
		default:
			parts = append(parts, c)
		}
	}

	if len(parts) > 0 {
		class := parts[0]
		t.expr(class, stmt)
		if len(parts) > 1 {
			value := cfg.NoNode
			if class.Type() == "identifier" || class.Type() == "attribute" {
				value = t.typed(lastSegment(t.text(class)), stmt, class)
			}
			t.bind(aliasTarget(parts[1]), value, -1, stmt)
		}
	}
	t.block(body)
}

// aliasTarget unwraps the target of an "as" clause.
func aliasTarget(n *sitter.Node) *sitter.Node {
	if n != nil && n.Type() == "as_pattern_target" && n.NamedChildCount() > 0 {
		return n.NamedChild(0)
	}
	return n
}

func (t *translator) with(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		if clause.Type() != "with_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			item := clause.NamedChild(j)
			if item.Type() != "with_item" {
				continue
			}
			t.withItem(item)
		}
	}
	t.block(n.ChildByFieldName("body"))
}

func (t *translator) withItem(item *sitter.Node) {
	stmt := t.statement(item)
	value := item.ChildByFieldName("value")
	if value == nil {
		value = item.NamedChild(0)
	}
	if alias := item.ChildByFieldName("alias"); alias != nil {
		t.bind(aliasTarget(alias), t.expr(value, stmt), -1, stmt)
		return
	}
	if value.Type() == "as_pattern" && value.NamedChildCount() >= 2 {
		v := t.expr(value.NamedChild(0), stmt)
		t.bind(aliasTarget(value.NamedChild(1)), v, -1, stmt)
		return
	}
	t.expr(value, stmt)
}

// assert narrows on the asserted condition for the rest of the scope.
func (t *translator) assert(n *sitter.Node) {
	stmt := t.statement(n)
	cond := t.b.Emit(cfg.Plain{}, stmt, lineOf(n))
	for i := 0; i < int(n.NamedChildCount()); i++ {
		t.expr(n.NamedChild(i), stmt)
	}
	if n.NamedChildCount() > 0 {
		whenTrue, _ := t.narrowings(n.NamedChild(0))
		t.narrow(whenTrue, cond, lineOf(n))
	}
}

func (t *translator) narrow(ns []narrowing, cond, line int) {
	for _, n := range ns {
		t.b.Emit(cfg.Narrowing{Variable: n.variable, Type: n.typ, Condition: cond, Target: n.target}, cfg.NoNode, line)
	}
}

// narrowings returns the isinstance tests that hold when the condition is
// true and when it is false. It must run after the condition was lowered.
func (t *translator) narrowings(cond *sitter.Node) (whenTrue, whenFalse []narrowing) {
	if cond == nil {
		return nil, nil
	}
	switch cond.Type() {
	case "parenthesized_expression":
		return t.narrowings(cond.NamedChild(0))
	case "not_operator":
		tr, fa := t.narrowings(cond.ChildByFieldName("argument"))
		return fa, tr
	case "boolean_operator":
		lt, lf := t.narrowings(cond.ChildByFieldName("left"))
		rt, rf := t.narrowings(cond.ChildByFieldName("right"))
		switch t.text(cond.ChildByFieldName("operator")) {
		case "and":
			return append(lt, rt...), nil
		case "or":
			return nil, append(lf, rf...)
		}
	case "call":
		if t.text(cond.ChildByFieldName("function")) != "isinstance" {
			return nil, nil
		}
		args := cond.ChildByFieldName("arguments")
		if args == nil || args.NamedChildCount() != 2 {
			return nil, nil
		}
		subject, class := args.NamedChild(0), args.NamedChild(1)
		if subject.Type() != "identifier" || (class.Type() != "identifier" && class.Type() != "attribute") {
			return nil, nil
		}
		read, ok := t.reads[subject.StartByte()]
		if !ok {
			return nil, nil
		}
		return []narrowing{{variable: t.text(subject), typ: lastSegment(t.text(class)), target: read}}, nil
	}
	return nil, nil
}
