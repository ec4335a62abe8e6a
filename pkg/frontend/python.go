// Package frontend builds inference inputs from Python source. It parses a
// module with tree-sitter, lowers one function (or the module body) into a
// cfg.Flow and collects the class and function declarations the types in
// that flow refer to.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/l3aro/go-type-query/pkg/cfg"
	"github.com/l3aro/go-type-query/pkg/types"
)

// ModuleScope is the function name selecting the module body.
const ModuleScope = "<module>"

// ErrFunctionNotFound is returned when the requested function is not
// defined in the source.
var ErrFunctionNotFound = errors.New("function not found")

// Unit is the result of lowering one scope of a Python module.
type Unit struct {
	Function  string
	Flow      *cfg.Flow
	Classes   []types.Class
	Functions []types.Function
}

// ClassMap returns the declared classes with their base names.
func (u *Unit) ClassMap() map[string][]string {
	out := make(map[string][]string, len(u.Classes))
	for _, c := range u.Classes {
		out[c.Name] = c.Bases
	}
	return out
}

// Declare adds the unit's classes to a hierarchy.
func (u *Unit) Declare(h *types.Hierarchy) {
	h.DeclareAll(u.ClassMap())
}

// Document serializes the unit's flow together with its classes.
func (u *Unit) Document() *cfg.Document {
	return cfg.NewDocument(u.Flow, u.ClassMap())
}

// ParseFile reads a Python file and lowers the named function.
func ParseFile(ctx context.Context, path, function string) (*Unit, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParsePython(ctx, content, function)
}

// ParsePython lowers the named function of a Python module. Methods are
// named "Class.method"; an empty name or ModuleScope selects the module
// body, where nested definitions only bind their names.
func ParsePython(ctx context.Context, source []byte, function string) (*Unit, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse python source: %w", err)
	}
	defer tree.Close()
	root := tree.RootNode()

	if function == "" {
		function = ModuleScope
	}
	unit := &Unit{Function: function}
	collectDeclarations(root, source, "", unit)

	t := newTranslator(source, function, unit)
	if function == ModuleScope {
		t.module(root)
	} else {
		fn, class := findFunction(root, source, strings.Split(function, "."), "")
		if fn == nil {
			return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, function)
		}
		t.class = class
		t.function(fn)
	}

	flow, err := t.b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build flow of %s: %w", function, err)
	}
	flow.SealNarrowings()
	unit.Flow = flow
	return unit, nil
}

// collectDeclarations records every class and function of the module.
// Methods are recorded as "Class.method".
func collectDeclarations(n *sitter.Node, src []byte, class string, unit *Unit) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "class_definition":
		name := content(n.ChildByFieldName("name"), src)
		unit.Classes = append(unit.Classes, types.Class{
			Name:       name,
			Bases:      baseNames(n.ChildByFieldName("superclasses"), src),
			LineNumber: lineOf(n),
		})
		collectDeclarations(n.ChildByFieldName("body"), src, name, unit)
		return
	case "function_definition":
		name := content(n.ChildByFieldName("name"), src)
		if class != "" {
			name = class + "." + name
		}
		unit.Functions = append(unit.Functions, types.Function{
			Name:       name,
			Params:     content(n.ChildByFieldName("parameters"), src),
			ReturnType: content(n.ChildByFieldName("return_type"), src),
			LineNumber: lineOf(n),
		})
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		collectDeclarations(n.NamedChild(i), src, class, unit)
	}
}

// baseNames returns the class names listed in a superclass list.
func baseNames(args *sitter.Node, src []byte) []string {
	if args == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		switch arg.Type() {
		case "identifier", "attribute":
			out = append(out, lastSegment(content(arg, src)))
		case "subscript":
			// Generic[T]
			out = append(out, lastSegment(content(arg.ChildByFieldName("value"), src)))
		}
	}
	return out
}

// findFunction locates a function definition by its dotted path and
// returns it with the name of the class it is defined in.
func findFunction(n *sitter.Node, src []byte, path []string, class string) (*sitter.Node, string) {
	if n == nil {
		return nil, ""
	}
	switch n.Type() {
	case "function_definition":
		if len(path) == 1 && content(n.ChildByFieldName("name"), src) == path[0] {
			return n, class
		}
		return nil, ""
	case "class_definition":
		// methods are only found by their qualified name
		name := content(n.ChildByFieldName("name"), src)
		if len(path) < 2 || path[0] != name {
			return nil, ""
		}
		return findFunction(n.ChildByFieldName("body"), src, path[1:], name)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if fn, cls := findFunction(n.NamedChild(i), src, path, class); fn != nil {
			return fn, cls
		}
	}
	return nil, ""
}

func content(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return n.Content(src)
}

func lineOf(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func endLineOf(n *sitter.Node) int {
	return int(n.EndPoint().Row) + 1
}

func lastSegment(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Names returns the sorted function names of the unit, methods included.
func (u *Unit) Names() []string {
	out := make([]string, 0, len(u.Functions))
	for _, f := range u.Functions {
		out = append(out, f.Name)
	}
	sort.Strings(out)
	return out
}
