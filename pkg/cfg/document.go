package cfg

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Format is a serialization format for flow documents.
type Format string

const (
	FormatYAML    Format = "yaml"
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// FormatFromPath picks a format from a file extension. Unknown extensions
// default to YAML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".msgpack", ".mpk":
		return FormatMsgpack
	default:
		return FormatYAML
	}
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatYAML, FormatJSON, FormatMsgpack:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format %q (want yaml, json or msgpack)", s)
	}
}

// Document is the serialized form of a Flow plus the class declarations its
// types refer to. Instructions without an explicit successor list fall
// through to the next instruction unless End is set.
type Document struct {
	Scope        string                `yaml:"scope" json:"scope" msgpack:"scope"`
	Classes      map[string][]string   `yaml:"classes,omitempty" json:"classes,omitempty" msgpack:"classes,omitempty"`
	Nodes        []DocumentNode        `yaml:"nodes,omitempty" json:"nodes,omitempty" msgpack:"nodes,omitempty"`
	Instructions []DocumentInstruction `yaml:"instructions" json:"instructions" msgpack:"instructions"`
}

// DocumentNode is the serialized form of a Node.
type DocumentNode struct {
	ID        int    `yaml:"id" json:"id" msgpack:"id"`
	Parent    *int   `yaml:"parent,omitempty" json:"parent,omitempty" msgpack:"parent,omitempty"`
	Kind      string `yaml:"kind,omitempty" json:"kind,omitempty" msgpack:"kind,omitempty"`
	Name      string `yaml:"name,omitempty" json:"name,omitempty" msgpack:"name,omitempty"`
	Qualified bool   `yaml:"qualified,omitempty" json:"qualified,omitempty" msgpack:"qualified,omitempty"`
	Eval      string `yaml:"eval,omitempty" json:"eval,omitempty" msgpack:"eval,omitempty"`
	Type      string `yaml:"type,omitempty" json:"type,omitempty" msgpack:"type,omitempty"`
	Line      int    `yaml:"line,omitempty" json:"line,omitempty" msgpack:"line,omitempty"`
	Text      string `yaml:"text,omitempty" json:"text,omitempty" msgpack:"text,omitempty"`
}

// DocumentInstruction is the serialized form of an Instruction. For writes,
// Type is a shorthand for a value node evaluating to that type; for
// narrowings it is the tested type.
type DocumentInstruction struct {
	Op        string `yaml:"op" json:"op" msgpack:"op"`
	Var       string `yaml:"var,omitempty" json:"var,omitempty" msgpack:"var,omitempty"`
	Element   *int   `yaml:"element,omitempty" json:"element,omitempty" msgpack:"element,omitempty"`
	Value     *int   `yaml:"value,omitempty" json:"value,omitempty" msgpack:"value,omitempty"`
	Type      string `yaml:"type,omitempty" json:"type,omitempty" msgpack:"type,omitempty"`
	Tuple     *int   `yaml:"tuple,omitempty" json:"tuple,omitempty" msgpack:"tuple,omitempty"`
	Condition *int   `yaml:"condition,omitempty" json:"condition,omitempty" msgpack:"condition,omitempty"`
	Target    *int   `yaml:"target,omitempty" json:"target,omitempty" msgpack:"target,omitempty"`
	Succ      []int  `yaml:"succ,omitempty" json:"succ,omitempty" msgpack:"succ,omitempty"`
	End       bool   `yaml:"end,omitempty" json:"end,omitempty" msgpack:"end,omitempty"`
	Negates   []int  `yaml:"negates,omitempty" json:"negates,omitempty" msgpack:"negates,omitempty"`
	Line      int    `yaml:"line,omitempty" json:"line,omitempty" msgpack:"line,omitempty"`
}

// LoadDocument reads a flow document from disk, choosing the format by
// extension.
func LoadDocument(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open flow document: %w", err)
	}
	defer f.Close()
	return DecodeDocument(f, FormatFromPath(path))
}

// DecodeDocument reads a flow document in the given format.
func DecodeDocument(r io.Reader, format Format) (*Document, error) {
	var doc Document
	var err error
	switch format {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&doc)
	case FormatMsgpack:
		err = msgpack.NewDecoder(r).Decode(&doc)
	default:
		err = yaml.NewDecoder(r).Decode(&doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s flow document: %w", format, err)
	}
	return &doc, nil
}

// Encode writes the document in the given format.
func (d *Document) Encode(w io.Writer, format Format) error {
	var err error
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(d)
	case FormatMsgpack:
		err = msgpack.NewEncoder(w).Encode(d)
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err = enc.Encode(d); err == nil {
			err = enc.Close()
		}
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s flow document: %w", format, err)
	}
	return nil
}

// Flow builds and validates the flow the document describes.
func (d *Document) Flow() (*Flow, error) {
	b := NewBuilder(d.Scope)
	for i, n := range d.Nodes {
		if n.ID != i {
			return nil, fmt.Errorf("%w: node %d listed at position %d", ErrInvalidFlow, n.ID, i)
		}
		parent := NoNode
		if n.Parent != nil {
			parent = NodeID(*n.Parent)
		}
		b.Node(Node{
			Parent:    parent,
			Kind:      NodeKind(n.Kind),
			Name:      n.Name,
			Qualified: n.Qualified,
			Eval:      Eval(n.Eval),
			Type:      n.Type,
			Line:      n.Line,
			Text:      n.Text,
		})
	}

	for i, di := range d.Instructions {
		op, err := d.op(b, i, di)
		if err != nil {
			return nil, err
		}
		element := NoNode
		if di.Element != nil {
			element = NodeID(*di.Element)
		}
		b.Detached(op, element, di.Line)
	}

	n := len(d.Instructions)
	for i, di := range d.Instructions {
		switch {
		case di.End:
		case len(di.Succ) > 0:
			for _, s := range di.Succ {
				b.Edge(i, s)
			}
		case i+1 < n:
			b.Edge(i, i+1)
		}
		b.Negate(i, di.Negates...)
	}
	return b.Build()
}

func (d *Document) op(b *Builder, i int, di DocumentInstruction) (Op, error) {
	switch strings.ToLower(di.Op) {
	case "", "plain":
		return Plain{}, nil
	case "read":
		return Read{Variable: di.Var}, nil
	case "argument":
		return Argument{Variable: di.Var}, nil
	case "write":
		value := NoNode
		switch {
		case di.Value != nil:
			value = NodeID(*di.Value)
		case di.Type != "":
			value = b.Node(Node{
				Parent: NoNode,
				Kind:   NodeExpression,
				Eval:   EvalTyped,
				Type:   di.Type,
				Line:   di.Line,
			})
		}
		tuple := -1
		if di.Tuple != nil {
			tuple = *di.Tuple
		}
		return Write{Variable: di.Var, Value: value, TupleIndex: tuple}, nil
	case "narrowing":
		if di.Condition == nil || di.Target == nil {
			return nil, fmt.Errorf("%w: narrowing %d needs condition and target", ErrInvalidFlow, i)
		}
		return Narrowing{Variable: di.Var, Type: di.Type, Condition: *di.Condition, Target: *di.Target}, nil
	default:
		return nil, fmt.Errorf("%w: instruction %d has unknown op %q", ErrInvalidFlow, i, di.Op)
	}
}

// NewDocument serializes a flow. Classes are copied into the document as
// given.
func NewDocument(f *Flow, classes map[string][]string) *Document {
	doc := &Document{Scope: f.Name, Classes: classes}
	for _, n := range f.Nodes {
		dn := DocumentNode{
			ID:        int(n.ID),
			Kind:      string(n.Kind),
			Name:      n.Name,
			Qualified: n.Qualified,
			Eval:      string(n.Eval),
			Type:      n.Type,
			Line:      n.Line,
			Text:      n.Text,
		}
		if n.Parent != NoNode {
			dn.Parent = intPtr(int(n.Parent))
		}
		doc.Nodes = append(doc.Nodes, dn)
	}

	for _, inst := range f.Instructions {
		di := DocumentInstruction{
			Op:      OpName(inst.Op),
			Var:     inst.Variable(),
			Line:    inst.Line,
			Negates: inst.Negates,
		}
		if inst.Element != NoNode {
			di.Element = intPtr(int(inst.Element))
		}
		switch op := inst.Op.(type) {
		case Write:
			if op.Value != NoNode {
				di.Value = intPtr(int(op.Value))
			}
			if op.TupleIndex >= 0 {
				di.Tuple = intPtr(op.TupleIndex)
			}
		case Narrowing:
			di.Type = op.Type
			di.Condition = intPtr(op.Condition)
			di.Target = intPtr(op.Target)
		}
		switch {
		case len(inst.Succ) == 0:
			di.End = true
		case len(inst.Succ) == 1 && inst.Succ[0] == inst.Ordinal+1:
		default:
			di.Succ = inst.Succ
		}
		doc.Instructions = append(doc.Instructions, di)
	}
	return doc
}

func intPtr(v int) *int {
	return &v
}
