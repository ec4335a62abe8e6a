package types

import (
	"fmt"
	"strings"
	"unicode"
)

// Parse reads a type expression such as "int", "list[str]",
// "tuple[int, str]" or "(int, str)". Dotted names keep their last segment.
func Parse(s string) (Type, error) {
	p := &parser{src: s}
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("unexpected %q at offset %d in type %q", p.src[p.pos:], p.pos, s)
	}
	return t, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Type {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

type parser struct {
	src string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) parseType() (Type, error) {
	if p.peek() == '(' {
		p.pos++
		elems, err := p.parseList(')')
		if err != nil {
			return nil, err
		}
		return Tuple{Elems: elems}, nil
	}

	name := p.parseName()
	if name == "" {
		return nil, fmt.Errorf("expected type name at offset %d in %q", p.pos, p.src)
	}
	if p.peek() != '[' {
		return Named{Name: name}, nil
	}
	p.pos++
	args, err := p.parseList(']')
	if err != nil {
		return nil, err
	}
	if name == "tuple" {
		// tuple[T, ...] is the homogeneous tuple
		if len(args) == 2 && Equal(args[1], Named{Name: "..."}) {
			return Named{Name: name, Args: args[:1]}, nil
		}
		return Tuple{Elems: args}, nil
	}
	return Named{Name: name, Args: args}, nil
}

func (p *parser) parseList(closer byte) ([]Type, error) {
	var out []Type
	if p.peek() == closer {
		p.pos++
		return out, nil
	}
	for {
		var t Type
		p.skipSpace()
		if strings.HasPrefix(p.src[p.pos:], "...") {
			p.pos += 3
			t = Named{Name: "..."}
		} else {
			var err error
			if t, err = p.parseType(); err != nil {
				return nil, err
			}
		}
		out = append(out, t)
		switch p.peek() {
		case ',':
			p.pos++
		case closer:
			p.pos++
			return out, nil
		default:
			return nil, fmt.Errorf("expected ',' or %q at offset %d in %q", closer, p.pos, p.src)
		}
	}
}

func (p *parser) parseName() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		r := rune(p.src[p.pos])
		if r != '_' && r != '.' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		p.pos++
	}
	name := p.src[start:p.pos]
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}
