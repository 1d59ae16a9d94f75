package pep3118

import (
	"strconv"
	"strings"
)

// NodeKind classifies a parsed format item.
type NodeKind int

const (
	KindScalar NodeKind = iota
	KindString
	KindUnicode
	KindArray
	KindStruct
)

// Node is one item of a parsed format string.
type Node struct {
	Kind NodeKind
	// Code is the scalar code, e.g. "i" or "Zd". Set for KindScalar.
	Code string
	// Count is the character count of a KindString or KindUnicode item.
	Count int
	// Dims and Elem describe a KindArray item.
	Dims []int
	Elem *Node
	// Fields lists the members of a KindStruct item in order.
	Fields []FieldNode
	// Size is the item size in bytes, including explicit padding.
	Size int
}

// FieldNode is a named struct member and its byte offset within the struct.
type FieldNode struct {
	Name   string
	Offset int
	Node   *Node
}

// Format is a parsed format string.
type Format struct {
	// Native is set when the format starts with '@'.
	Native bool
	Root   *Node
}

// ItemSize returns the size in bytes of one item described by the format.
func (f *Format) ItemSize() int { return f.Root.Size }

// FieldNames returns the names of a struct node's fields in order.
func (n *Node) FieldNames() []string {
	names := make([]string, len(n.Fields))
	for i, f := range n.Fields {
		names[i] = f.Name
	}
	return names
}

var scalarSizes = map[string]int{
	"?": 1, "c": 1,
	"b": 1, "h": 2, "i": 4, "q": 8,
	"B": 1, "H": 2, "I": 4, "Q": 8,
	"f": 4, "d": 8,
	"Zf": 8, "Zd": 16,
}

// ParseFormat parses the subset of the PEP 3118 format grammar that
// MakeFormat produces, plus the 'c' code used for byte buffers.
func ParseFormat(s string) (*Format, error) {
	p := &parser{src: s}
	f := &Format{}
	if p.peek() == '@' {
		f.Native = true
		p.pos++
	}
	root, err := p.item()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected trailing characters")
	}
	f.Root = root
	return f, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *parser) errorf(format string, args ...any) *Error {
	args = append([]any{p.src, p.pos}, args...)
	return newError(ErrInvalidFormat, nil, "invalid format %q at offset %d: "+format, args...)
}

func (p *parser) expect(c byte) error {
	if p.peek() != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *parser) number() (int, bool) {
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	if start == p.pos {
		return 0, false
	}
	n, err := strconv.Atoi(p.src[start:p.pos])
	if err != nil {
		p.pos = start
		return 0, false
	}
	return n, true
}

func (p *parser) item() (*Node, error) {
	c := p.peek()
	switch {
	case c == '(':
		return p.array()
	case c == 'T':
		return p.structure()
	case c >= '0' && c <= '9':
		n, _ := p.number()
		switch p.peek() {
		case 's':
			p.pos++
			return &Node{Kind: KindString, Count: n, Size: n}, nil
		case 'w':
			p.pos++
			return &Node{Kind: KindUnicode, Count: n, Size: 4 * n}, nil
		}
		return nil, p.errorf("repeat counts are only supported for 's', 'w' and 'x'")
	case c == 'Z':
		if p.pos+1 < len(p.src) {
			code := p.src[p.pos : p.pos+2]
			if size, ok := scalarSizes[code]; ok {
				p.pos += 2
				return &Node{Kind: KindScalar, Code: code, Size: size}, nil
			}
		}
		return nil, p.errorf("unknown complex code")
	case c == 0:
		return nil, p.errorf("unexpected end of format")
	}
	code := string(c)
	size, ok := scalarSizes[code]
	if !ok {
		return nil, p.errorf("unknown format code %q", c)
	}
	p.pos++
	return &Node{Kind: KindScalar, Code: code, Size: size}, nil
}

func (p *parser) array() (*Node, error) {
	p.pos++ // '('
	n := &Node{Kind: KindArray}
	for {
		d, ok := p.number()
		if !ok {
			return nil, p.errorf("expected dimension size")
		}
		n.Dims = append(n.Dims, d)
		if p.peek() != ',' {
			break
		}
		p.pos++
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	elem, err := p.item()
	if err != nil {
		return nil, err
	}
	n.Elem = elem
	n.Size = elem.Size
	for _, d := range n.Dims {
		n.Size *= d
	}
	return n, nil
}

func (p *parser) structure() (*Node, error) {
	p.pos++ // 'T'
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	n := &Node{Kind: KindStruct}
	cursor := 0
	for p.peek() != '}' {
		if p.peek() == 0 {
			return nil, p.errorf("unterminated struct")
		}
		if pad, ok := p.padding(); ok {
			cursor += pad
			continue
		}
		field, err := p.item()
		if err != nil {
			return nil, err
		}
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		end := strings.IndexByte(p.src[p.pos:], ':')
		if end <= 0 {
			return nil, p.errorf("expected field name terminated by ':'")
		}
		name := p.src[p.pos : p.pos+end]
		p.pos += end + 1
		n.Fields = append(n.Fields, FieldNode{Name: name, Offset: cursor, Node: field})
		cursor += field.Size
	}
	p.pos++ // '}'
	n.Size = cursor
	return n, nil
}

// padding consumes an "x" or "<N>x" padding item.
func (p *parser) padding() (int, bool) {
	start := p.pos
	count, hasCount := p.number()
	if p.peek() != 'x' {
		p.pos = start
		return 0, false
	}
	p.pos++
	if !hasCount {
		count = 1
	}
	return count, true
}
