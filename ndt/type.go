// Package ndt describes the types of nd arrays: scalar elements, fixed-size
// strings and bytes, fixed and variable dimensions, and structs with named
// fields at explicit byte offsets.
//
// A *Type is immutable. Runtime layout facts that the type alone does not
// fix, such as dimension strides and struct field data offsets, live in a
// parallel Arrmeta blob.
package ndt

import (
	"fmt"
	"strconv"
	"strings"
)

// ID identifies the category of a Type.
type ID int

const (
	UninitializedID ID = iota
	BoolID
	Int8ID
	Int16ID
	Int32ID
	Int64ID
	Uint8ID
	Uint16ID
	Uint32ID
	Uint64ID
	Float32ID
	Float64ID
	Complex64ID
	Complex128ID
	BytesID
	FixedBytesID
	StringID
	FixedStringID
	FixedDimID
	VarDimID
	StructID
)

var idNames = [...]string{
	UninitializedID: "uninitialized",
	BoolID:          "bool",
	Int8ID:          "int8",
	Int16ID:         "int16",
	Int32ID:         "int32",
	Int64ID:         "int64",
	Uint8ID:         "uint8",
	Uint16ID:        "uint16",
	Uint32ID:        "uint32",
	Uint64ID:        "uint64",
	Float32ID:       "float32",
	Float64ID:       "float64",
	Complex64ID:     "complex64",
	Complex128ID:    "complex128",
	BytesID:         "bytes",
	FixedBytesID:    "fixed_bytes",
	StringID:        "string",
	FixedStringID:   "fixed_string",
	FixedDimID:      "fixed_dim",
	VarDimID:        "var_dim",
	StructID:        "struct",
}

func (id ID) String() string {
	if id >= 0 && int(id) < len(idNames) {
		return idNames[id]
	}
	return "ID(" + strconv.Itoa(int(id)) + ")"
}

// Encoding is the character encoding of a fixed-length string.
type Encoding int

const (
	ASCII Encoding = iota
	UTF32
)

func (e Encoding) String() string {
	switch e {
	case ASCII:
		return "ascii"
	case UTF32:
		return "utf32"
	default:
		return "Encoding(" + strconv.Itoa(int(e)) + ")"
	}
}

// Field is a named struct member. Offset is the declared byte offset of the
// field's data from the start of the struct.
type Field struct {
	Name   string
	Type   *Type
	Offset int
}

// Type is an immutable array type descriptor.
type Type struct {
	id       ID
	dataSize int
	align    int

	encoding Encoding

	dimSize int
	elem    *Type

	fields         []Field
	arrmetaOffsets []int

	arrmetaSize int
}

// builtin sizes and alignments, indexed by ID.
var builtins = map[ID]struct{ size, align int }{
	BoolID:       {1, 1},
	Int8ID:       {1, 1},
	Int16ID:      {2, 2},
	Int32ID:      {4, 4},
	Int64ID:      {8, 8},
	Uint8ID:      {1, 1},
	Uint16ID:     {2, 2},
	Uint32ID:     {4, 4},
	Uint64ID:     {8, 8},
	Float32ID:    {4, 4},
	Float64ID:    {8, 8},
	Complex64ID:  {8, 4},
	Complex128ID: {16, 8},
}

// Make returns the scalar type for id. It panics if id is not one of the
// fixed-size scalar categories.
func Make(id ID) *Type {
	b, ok := builtins[id]
	if !ok {
		panic(fmt.Sprintf("ndt: %s is not a scalar type id", id))
	}
	return &Type{id: id, dataSize: b.size, align: b.align}
}

// Bytes returns the variable-length bytes type. Its size is only known from
// an array instance, so DataSize reports 0.
func Bytes() *Type {
	return &Type{id: BytesID, align: 1}
}

// FixedBytes returns a bytes type of exactly n bytes.
func FixedBytes(n int) *Type {
	if n < 0 {
		panic("ndt: negative fixed_bytes size")
	}
	return &Type{id: FixedBytesID, dataSize: n, align: 1}
}

// String returns the variable-length utf-8 string type.
func String() *Type {
	return &Type{id: StringID, align: 1}
}

// FixedString returns a string type occupying exactly n bytes in the given
// encoding. For UTF32, n must be a multiple of 4.
func FixedString(n int, enc Encoding) *Type {
	if n < 0 {
		panic("ndt: negative fixed_string size")
	}
	align := 1
	if enc == UTF32 {
		if n%4 != 0 {
			panic("ndt: utf32 fixed_string size must be a multiple of 4")
		}
		align = 4
	}
	return &Type{id: FixedStringID, dataSize: n, align: align, encoding: enc}
}

// FixedDim returns a dimension of n elements laid out back to back.
func FixedDim(n int, elem *Type) *Type {
	return FixedDimOfSize(n, elem, n*elem.dataSize)
}

// FixedDimOfSize returns a dimension of n elements whose total data size is
// dataSize. When dataSize is not n times the element size the dimension is
// not C-ordered and cannot be described by a PEP 3118 format.
func FixedDimOfSize(n int, elem *Type, dataSize int) *Type {
	if n < 0 {
		panic("ndt: negative fixed_dim size")
	}
	if elem == nil {
		panic("ndt: nil fixed_dim element type")
	}
	return &Type{
		id:          FixedDimID,
		dataSize:    dataSize,
		align:       elem.align,
		dimSize:     n,
		elem:        elem,
		arrmetaSize: dimArrmetaSize + elem.arrmetaSize,
	}
}

// VarDim returns a ragged dimension whose size varies per instance.
func VarDim(elem *Type) *Type {
	if elem == nil {
		panic("ndt: nil var_dim element type")
	}
	return &Type{
		id:          VarDimID,
		dataSize:    2 * wordSize,
		align:       wordSize,
		elem:        elem,
		arrmetaSize: dimArrmetaSize + elem.arrmetaSize,
	}
}

// Struct returns a struct type with fields at their declared offsets. The
// data size is the end of the furthest field; no trailing padding is added.
func Struct(fields ...Field) (*Type, error) {
	return makeStruct(fields, false)
}

func makeStruct(fields []Field, padTail bool) (*Type, error) {
	if err := checkFields(fields); err != nil {
		return nil, err
	}
	tp := &Type{id: StructID, align: 1}
	end := 0
	for _, f := range fields {
		if f.Offset < 0 {
			return nil, fmt.Errorf("ndt: field %q has negative offset %d", f.Name, f.Offset)
		}
		end = max(end, f.Offset+f.Type.dataSize)
		tp.align = max(tp.align, f.Type.align)
	}
	tp.dataSize = end
	if padTail {
		tp.dataSize = alignUp(end, tp.align)
	}
	tp.setFields(fields)
	return tp, nil
}

// AlignedStruct returns a struct type whose field offsets are assigned in
// declaration order with natural alignment, ignoring any Offset set on the
// input fields. The data size is padded to a multiple of the alignment, as a
// C compiler would lay the struct out.
func AlignedStruct(fields ...Field) (*Type, error) {
	if err := checkFields(fields); err != nil {
		return nil, err
	}
	placed := make([]Field, len(fields))
	offset := 0
	for i, f := range fields {
		offset = alignUp(offset, f.Type.align)
		placed[i] = Field{Name: f.Name, Type: f.Type, Offset: offset}
		offset += f.Type.dataSize
	}
	return makeStruct(placed, true)
}

func checkFields(fields []Field) error {
	seen := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return fmt.Errorf("ndt: struct field %d has no name", i)
		}
		if f.Type == nil {
			return fmt.Errorf("ndt: struct field %q has no type", f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("ndt: duplicate struct field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

func (t *Type) setFields(fields []Field) {
	t.fields = append([]Field(nil), fields...)
	t.arrmetaOffsets = make([]int, len(fields))
	off := len(fields) * wordSize
	for i, f := range fields {
		t.arrmetaOffsets[i] = off
		off += f.Type.arrmetaSize
	}
	t.arrmetaSize = off
}

func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

// ID returns the type's category.
func (t *Type) ID() ID { return t.id }

// DataSize returns the number of bytes one element of this type occupies, or
// 0 when the size is only knowable from an instance.
func (t *Type) DataSize() int { return t.dataSize }

// Alignment returns the natural alignment of the type in bytes.
func (t *Type) Alignment() int { return t.align }

// Encoding returns the encoding of a fixed_string type.
func (t *Type) Encoding() Encoding { return t.encoding }

// DimSize returns the static size of a fixed_dim type.
func (t *Type) DimSize() int { return t.dimSize }

// Element returns the element type of a dimension type, or nil.
func (t *Type) Element() *Type { return t.elem }

// Fields returns the fields of a struct type in declaration order. The slice
// must not be modified.
func (t *Type) Fields() []Field { return t.fields }

// ArrmetaSize returns the number of arrmeta bytes an instance of t needs.
func (t *Type) ArrmetaSize() int { return t.arrmetaSize }

// FieldArrmetaOffset returns where field i's arrmeta starts within the
// struct's arrmeta.
func (t *Type) FieldArrmetaOffset(i int) int { return t.arrmetaOffsets[i] }

// IsBuiltin reports whether t is one of the fixed-size scalar categories.
func (t *Type) IsBuiltin() bool {
	_, ok := builtins[t.id]
	return ok
}

// IsDim reports whether t is a fixed or variable dimension.
func (t *Type) IsDim() bool {
	return t.id == FixedDimID || t.id == VarDimID
}

// NDim returns the number of leading dimension layers.
func (t *Type) NDim() int {
	n := 0
	for cur := t; cur.IsDim(); cur = cur.elem {
		n++
	}
	return n
}

// TypeAtDimension descends i dimension layers, returning the type reached and
// the arrmeta that belongs to it. A nil meta stays nil.
func (t *Type) TypeAtDimension(meta Arrmeta, i int) (*Type, Arrmeta) {
	cur := t
	for ; i > 0 && cur.IsDim(); i-- {
		meta = meta.Advance(dimArrmetaSize)
		cur = cur.elem
	}
	return cur, meta
}

// String renders the type in a datashape-like notation, e.g.
// "3 * 4 * float64" or "{a: int8, b: int32}".
func (t *Type) String() string {
	var sb strings.Builder
	t.writeTo(&sb)
	return sb.String()
}

func (t *Type) writeTo(sb *strings.Builder) {
	switch t.id {
	case FixedDimID:
		sb.WriteString(strconv.Itoa(t.dimSize))
		if t.dataSize != t.dimSize*t.elem.dataSize {
			sb.WriteString("[size=")
			sb.WriteString(strconv.Itoa(t.dataSize))
			sb.WriteByte(']')
		}
		sb.WriteString(" * ")
		t.elem.writeTo(sb)
	case VarDimID:
		sb.WriteString("var * ")
		t.elem.writeTo(sb)
	case FixedStringID:
		fmt.Fprintf(sb, "fixed_string[%d, '%s']", t.dataSize, t.encoding)
	case FixedBytesID:
		fmt.Fprintf(sb, "fixed_bytes[%d]", t.dataSize)
	case StructID:
		sb.WriteByte('{')
		for i, f := range t.fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(f.Name)
			sb.WriteString(": ")
			f.Type.writeTo(sb)
		}
		sb.WriteByte('}')
	default:
		sb.WriteString(t.id.String())
	}
}
