package pep3118

import (
	"strconv"
	"strings"

	"github.com/TuSKan/ndbuffer/ndt"
)

type scalarFormat struct {
	code string
	size int
}

var scalarFormats = map[ndt.ID]scalarFormat{
	ndt.BoolID:       {"?", 1},
	ndt.Int8ID:       {"b", 1},
	ndt.Int16ID:      {"h", 2},
	ndt.Int32ID:      {"i", 4},
	ndt.Int64ID:      {"q", 8},
	ndt.Uint8ID:      {"B", 1},
	ndt.Uint16ID:     {"H", 2},
	ndt.Uint32ID:     {"I", 4},
	ndt.Uint64ID:     {"Q", 8},
	ndt.Float32ID:    {"f", 4},
	ndt.Float64ID:    {"d", 8},
	ndt.Complex64ID:  {"Zf", 8},
	ndt.Complex128ID: {"Zd", 16},
}

// MakeFormat compiles tp into a PEP 3118 struct-module style format string
// and reports the item size that format describes. meta is the arrmeta for
// tp; when it is nil, struct fields are placed at their declared offsets.
//
// Scalar types are prefixed with '@' for native size and byte order. The
// result depends only on its inputs.
func MakeFormat(tp *ndt.Type, meta ndt.Arrmeta) (format string, itemSize int, err error) {
	var sb strings.Builder
	if tp.IsBuiltin() {
		sb.WriteByte('@')
	}
	itemSize, err = appendFormat(&sb, tp, meta)
	if err != nil {
		return "", 0, err
	}
	return sb.String(), itemSize, nil
}

func appendFormat(sb *strings.Builder, tp *ndt.Type, meta ndt.Arrmeta) (int, error) {
	if sf, ok := scalarFormats[tp.ID()]; ok {
		sb.WriteString(sf.code)
		return sf.size, nil
	}

	switch tp.ID() {
	case ndt.FixedStringID:
		n := tp.DataSize()
		switch tp.Encoding() {
		case ndt.ASCII:
			sb.WriteString(strconv.Itoa(n))
			sb.WriteByte('s')
			return n, nil
		case ndt.UTF32:
			sb.WriteString(strconv.Itoa(n / 4))
			sb.WriteByte('w')
			return n, nil
		}
	case ndt.FixedDimID:
		return appendDimFormat(sb, tp, meta)
	case ndt.StructID:
		return appendStructFormat(sb, tp, meta)
	}
	return 0, layoutError(tp, "cannot convert type %s into a PEP 3118 format string", tp)
}

// appendDimFormat emits a chain of directly nested fixed dimensions as a
// single group, "(3,4)d" rather than "(3)(4)d".
func appendDimFormat(sb *strings.Builder, tp *ndt.Type, meta ndt.Arrmeta) (int, error) {
	sb.WriteByte('(')
	child := tp
	for {
		n := child.DimSize()
		if child.DataSize() != child.Element().DataSize()*n {
			return 0, layoutError(tp, "cannot convert type %s into a PEP 3118 format because it is not C-order", tp)
		}
		sb.WriteString(strconv.Itoa(n))
		child, meta = child.TypeAtDimension(meta, 1)
		if child.ID() != ndt.FixedDimID {
			break
		}
		sb.WriteByte(',')
	}
	sb.WriteByte(')')

	if _, err := appendFormat(sb, child, meta); err != nil {
		return 0, err
	}
	return tp.DataSize(), nil
}

func appendStructFormat(sb *strings.Builder, tp *ndt.Type, meta ndt.Arrmeta) (int, error) {
	sb.WriteString("T{")
	cursor := 0
	for i, f := range tp.Fields() {
		offset := f.Offset
		var fieldMeta ndt.Arrmeta
		if meta != nil {
			offset = meta.FieldOffset(i)
			fieldMeta = meta.Advance(tp.FieldArrmetaOffset(i))
		}
		if offset < cursor {
			// Fields stored out of declaration order have no representation
			// in the format grammar.
			return 0, layoutError(tp, "cannot convert type %s with out of order data layout into a PEP 3118 format string", tp)
		}
		if strings.ContainsRune(f.Name, ':') {
			return 0, layoutError(tp, "cannot convert type %s into a PEP 3118 format string: field name %q contains ':'", tp, f.Name)
		}
		sb.WriteString(strings.Repeat("x", offset-cursor))
		cursor = offset

		size, err := appendFormat(sb, f.Type, fieldMeta)
		if err != nil {
			return 0, err
		}
		cursor += size

		sb.WriteByte(':')
		sb.WriteString(f.Name)
		sb.WriteByte(':')
	}
	sb.WriteByte('}')
	return cursor, nil
}
