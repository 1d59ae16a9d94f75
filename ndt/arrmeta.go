package ndt

import (
	"encoding/binary"
	"fmt"
)

const (
	wordSize = 8

	// dimArrmetaSize is the arrmeta footprint of one fixed_dim or var_dim
	// layer: {dim size, stride} or {stride, offset}.
	dimArrmetaSize = 2 * wordSize
)

// Arrmeta is the per-instance metadata blob that accompanies a Type. It is a
// sequence of native-endian int64 words laid out as follows:
//
//	fixed_dim: dim size, stride, then the element's arrmeta
//	var_dim:   stride, offset, then the element's arrmeta
//	struct:    one data offset per field, then each field's arrmeta
//
// Every other category has no arrmeta.
type Arrmeta []byte

// Order selects the memory order of the leading fixed dimensions.
type Order byte

const (
	COrder Order = 'C'
	FOrder Order = 'F'
)

func (m Arrmeta) word(i int) int {
	return int(int64(binary.NativeEndian.Uint64(m[i*wordSize:])))
}

func (m Arrmeta) setWord(i, v int) {
	binary.NativeEndian.PutUint64(m[i*wordSize:], uint64(int64(v)))
}

// Advance returns the arrmeta n bytes further on. Advancing nil yields nil.
func (m Arrmeta) Advance(n int) Arrmeta {
	if m == nil {
		return nil
	}
	return m[n:]
}

// FixedDimMeta reads the runtime size and byte stride of a fixed_dim layer.
func (m Arrmeta) FixedDimMeta() (dimSize, stride int) {
	return m.word(0), m.word(1)
}

// SetFixedDimMeta writes the runtime size and byte stride of a fixed_dim layer.
func (m Arrmeta) SetFixedDimMeta(dimSize, stride int) {
	m.setWord(0, dimSize)
	m.setWord(1, stride)
}

// VarDimMeta reads the stride and data offset of a var_dim layer.
func (m Arrmeta) VarDimMeta() (stride, offset int) {
	return m.word(0), m.word(1)
}

// SetVarDimMeta writes the stride and data offset of a var_dim layer.
func (m Arrmeta) SetVarDimMeta(stride, offset int) {
	m.setWord(0, stride)
	m.setWord(1, offset)
}

// FieldOffset reads the data offset of struct field i.
func (m Arrmeta) FieldOffset(i int) int {
	return m.word(i)
}

// SetFieldOffset writes the data offset of struct field i.
func (m Arrmeta) SetFieldOffset(i, offset int) {
	m.setWord(i, offset)
}

// NewArrmeta builds the default arrmeta for tp. The leading chain of fixed
// dimensions is strided in the requested order; everything nested below it
// (struct fields, inner dimensions) uses declared offsets and C order.
func NewArrmeta(tp *Type, order Order) Arrmeta {
	meta := make(Arrmeta, tp.arrmetaSize)
	fillDefault(tp, meta)
	if order == FOrder {
		setFortranStrides(tp, meta)
	}
	return meta
}

func fillDefault(tp *Type, meta Arrmeta) {
	switch tp.id {
	case FixedDimID:
		stride := tp.elem.dataSize
		if tp.dimSize > 0 {
			stride = tp.dataSize / tp.dimSize
		}
		meta.SetFixedDimMeta(tp.dimSize, stride)
		fillDefault(tp.elem, meta[dimArrmetaSize:])
	case VarDimID:
		meta.SetVarDimMeta(tp.elem.dataSize, 0)
		fillDefault(tp.elem, meta[dimArrmetaSize:])
	case StructID:
		for i, f := range tp.fields {
			meta.SetFieldOffset(i, f.Offset)
			fillDefault(f.Type, meta[tp.arrmetaOffsets[i]:])
		}
	}
}

func setFortranStrides(tp *Type, meta Arrmeta) {
	var dims []Arrmeta
	cur := tp
	for m := meta; cur.id == FixedDimID; m = m[dimArrmetaSize:] {
		dims = append(dims, m)
		cur = cur.elem
	}
	stride := cur.dataSize
	for _, m := range dims {
		n, _ := m.FixedDimMeta()
		m.SetFixedDimMeta(n, stride)
		stride *= n
	}
}

// Shape reads the runtime sizes and strides of the leading fixed dimensions.
func Shape(tp *Type, meta Arrmeta) (shape, strides []int) {
	for cur, m := tp, meta; cur.id == FixedDimID; cur, m = cur.elem, m[dimArrmetaSize:] {
		n, s := m.FixedDimMeta()
		shape = append(shape, n)
		strides = append(strides, s)
	}
	return shape, strides
}

// Extent returns the half-open byte range [lo, hi) relative to the start of
// the data that an instance of tp with the given arrmeta touches. Only the
// leading fixed dimensions are walked; the element below them is assumed to
// occupy its DataSize.
func Extent(tp *Type, meta Arrmeta) (lo, hi int, err error) {
	if len(meta) < tp.arrmetaSize {
		return 0, 0, fmt.Errorf("ndt: arrmeta for %s has %d bytes, need %d", tp, len(meta), tp.arrmetaSize)
	}
	shape, strides := Shape(tp, meta)
	cur, _ := tp.TypeAtDimension(meta, len(shape))
	hi = cur.dataSize
	for i, n := range shape {
		if n < 0 {
			return 0, 0, fmt.Errorf("ndt: negative dimension size %d in %s", n, tp)
		}
		if n == 0 {
			return 0, 0, nil
		}
		if strides[i] < 0 {
			lo += (n - 1) * strides[i]
		} else {
			hi += (n - 1) * strides[i]
		}
	}
	return lo, hi, nil
}

// StridesAreCContiguous reports whether strides describe a row-major layout
// with no gaps. Dimensions of extent 1 place no constraint on their stride.
func StridesAreCContiguous(itemSize int, shape, strides []int) bool {
	expected := itemSize
	for i := len(shape) - 1; i >= 0; i-- {
		if shape[i] != 1 && strides[i] != expected {
			return false
		}
		expected *= shape[i]
	}
	return true
}

// StridesAreFContiguous reports whether strides describe a column-major
// layout with no gaps. Dimensions of extent 1 place no constraint on their
// stride.
func StridesAreFContiguous(itemSize int, shape, strides []int) bool {
	expected := itemSize
	for i := range shape {
		if shape[i] != 1 && strides[i] != expected {
			return false
		}
		expected *= shape[i]
	}
	return true
}
