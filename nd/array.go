// Package nd provides a minimal strided array object: a byte buffer, the
// ndt.Type describing its elements and dimensions, the arrmeta carrying the
// instance's strides and field offsets, and access permissions.
package nd

import (
	"fmt"
	"sync/atomic"

	"github.com/TuSKan/ndbuffer/ndt"
)

// Access is a set of permissions on an array's data.
type Access uint8

const (
	Read Access = 1 << iota
	Write

	ReadWrite = Read | Write
)

// Array is a typed view over a byte buffer.
type Array struct {
	data   []byte
	tp     *ndt.Type
	meta   ndt.Arrmeta
	access Access

	exports atomic.Int64
}

// Empty allocates a zeroed, writable array of tp with its leading fixed
// dimensions laid out in the given order.
func Empty(tp *ndt.Type, order ndt.Order) (*Array, error) {
	switch tp.ID() {
	case ndt.BytesID, ndt.StringID:
		return nil, fmt.Errorf("nd: cannot allocate variable-sized type %s", tp)
	}
	for cur := tp; cur.IsDim(); cur = cur.Element() {
		if cur.ID() == ndt.VarDimID {
			return nil, fmt.Errorf("nd: cannot allocate ragged type %s", tp)
		}
	}
	return &Array{
		data:   make([]byte, tp.DataSize()),
		tp:     tp,
		meta:   ndt.NewArrmeta(tp, order),
		access: ReadWrite,
	}, nil
}

// View wraps existing bytes. A nil meta selects the default C-order arrmeta.
// The extent implied by meta must lie within data.
func View(data []byte, tp *ndt.Type, meta ndt.Arrmeta, access Access) (*Array, error) {
	if meta == nil {
		meta = ndt.NewArrmeta(tp, ndt.COrder)
	}
	if tp.ID() != ndt.BytesID {
		lo, hi, err := ndt.Extent(tp, meta)
		if err != nil {
			return nil, err
		}
		if lo < 0 || hi > len(data) {
			return nil, fmt.Errorf("nd: type %s spans bytes [%d, %d) but data has %d", tp, lo, hi, len(data))
		}
	}
	return &Array{data: data, tp: tp, meta: meta, access: access}, nil
}

// FromBytes wraps b as a variable-length bytes array.
func FromBytes(b []byte, access Access) *Array {
	return &Array{data: b, tp: ndt.Bytes(), access: access}
}

// Type returns the array's type.
func (a *Array) Type() *ndt.Type { return a.tp }

// Arrmeta returns the array's arrmeta. It must not be modified.
func (a *Array) Arrmeta() ndt.Arrmeta { return a.meta }

// Data returns the array's bytes, starting at its first element.
func (a *Array) Data() []byte { return a.data }

// Access returns the array's permissions.
func (a *Array) Access() Access { return a.access }

// Writable reports whether the array grants write access.
func (a *Array) Writable() bool { return a.access&Write != 0 }

// ReadOnly returns a read-only alias that shares a's data and arrmeta.
func (a *Array) ReadOnly() *Array {
	return &Array{data: a.data, tp: a.tp, meta: a.meta, access: a.access &^ Write}
}

// Shape returns the runtime sizes of the leading fixed dimensions.
func (a *Array) Shape() []int {
	shape, _ := ndt.Shape(a.tp, a.meta)
	return shape
}

// Strides returns the byte strides of the leading fixed dimensions.
func (a *Array) Strides() []int {
	_, strides := ndt.Shape(a.tp, a.meta)
	return strides
}

// IncRef records a live buffer export of the array.
func (a *Array) IncRef() { a.exports.Add(1) }

// DecRef releases a buffer export recorded by IncRef.
func (a *Array) DecRef() {
	if a.exports.Add(-1) < 0 {
		panic("nd: export count went negative")
	}
}

// Exports returns the number of live buffer exports.
func (a *Array) Exports() int { return int(a.exports.Load()) }

// Compact returns a C-ordered copy of the array's leading fixed dimensions.
// Padded dimensions are rebuilt packed, so the copy holds exactly
// product(shape) elements. If the array is already packed and C-contiguous
// it is returned as is.
func (a *Array) Compact() (*Array, error) {
	shape, strides := ndt.Shape(a.tp, a.meta)
	elem, _ := a.tp.TypeAtDimension(nil, len(shape))
	itemSize := elem.DataSize()
	packed := packedDims(elem, shape)
	if a.tp.DataSize() == packed.DataSize() && ndt.StridesAreCContiguous(itemSize, shape, strides) {
		return a, nil
	}
	if a.tp.NDim() != len(shape) {
		return nil, fmt.Errorf("nd: cannot compact ragged type %s", a.tp)
	}

	out, err := Empty(packed, ndt.COrder)
	if err != nil {
		return nil, err
	}
	_, dstStrides := ndt.Shape(out.tp, out.meta)
	copyStrided(out.data, dstStrides, a.data, strides, shape, itemSize)
	out.access = a.access
	return out, nil
}

func packedDims(elem *ndt.Type, shape []int) *ndt.Type {
	tp := elem
	for i := len(shape) - 1; i >= 0; i-- {
		tp = ndt.FixedDim(shape[i], tp)
	}
	return tp
}

// copyStrided copies every element of shape from src to dst. Strides are in
// bytes.
func copyStrided(dst []byte, dstStrides []int, src []byte, srcStrides []int, shape []int, itemSize int) {
	var iterate func(dim, srcOff, dstOff int)
	iterate = func(dim, srcOff, dstOff int) {
		if dim == len(shape) {
			copy(dst[dstOff:dstOff+itemSize], src[srcOff:srcOff+itemSize])
			return
		}
		for i := 0; i < shape[dim]; i++ {
			iterate(dim+1, srcOff+i*srcStrides[dim], dstOff+i*dstStrides[dim])
		}
	}
	iterate(0, 0, 0)
}
