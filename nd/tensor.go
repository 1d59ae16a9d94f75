package nd

import (
	"fmt"
	"unsafe"

	"github.com/TuSKan/ndbuffer/ndt"
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// FromTensor copies a gomlx tensor into a new C-ordered array whose type is
// the tensor's dimensions wrapped around its scalar element type.
func FromTensor(t *tensors.Tensor) (*Array, error) {
	dims := t.Shape().Dimensions

	var (
		arr *Array
		err error
	)
	t.ConstFlatData(func(flat any) {
		switch v := flat.(type) {
		case []bool:
			arr, err = fromFlat(v, ndt.BoolID, dims)
		case []int8:
			arr, err = fromFlat(v, ndt.Int8ID, dims)
		case []int16:
			arr, err = fromFlat(v, ndt.Int16ID, dims)
		case []int32:
			arr, err = fromFlat(v, ndt.Int32ID, dims)
		case []int64:
			arr, err = fromFlat(v, ndt.Int64ID, dims)
		case []uint8:
			arr, err = fromFlat(v, ndt.Uint8ID, dims)
		case []uint16:
			arr, err = fromFlat(v, ndt.Uint16ID, dims)
		case []uint32:
			arr, err = fromFlat(v, ndt.Uint32ID, dims)
		case []uint64:
			arr, err = fromFlat(v, ndt.Uint64ID, dims)
		case []float32:
			arr, err = fromFlat(v, ndt.Float32ID, dims)
		case []float64:
			arr, err = fromFlat(v, ndt.Float64ID, dims)
		case []complex64:
			arr, err = fromFlat(v, ndt.Complex64ID, dims)
		case []complex128:
			arr, err = fromFlat(v, ndt.Complex128ID, dims)
		default:
			err = fmt.Errorf("nd: unsupported tensor data type %T", flat)
		}
	})
	if err != nil {
		return nil, err
	}
	return arr, nil
}

func fromFlat[T any](flat []T, id ndt.ID, dims []int) (*Array, error) {
	tp := packedDims(ndt.Make(id), dims)
	arr, err := Empty(tp, ndt.COrder)
	if err != nil {
		return nil, err
	}
	if n := copy(arr.data, asBytes(flat)); n != len(arr.data) {
		return nil, fmt.Errorf("nd: tensor holds %d bytes, type %s needs %d", n, tp, len(arr.data))
	}
	return arr, nil
}

func asBytes[T any](flat []T) []byte {
	if len(flat) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(flat))), len(flat)*int(unsafe.Sizeof(zero)))
}

func fromBytes[T any](b []byte) []T {
	var zero T
	out := make([]T, len(b)/int(unsafe.Sizeof(zero)))
	copy(asBytes(out), b)
	return out
}

// Tensor copies a numeric array into a gomlx tensor with the same dimensions.
// Non C-ordered arrays are compacted first.
func (a *Array) Tensor() (*tensors.Tensor, error) {
	if a.tp.NDim() != len(a.Shape()) {
		return nil, fmt.Errorf("nd: cannot convert ragged type %s to a tensor", a.tp)
	}
	c, err := a.Compact()
	if err != nil {
		return nil, err
	}
	dims := c.Shape()
	elem, _ := c.tp.TypeAtDimension(nil, len(dims))
	n := elem.DataSize()
	for _, d := range dims {
		n *= d
	}
	data := c.data[:n]

	switch elem.ID() {
	case ndt.BoolID:
		return tensors.FromFlatDataAndDimensions(fromBytes[bool](data), dims...), nil
	case ndt.Int8ID:
		return tensors.FromFlatDataAndDimensions(fromBytes[int8](data), dims...), nil
	case ndt.Int16ID:
		return tensors.FromFlatDataAndDimensions(fromBytes[int16](data), dims...), nil
	case ndt.Int32ID:
		return tensors.FromFlatDataAndDimensions(fromBytes[int32](data), dims...), nil
	case ndt.Int64ID:
		return tensors.FromFlatDataAndDimensions(fromBytes[int64](data), dims...), nil
	case ndt.Uint8ID:
		return tensors.FromFlatDataAndDimensions(fromBytes[uint8](data), dims...), nil
	case ndt.Uint16ID:
		return tensors.FromFlatDataAndDimensions(fromBytes[uint16](data), dims...), nil
	case ndt.Uint32ID:
		return tensors.FromFlatDataAndDimensions(fromBytes[uint32](data), dims...), nil
	case ndt.Uint64ID:
		return tensors.FromFlatDataAndDimensions(fromBytes[uint64](data), dims...), nil
	case ndt.Float32ID:
		return tensors.FromFlatDataAndDimensions(fromBytes[float32](data), dims...), nil
	case ndt.Float64ID:
		return tensors.FromFlatDataAndDimensions(fromBytes[float64](data), dims...), nil
	case ndt.Complex64ID:
		return tensors.FromFlatDataAndDimensions(fromBytes[complex64](data), dims...), nil
	case ndt.Complex128ID:
		return tensors.FromFlatDataAndDimensions(fromBytes[complex128](data), dims...), nil
	default:
		return nil, fmt.Errorf("nd: element type %s has no tensor equivalent", elem)
	}
}
