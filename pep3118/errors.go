package pep3118

import (
	"errors"
	"fmt"

	"github.com/TuSKan/ndbuffer/ndt"
)

// Error kinds. Every *Error wraps exactly one of these, so callers can use
// errors.Is to classify a failed export.
var (
	ErrArrayNotWritable               = errors.New("array is not writable")
	ErrMultidimNotSupported           = errors.New("multidimensional array requested without ND")
	ErrUnsupportedLayerForStridedView = errors.New("layer cannot be described by a strided view")
	ErrNotCContiguous                 = errors.New("array is not C-contiguous")
	ErrNotFContiguous                 = errors.New("array is not F-contiguous")
	ErrNotContiguous                  = errors.New("array is neither C- nor F-contiguous")
	ErrLayout                         = errors.New("layout has no PEP 3118 format")
	ErrAllocationFailure              = errors.New("allocation failure")
	ErrInvalidFormat                  = errors.New("invalid PEP 3118 format string")
)

// Error describes a failed export or format conversion.
type Error struct {
	// Kind is one of the Err* sentinels above.
	Kind error
	// Type is the array type involved, if any.
	Type *ndt.Type
	// Detail is a human readable explanation naming the offending type.
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return "pep3118: " + e.Kind.Error()
	}
	return "pep3118: " + e.Detail
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, tp *ndt.Type, format string, args ...any) *Error {
	return &Error{Kind: kind, Type: tp, Detail: fmt.Sprintf(format, args...)}
}

func layoutError(tp *ndt.Type, format string, args ...any) *Error {
	return newError(ErrLayout, tp, format, args...)
}
