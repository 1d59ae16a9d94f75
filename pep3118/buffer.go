package pep3118

import (
	"github.com/TuSKan/ndbuffer/ndt"
	"go.uber.org/zap"
)

// Source is an array that can export its memory. *nd.Array implements it.
type Source interface {
	Type() *ndt.Type
	Arrmeta() ndt.Arrmeta
	Data() []byte
	Writable() bool
}

// refCounter is implemented by sources that track live exports.
type refCounter interface {
	IncRef()
	DecRef()
}

// View is an exported buffer record. Buf aliases the source's memory: it is
// valid only while the source is alive and the view has not been released.
type View struct {
	Buf      []byte
	Len      int
	ItemSize int
	Readonly bool
	NDim     int
	// Format is the element format string, or empty when FormatFlag was not
	// requested (consumers then assume unsigned bytes).
	Format  string
	Shape   []int
	Strides []int

	obj      Source
	scratch  []int
	alloc    Allocator
	released bool
}

// Obj returns the array the view was exported from.
func (v *View) Obj() Source { return v.obj }

// Options configures an Exporter.
type Options struct {
	// Allocator backs shape and strides. Nil selects the Go heap.
	Allocator Allocator
	// Logger receives export diagnostics. Nil selects the package Logger.
	Logger *zap.Logger
}

// DefaultOptions returns the default exporter configuration.
func DefaultOptions() Options {
	return Options{Allocator: heapAllocator{}}
}

// Exporter builds buffer views. It holds no per-export state and may be
// used from multiple goroutines.
type Exporter struct {
	options Options
}

// NewExporter creates an Exporter with the given options.
func NewExporter(opts Options) *Exporter {
	if opts.Allocator == nil {
		opts.Allocator = heapAllocator{}
	}
	return &Exporter{options: opts}
}

var defaultExporter = NewExporter(DefaultOptions())

// GetBuffer exports src with the default exporter.
func GetBuffer(src Source, flags Flags) (*View, error) {
	return defaultExporter.GetBuffer(src, flags)
}

func (e *Exporter) logger() *zap.Logger {
	if e.options.Logger != nil {
		return e.options.Logger
	}
	return Logger()
}

// GetBuffer exports the memory of src as requested by flags. On failure no
// view is returned, any scratch storage is freed and the source's export
// count is left unchanged. A successful view must be released exactly once
// with View.Release.
func (e *Exporter) GetBuffer(src Source, flags Flags) (_ *View, err error) {
	if rc, ok := src.(refCounter); ok {
		rc.IncRef()
		defer func() {
			if err != nil {
				rc.DecRef()
			}
		}()
	}

	v := &View{obj: src, alloc: e.options.Allocator}
	defer func() {
		if err != nil {
			v.free()
			e.logger().Debug("buffer export failed",
				zap.Stringer("type", src.Type()),
				zap.Stringer("flags", flags),
				zap.Error(err))
		}
	}()

	tp := src.Type()
	if flags.Has(Writable) && !src.Writable() {
		return nil, newError(ErrArrayNotWritable, tp, "array of type %s is not writable", tp)
	}
	v.Readonly = !src.Writable()
	v.Buf = src.Data()

	if tp.ID() == ndt.BytesID || tp.ID() == ndt.FixedBytesID {
		if err := e.fillBytes(v, tp, flags); err != nil {
			return nil, err
		}
		e.logger().Debug("buffer exported", zap.Object("view", v))
		return v, nil
	}

	v.NDim = tp.NDim()
	if !flags.Has(ND) && v.NDim > 1 {
		return nil, newError(ErrMultidimNotSupported, tp, "type %s is multidimensional, but the buffer request is not ND", tp)
	}

	meta := src.Arrmeta()
	uniformTp, uniformMeta := tp.TypeAtDimension(meta, v.NDim)
	if flags.Has(FormatFlag) || uniformTp.DataSize() == 0 {
		// An element without a fixed size only learns its item size from
		// the compiled format.
		format, itemSize, err := MakeFormat(uniformTp, uniformMeta)
		if err != nil {
			return nil, err
		}
		v.ItemSize = itemSize
		if flags.Has(FormatFlag) {
			v.Format = format
		}
	} else {
		v.ItemSize = uniformTp.DataSize()
	}

	if err := v.allocGeometry(v.NDim); err != nil {
		return nil, newError(ErrAllocationFailure, tp, "cannot allocate shape and strides for type %s: %v", tp, err)
	}

	cur, m := tp, meta
	for i := 0; i < v.NDim; i++ {
		if cur.ID() != ndt.FixedDimID {
			return nil, newError(ErrUnsupportedLayerForStridedView, tp, "cannot get a strided view of type %s: layer %d is %s", tp, i, cur.ID())
		}
		v.Shape[i], v.Strides[i] = m.FixedDimMeta()
		cur, m = cur.TypeAtDimension(m, 1)
	}

	v.Len = v.ItemSize
	for _, n := range v.Shape {
		v.Len *= n
	}

	if err := checkContiguity(v, tp, flags); err != nil {
		return nil, err
	}

	e.logger().Debug("buffer exported", zap.Object("view", v))
	return v, nil
}

// fillBytes exports a bytes or fixed_bytes array as a one dimensional run of
// single-byte items.
func (e *Exporter) fillBytes(v *View, tp *ndt.Type, flags Flags) error {
	v.ItemSize = 1
	if flags.Has(FormatFlag) {
		v.Format = "c"
	}
	v.NDim = 1
	if err := v.allocGeometry(1); err != nil {
		return newError(ErrAllocationFailure, tp, "cannot allocate shape and strides for type %s: %v", tp, err)
	}
	if tp.ID() == ndt.BytesID {
		v.Len = len(v.Buf)
	} else {
		v.Len = tp.DataSize()
		if len(v.Buf) < v.Len {
			return layoutError(tp, "array of type %s holds %d bytes, need %d", tp, len(v.Buf), v.Len)
		}
		v.Buf = v.Buf[:v.Len]
	}
	v.Shape[0] = v.Len
	v.Strides[0] = 1
	return nil
}

// allocGeometry carves shape and strides out of one scratch allocation.
func (v *View) allocGeometry(ndim int) error {
	if ndim == 0 {
		return nil
	}
	buf, err := v.alloc.Alloc(2 * ndim)
	if err != nil {
		return err
	}
	v.scratch = buf
	v.Shape = buf[:ndim:ndim]
	v.Strides = buf[ndim:]
	return nil
}

func checkContiguity(v *View, tp *ndt.Type, flags Flags) error {
	switch {
	case flags.Has(CContiguous) || !flags.Has(Strides):
		if !ndt.StridesAreCContiguous(v.ItemSize, v.Shape, v.Strides) {
			return newError(ErrNotCContiguous, tp, "array of type %s is not C-contiguous as requested", tp)
		}
	case flags.Has(FContiguous):
		if !ndt.StridesAreFContiguous(v.ItemSize, v.Shape, v.Strides) {
			return newError(ErrNotFContiguous, tp, "array of type %s is not F-contiguous as requested", tp)
		}
	case flags.Has(AnyContiguous):
		if !ndt.StridesAreCContiguous(v.ItemSize, v.Shape, v.Strides) &&
			!ndt.StridesAreFContiguous(v.ItemSize, v.Shape, v.Strides) {
			return newError(ErrNotContiguous, tp, "array of type %s is neither C-contiguous nor F-contiguous as requested", tp)
		}
	}
	return nil
}

func (v *View) free() {
	if v.scratch != nil {
		v.alloc.Free(v.scratch)
		v.scratch = nil
	}
	v.Shape = nil
	v.Strides = nil
}

// Release ends the export: it frees the view's shape and strides and drops
// the reference taken on the source. The source's memory is not touched.
// Releasing a view more than once has no effect.
func (v *View) Release() {
	if v == nil || v.released {
		return
	}
	v.released = true
	v.free()
	v.Buf = nil
	v.Format = ""
	if rc, ok := v.obj.(refCounter); ok {
		rc.DecRef()
	}
}
