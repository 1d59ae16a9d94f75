package pep3118_test

import (
	"testing"

	"github.com/TuSKan/ndbuffer/nd"
	"github.com/TuSKan/ndbuffer/ndt"
	"github.com/TuSKan/ndbuffer/pep3118"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestExporter(t *testing.T) (*pep3118.Exporter, *pep3118.CountingAllocator) {
	t.Helper()
	alloc := &pep3118.CountingAllocator{}
	exp := pep3118.NewExporter(pep3118.Options{Allocator: alloc, Logger: zap.NewNop()})
	t.Cleanup(func() {
		require.Zero(t, alloc.Live(), "scratch allocations leaked")
	})
	return exp, alloc
}

func mustEmpty(t *testing.T, tp *ndt.Type, order ndt.Order) *nd.Array {
	t.Helper()
	arr, err := nd.Empty(tp, order)
	require.NoError(t, err)
	return arr
}

func TestGetBufferScalar(t *testing.T) {
	exp, _ := newTestExporter(t)
	arr := mustEmpty(t, ndt.Make(ndt.Int32ID), ndt.COrder)

	v, err := exp.GetBuffer(arr, pep3118.RecordsRO)
	require.NoError(t, err)
	defer v.Release()

	require.Equal(t, "@i", v.Format)
	require.Equal(t, 4, v.ItemSize)
	require.Equal(t, 0, v.NDim)
	require.Equal(t, 4, v.Len)
	require.Empty(t, v.Shape)
	require.Empty(t, v.Strides)
	require.False(t, v.Readonly)
	require.Same(t, arr, v.Obj())
}

func TestGetBufferMatrix(t *testing.T) {
	exp, alloc := newTestExporter(t)
	arr := mustEmpty(t, ndt.FixedDim(3, ndt.FixedDim(4, ndt.Make(ndt.Float64ID))), ndt.COrder)

	v, err := exp.GetBuffer(arr, pep3118.Records)
	require.NoError(t, err)

	require.Equal(t, "@d", v.Format)
	require.Equal(t, 8, v.ItemSize)
	require.Equal(t, 2, v.NDim)
	require.Equal(t, []int{3, 4}, v.Shape)
	require.Equal(t, []int{32, 8}, v.Strides)
	require.Equal(t, 96, v.Len)
	require.Equal(t, 1, alloc.Live())
	require.Equal(t, 1, arr.Exports())

	v.Release()
	require.Equal(t, 0, alloc.Live())
	require.Equal(t, 0, arr.Exports())
	require.Nil(t, v.Shape)
	require.Nil(t, v.Buf)
}

func TestGetBufferWithoutFormat(t *testing.T) {
	exp, alloc := newTestExporter(t)
	arr := mustEmpty(t, ndt.FixedDim(6, ndt.Make(ndt.Int16ID)), ndt.COrder)

	v, err := exp.GetBuffer(arr, pep3118.Simple)
	require.NoError(t, err)
	defer v.Release()

	require.Empty(t, v.Format)
	require.Equal(t, 2, v.ItemSize)
	require.Equal(t, []int{6}, v.Shape)
	require.Equal(t, 12, v.Len)
	require.Equal(t, 1, alloc.Total())
}

func TestGetBufferStructArray(t *testing.T) {
	exp, _ := newTestExporter(t)
	st := mustStruct(t,
		ndt.Field{Name: "a", Type: ndt.Make(ndt.Int8ID), Offset: 0},
		ndt.Field{Name: "b", Type: ndt.Make(ndt.Int32ID), Offset: 4},
	)
	arr := mustEmpty(t, ndt.FixedDim(2, st), ndt.COrder)

	v, err := exp.GetBuffer(arr, pep3118.ContigRO|pep3118.FormatFlag)
	require.NoError(t, err)
	defer v.Release()

	require.Equal(t, "T{b:a:xxxi:b:}", v.Format)
	require.Equal(t, 8, v.ItemSize)
	require.Equal(t, []int{2}, v.Shape)
	require.Equal(t, []int{8}, v.Strides)
	require.Equal(t, 16, v.Len)

	parsed, err := pep3118.ParseFormat(v.Format)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, parsed.Root.FieldNames())
}

func TestGetBufferAliasesData(t *testing.T) {
	exp, _ := newTestExporter(t)
	arr := mustEmpty(t, ndt.FixedDim(4, ndt.Make(ndt.Uint8ID)), ndt.COrder)

	v, err := exp.GetBuffer(arr, pep3118.Contig)
	require.NoError(t, err)
	defer v.Release()

	v.Buf[2] = 42
	require.Equal(t, byte(42), arr.Data()[2])
}

func TestGetBufferNotWritable(t *testing.T) {
	exp, alloc := newTestExporter(t)
	arr := mustEmpty(t, ndt.FixedDim(3, ndt.Make(ndt.Int32ID)), ndt.COrder).ReadOnly()

	for _, flags := range []pep3118.Flags{pep3118.Writable, pep3118.Contig, pep3118.Strided, pep3118.Records, pep3118.Full} {
		v, err := exp.GetBuffer(arr, flags)
		require.ErrorIs(t, err, pep3118.ErrArrayNotWritable)
		require.Nil(t, v)
	}
	require.Zero(t, alloc.Total())
	require.Zero(t, arr.Exports())

	v, err := exp.GetBuffer(arr, pep3118.RecordsRO)
	require.NoError(t, err)
	require.True(t, v.Readonly)
	v.Release()
}

func TestGetBufferMultidimRequiresND(t *testing.T) {
	exp, alloc := newTestExporter(t)
	arr := mustEmpty(t, ndt.FixedDim(3, ndt.FixedDim(4, ndt.Make(ndt.Float64ID))), ndt.COrder)

	_, err := exp.GetBuffer(arr, pep3118.Simple)
	require.ErrorIs(t, err, pep3118.ErrMultidimNotSupported)
	_, err = exp.GetBuffer(arr, pep3118.FormatFlag|pep3118.Writable)
	require.ErrorIs(t, err, pep3118.ErrMultidimNotSupported)
	require.Zero(t, alloc.Total())
	require.Zero(t, arr.Exports())
}

func TestGetBufferBytes(t *testing.T) {
	exp, _ := newTestExporter(t)

	arr := nd.FromBytes([]byte("hello"), nd.Read)
	v, err := exp.GetBuffer(arr, pep3118.Simple)
	require.NoError(t, err)
	require.Equal(t, 5, v.Len)
	require.Equal(t, 1, v.ItemSize)
	require.Equal(t, 1, v.NDim)
	require.Equal(t, []int{5}, v.Shape)
	require.Equal(t, []int{1}, v.Strides)
	require.Empty(t, v.Format)
	require.True(t, v.Readonly)
	require.Equal(t, "hello", string(v.Buf))
	v.Release()

	v, err = exp.GetBuffer(arr, pep3118.FormatFlag)
	require.NoError(t, err)
	require.Equal(t, "c", v.Format)
	v.Release()

	fixed, err := nd.View([]byte("abcdefgh"), ndt.FixedBytes(6), nil, nd.ReadWrite)
	require.NoError(t, err)
	v, err = exp.GetBuffer(fixed, pep3118.Full)
	require.NoError(t, err)
	require.Equal(t, 6, v.Len)
	require.Equal(t, "abcdef", string(v.Buf))
	require.Equal(t, []int{6}, v.Shape)
	v.Release()
}

// rawSource is a Source that reports its type without checking it against
// its data.
type rawSource struct {
	tp   *ndt.Type
	data []byte
}

func (s rawSource) Type() *ndt.Type { return s.tp }
func (s rawSource) Arrmeta() ndt.Arrmeta { return nil }
func (s rawSource) Data() []byte { return s.data }
func (s rawSource) Writable() bool { return false }

func TestGetBufferShortFixedBytes(t *testing.T) {
	exp, alloc := newTestExporter(t)

	_, err := exp.GetBuffer(rawSource{tp: ndt.FixedBytes(8), data: []byte("abc")}, pep3118.Simple)
	require.ErrorIs(t, err, pep3118.ErrLayout)
	require.ErrorContains(t, err, "holds 3 bytes, need 8")
	require.Zero(t, alloc.Live())
	require.Equal(t, 1, alloc.Total())
}

func TestGetBufferRaggedDimension(t *testing.T) {
	exp, alloc := newTestExporter(t)
	tp := ndt.FixedDim(2, ndt.VarDim(ndt.Make(ndt.Int8ID)))
	arr, err := nd.View(make([]byte, 32), tp, nil, nd.ReadWrite)
	require.NoError(t, err)

	_, err = exp.GetBuffer(arr, pep3118.StridedRO)
	require.ErrorIs(t, err, pep3118.ErrUnsupportedLayerForStridedView)
	require.ErrorContains(t, err, "var_dim")
	require.Equal(t, 1, alloc.Total())
	require.Zero(t, arr.Exports())
}

func TestGetBufferDynamicItemSize(t *testing.T) {
	exp, alloc := newTestExporter(t)
	arr, err := nd.View(nil, ndt.FixedDim(3, ndt.String()), nil, nd.Read)
	require.NoError(t, err)

	// A zero-sized element forces the format compiler to run even when no
	// format was requested.
	_, err = exp.GetBuffer(arr, pep3118.StridedRO)
	require.ErrorIs(t, err, pep3118.ErrLayout)
	require.Zero(t, alloc.Total())
}

func TestGetBufferStructLayoutError(t *testing.T) {
	exp, alloc := newTestExporter(t)
	st := mustStruct(t,
		ndt.Field{Name: "a", Type: ndt.Make(ndt.Int32ID), Offset: 4},
		ndt.Field{Name: "b", Type: ndt.Make(ndt.Int32ID), Offset: 0},
	)
	arr := mustEmpty(t, ndt.FixedDim(2, st), ndt.COrder)

	_, err := exp.GetBuffer(arr, pep3118.RecordsRO)
	require.ErrorIs(t, err, pep3118.ErrLayout)
	require.Zero(t, alloc.Total())

	// Without a format request the static item size is enough.
	v, err := exp.GetBuffer(arr, pep3118.StridedRO)
	require.NoError(t, err)
	require.Equal(t, 8, v.ItemSize)
	v.Release()
}

func TestGetBufferContiguity(t *testing.T) {
	tp := ndt.FixedDim(3, ndt.FixedDim(4, ndt.Make(ndt.Float64ID)))

	tests := []struct {
		name  string
		order ndt.Order
		flags pep3118.Flags
		err   error
	}{
		{"C array C request", ndt.COrder, pep3118.CContiguous, nil},
		{"C array F request", ndt.COrder, pep3118.FContiguous, pep3118.ErrNotFContiguous},
		{"C array any request", ndt.COrder, pep3118.AnyContiguous, nil},
		{"C array implied C", ndt.COrder, pep3118.ContigRO, nil},
		{"F array C request", ndt.FOrder, pep3118.CContiguous, pep3118.ErrNotCContiguous},
		{"F array F request", ndt.FOrder, pep3118.FContiguous, nil},
		{"F array any request", ndt.FOrder, pep3118.AnyContiguous, nil},
		{"F array implied C", ndt.FOrder, pep3118.ContigRO, pep3118.ErrNotCContiguous},
		{"F array strided", ndt.FOrder, pep3118.StridedRO, nil},
		{"F array C and F request", ndt.FOrder, pep3118.CContiguous | pep3118.FContiguous, pep3118.ErrNotCContiguous},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp, _ := newTestExporter(t)
			arr := mustEmpty(t, tp, tt.order)

			v, err := exp.GetBuffer(arr, tt.flags)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				require.Nil(t, v)
				require.Zero(t, arr.Exports())
				return
			}
			require.NoError(t, err)
			require.Equal(t, arr.Strides(), v.Strides)
			v.Release()
		})
	}
}

func TestGetBufferStridedView(t *testing.T) {
	exp, _ := newTestExporter(t)
	tp := ndt.FixedDim(3, ndt.Make(ndt.Int32ID))
	meta := ndt.NewArrmeta(tp, ndt.COrder)
	meta.SetFixedDimMeta(3, 8)
	arr, err := nd.View(make([]byte, 20), tp, meta, nd.ReadWrite)
	require.NoError(t, err)

	_, err = exp.GetBuffer(arr, pep3118.AnyContiguous)
	require.ErrorIs(t, err, pep3118.ErrNotContiguous)

	v, err := exp.GetBuffer(arr, pep3118.Strided)
	require.NoError(t, err)
	require.Equal(t, []int{8}, v.Strides)
	require.Equal(t, 12, v.Len)
	v.Release()
}

func TestGetBufferAllocationFailure(t *testing.T) {
	alloc := &pep3118.CountingAllocator{Limit: 1}
	exp := pep3118.NewExporter(pep3118.Options{Allocator: alloc})
	arr := mustEmpty(t, ndt.FixedDim(2, ndt.Make(ndt.Int64ID)), ndt.COrder)

	held, err := exp.GetBuffer(arr, pep3118.RecordsRO)
	require.NoError(t, err)

	_, err = exp.GetBuffer(arr, pep3118.RecordsRO)
	require.ErrorIs(t, err, pep3118.ErrAllocationFailure)
	require.Equal(t, 1, arr.Exports())

	held.Release()
	require.Zero(t, alloc.Live())
	require.Zero(t, arr.Exports())
}

func TestReleaseIsIdempotent(t *testing.T) {
	exp, alloc := newTestExporter(t)
	arr := mustEmpty(t, ndt.FixedDim(2, ndt.Make(ndt.Int64ID)), ndt.COrder)

	v, err := exp.GetBuffer(arr, pep3118.FullRO)
	require.NoError(t, err)
	v.Release()
	v.Release()
	require.Zero(t, alloc.Live())
	require.Zero(t, arr.Exports())

	var nilView *pep3118.View
	nilView.Release()
}

func TestExportReleaseReturnsToBaseline(t *testing.T) {
	exp, alloc := newTestExporter(t)
	st := mustStruct(t,
		ndt.Field{Name: "id", Type: ndt.Make(ndt.Uint32ID), Offset: 0},
		ndt.Field{Name: "score", Type: ndt.Make(ndt.Float64ID), Offset: 8},
	)
	arrays := []*nd.Array{
		mustEmpty(t, ndt.Make(ndt.Complex128ID), ndt.COrder),
		mustEmpty(t, ndt.FixedDim(5, st), ndt.COrder),
		mustEmpty(t, ndt.FixedDim(2, ndt.FixedDim(3, ndt.FixedDim(4, ndt.Make(ndt.Int8ID)))), ndt.FOrder),
		nd.FromBytes([]byte{1, 2, 3}, nd.ReadWrite),
	}
	flagSets := []pep3118.Flags{
		pep3118.Simple, pep3118.ContigRO, pep3118.Contig, pep3118.StridedRO,
		pep3118.Records, pep3118.FullRO, pep3118.CContiguous, pep3118.FContiguous,
		pep3118.AnyContiguous,
	}
	for _, arr := range arrays {
		for _, flags := range flagSets {
			v, err := exp.GetBuffer(arr, flags)
			if err == nil {
				v.Release()
			}
			require.Zero(t, alloc.Live(), "type %s flags %s", arr.Type(), flags)
			require.Zero(t, arr.Exports(), "type %s flags %s", arr.Type(), flags)
		}
	}
	require.Positive(t, alloc.Total())
}

func TestGetBufferLogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	exp := pep3118.NewExporter(pep3118.Options{Logger: zap.New(core)})
	arr := mustEmpty(t, ndt.Make(ndt.Float32ID), ndt.COrder).ReadOnly()

	_, err := exp.GetBuffer(arr, pep3118.Writable)
	require.Error(t, err)

	failed := logs.FilterMessage("buffer export failed").All()
	require.Len(t, failed, 1)
	fields := failed[0].ContextMap()
	require.Equal(t, "float32", fields["type"])
	require.Equal(t, "WRITABLE", fields["flags"])

	v, err := exp.GetBuffer(arr, pep3118.FormatFlag)
	require.NoError(t, err)
	defer v.Release()

	exported := logs.FilterMessage("buffer exported").All()
	require.Len(t, exported, 1)
	view, ok := exported[0].ContextMap()["view"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "@f", view["format"])
	require.Equal(t, true, view["readonly"])
}

func TestPackageGetBuffer(t *testing.T) {
	arr := mustEmpty(t, ndt.FixedDim(2, ndt.Make(ndt.Uint16ID)), ndt.COrder)
	v, err := pep3118.GetBuffer(arr, pep3118.Records)
	require.NoError(t, err)
	require.Equal(t, "@H", v.Format)
	v.Release()
	require.Zero(t, arr.Exports())
}

func TestSetLoggerNil(t *testing.T) {
	defer pep3118.SetLogger(zap.NewNop())
	pep3118.SetLogger(nil)
	require.NotNil(t, pep3118.Logger())

	arr := mustEmpty(t, ndt.Make(ndt.Int8ID), ndt.COrder)
	v, err := pep3118.GetBuffer(arr, pep3118.FormatFlag)
	require.NoError(t, err)
	require.Equal(t, "@b", v.Format)
	v.Release()

	_, err = pep3118.GetBuffer(arr.ReadOnly(), pep3118.Writable)
	require.ErrorIs(t, err, pep3118.ErrArrayNotWritable)
}
