package pep3118_test

import (
	"testing"

	"github.com/TuSKan/ndbuffer/ndt"
	"github.com/TuSKan/ndbuffer/pep3118"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	f, err := pep3118.ParseFormat("@(3,4)d")
	require.NoError(t, err)
	require.True(t, f.Native)
	require.Equal(t, pep3118.KindArray, f.Root.Kind)
	require.Equal(t, []int{3, 4}, f.Root.Dims)
	require.Equal(t, "d", f.Root.Elem.Code)
	require.Equal(t, 96, f.ItemSize())

	f, err = pep3118.ParseFormat("T{b:a:xxxi:b:}")
	require.NoError(t, err)
	require.False(t, f.Native)
	require.Equal(t, pep3118.KindStruct, f.Root.Kind)
	require.Equal(t, []string{"a", "b"}, f.Root.FieldNames())
	require.Equal(t, 0, f.Root.Fields[0].Offset)
	require.Equal(t, 4, f.Root.Fields[1].Offset)
	require.Equal(t, 8, f.ItemSize())

	f, err = pep3118.ParseFormat("T{b:a:3xi:b:}")
	require.NoError(t, err)
	require.Equal(t, 4, f.Root.Fields[1].Offset)

	f, err = pep3118.ParseFormat("5w")
	require.NoError(t, err)
	require.Equal(t, pep3118.KindUnicode, f.Root.Kind)
	require.Equal(t, 5, f.Root.Count)
	require.Equal(t, 20, f.ItemSize())

	f, err = pep3118.ParseFormat("@Zd")
	require.NoError(t, err)
	require.Equal(t, "Zd", f.Root.Code)
	require.Equal(t, 16, f.ItemSize())

	f, err = pep3118.ParseFormat("c")
	require.NoError(t, err)
	require.Equal(t, 1, f.ItemSize())
}

func TestParseFormatErrors(t *testing.T) {
	for _, s := range []string{
		"",
		"@",
		"(3",
		"(3)",
		"(,3)d",
		"T{i}",
		"T{i:a",
		"T{i::}",
		"T[i:a:]",
		"3i",
		"Zx",
		"k",
		"ii",
		"x",
	} {
		t.Run(s, func(t *testing.T) {
			_, err := pep3118.ParseFormat(s)
			require.ErrorIs(t, err, pep3118.ErrInvalidFormat)
		})
	}
}

// requireMatchesType checks that a parsed format has the same dimension
// groups and field names as the type it was compiled from.
func requireMatchesType(t *testing.T, tp *ndt.Type, n *pep3118.Node) {
	t.Helper()
	switch tp.ID() {
	case ndt.FixedDimID:
		require.Equal(t, pep3118.KindArray, n.Kind)
		var dims []int
		cur := tp
		for ; cur.ID() == ndt.FixedDimID; cur = cur.Element() {
			dims = append(dims, cur.DimSize())
		}
		require.Equal(t, dims, n.Dims)
		requireMatchesType(t, cur, n.Elem)
	case ndt.StructID:
		require.Equal(t, pep3118.KindStruct, n.Kind)
		fields := tp.Fields()
		require.Len(t, n.Fields, len(fields))
		for i, f := range fields {
			require.Equal(t, f.Name, n.Fields[i].Name)
			require.Equal(t, f.Offset, n.Fields[i].Offset)
			requireMatchesType(t, f.Type, n.Fields[i].Node)
		}
	case ndt.FixedStringID:
		if tp.Encoding() == ndt.ASCII {
			require.Equal(t, pep3118.KindString, n.Kind)
		} else {
			require.Equal(t, pep3118.KindUnicode, n.Kind)
		}
		require.Equal(t, tp.DataSize(), n.Size)
	default:
		require.Equal(t, pep3118.KindScalar, n.Kind)
		require.Equal(t, tp.DataSize(), n.Size)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	inner, err := ndt.AlignedStruct(
		ndt.Field{Name: "re", Type: ndt.Make(ndt.Float32ID)},
		ndt.Field{Name: "flag", Type: ndt.Make(ndt.BoolID)},
		ndt.Field{Name: "im", Type: ndt.Make(ndt.Float64ID)},
	)
	require.NoError(t, err)
	outer, err := ndt.AlignedStruct(
		ndt.Field{Name: "id", Type: ndt.Make(ndt.Uint16ID)},
		ndt.Field{Name: "grid", Type: ndt.FixedDim(2, ndt.FixedDim(3, ndt.Make(ndt.Int64ID)))},
		ndt.Field{Name: "name", Type: ndt.FixedString(12, ndt.UTF32)},
		ndt.Field{Name: "inner", Type: inner},
		ndt.Field{Name: "c", Type: ndt.Make(ndt.Complex64ID)},
	)
	require.NoError(t, err)

	for _, tp := range []*ndt.Type{
		ndt.Make(ndt.Int16ID),
		ndt.FixedDim(5, ndt.FixedDim(1, ndt.FixedDim(2, ndt.Make(ndt.Uint8ID)))),
		inner,
		outer,
		ndt.FixedDim(4, outer),
	} {
		t.Run(tp.String(), func(t *testing.T) {
			format, size, err := pep3118.MakeFormat(tp, ndt.NewArrmeta(tp, ndt.COrder))
			require.NoError(t, err)

			parsed, err := pep3118.ParseFormat(format)
			require.NoError(t, err)
			require.Equal(t, tp.IsBuiltin(), parsed.Native)
			require.Equal(t, size, parsed.ItemSize())
			requireMatchesType(t, tp, parsed.Root)
		})
	}
}
