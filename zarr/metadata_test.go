package zarr_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TuSKan/ndbuffer/ndt"
	"github.com/TuSKan/ndbuffer/zarr"
	"github.com/stretchr/testify/require"
)

func TestParseDType(t *testing.T) {
	tests := []struct {
		input       string
		expectedStr string
		expectedSz  int
		expectErr   bool
	}{
		{"<f4", "float32", 4, false},
		{"<f8", "float64", 8, false},
		{"<i8", "int64", 8, false},
		{"|i1", "int8", 1, false},
		{"<u2", "uint16", 2, false},
		{"=u4", "uint32", 4, false},
		{"|b1", "bool", 1, false},
		{"<c8", "complex64", 8, false},
		{"<c16", "complex128", 16, false},
		{"|S10", "fixed_string[10, 'ascii']", 10, false},
		{"<U5", "fixed_string[20, 'utf32']", 20, false},
		{"|V3", "fixed_bytes[3]", 3, false},
		{">f4", "", 0, true}, // big-endian should fail
		{"x2", "", 0, true},  // invalid encoding
		{"<x4", "", 0, true}, // unknown kind
		{"<i", "", 0, true},  // incomplete size
		{"<i3", "", 0, true}, // unsupported size
		{"<f2", "", 0, true},
		{"|S0", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tp, err := zarr.ParseDType(tt.input)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expectedStr, tp.String())
			require.Equal(t, tt.expectedSz, tp.DataSize())
		})
	}
}

func TestLoadMetadata(t *testing.T) {
	tempDir := t.TempDir()

	mockJSON := `{
		"zarr_format": 2,
		"shape": [128, 128],
		"chunks": [64, 64],
		"dtype": "<f4",
		"compressor": null,
		"fill_value": 0.0,
		"order": "C"
	}`

	zarrayPath := filepath.Join(tempDir, ".zarray")
	require.NoError(t, os.WriteFile(zarrayPath, []byte(mockJSON), 0644))

	f, err := os.Open(zarrayPath)
	require.NoError(t, err)
	defer f.Close()

	meta, err := zarr.LoadMetadata(f)
	require.NoError(t, err)
	require.Equal(t, []int{128, 128}, meta.Shape)
	require.Equal(t, []int{64, 64}, meta.Chunks)
	require.Equal(t, 2, meta.ZarrFormat)
	require.Equal(t, ndt.COrder, meta.MemoryOrder())

	elem, err := meta.ElementType()
	require.NoError(t, err)
	require.Equal(t, ndt.Float32ID, elem.ID())

	size, err := meta.ItemSize()
	require.NoError(t, err)
	require.Equal(t, 4, size)

	tp, err := meta.ArrayType(meta.Shape)
	require.NoError(t, err)
	require.Equal(t, "128 * 128 * float32", tp.String())
}

func TestLoadMetadataErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"bad json":     `{"zarr_format": 2,`,
		"format":       `{"zarr_format": 3, "shape": [1], "chunks": [1], "dtype": "<f4"}`,
		"rank":         `{"zarr_format": 2, "shape": [4, 4], "chunks": [2], "dtype": "<f4"}`,
		"zero chunk":   `{"zarr_format": 2, "shape": [4], "chunks": [0], "dtype": "<f4"}`,
		"order":        `{"zarr_format": 2, "shape": [4], "chunks": [2], "dtype": "<f4", "order": "K"}`,
		"negative dim": `{"zarr_format": 2, "shape": [-1], "chunks": [2], "dtype": "<f4"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := zarr.LoadMetadata(strings.NewReader(doc))
			require.Error(t, err)
		})
	}
}

func TestParseStructuredDType(t *testing.T) {
	tp, err := zarr.ParseStructuredDType(json.RawMessage(`[["id", "<u4"], ["pos", "<f8", [3]], ["label", "|S4"]]`))
	require.NoError(t, err)
	require.Equal(t, "{id: uint32, pos: 3 * float64, label: fixed_string[4, 'ascii']}", tp.String())
	require.Equal(t, 32, tp.DataSize())

	fields := tp.Fields()
	require.Equal(t, 0, fields[0].Offset)
	require.Equal(t, 4, fields[1].Offset)
	require.Equal(t, 28, fields[2].Offset)

	nested, err := zarr.ParseStructuredDType(json.RawMessage(`[["a", [["x", "|i1"], ["y", "<i2"]]], ["b", "|u1"]]`))
	require.NoError(t, err)
	require.Equal(t, "{a: {x: int8, y: int16}, b: uint8}", nested.String())
	require.Equal(t, 4, nested.DataSize())

	for _, doc := range []string{
		`[["a"]]`,
		`[["a", "<f4", [2], "extra"]]`,
		`[[1, "<f4"]]`,
		`[["a", ">f4"]]`,
		`[["a", "<f4"], ["a", "<i4"]]`,
		`{"a": "<f4"}`,
	} {
		_, err := zarr.ParseStructuredDType(json.RawMessage(doc))
		require.Error(t, err, doc)
	}
}
