package zarr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/TuSKan/ndbuffer/ndt"
)

// CompressorConfig represents the Zarr compressor metadata.
type CompressorConfig struct {
	ID      string `json:"id"`
	Cname   string `json:"cname,omitempty"`
	Clevel  int    `json:"clevel,omitempty"`
	Shuffle int    `json:"shuffle,omitempty"`
}

// Metadata represents the Zarr V2 .zarray metadata.
type Metadata struct {
	ZarrFormat int               `json:"zarr_format"`
	Shape      []int             `json:"shape"`
	Chunks     []int             `json:"chunks"`
	DType      json.RawMessage   `json:"dtype"`
	Compressor *CompressorConfig `json:"compressor"`
	FillValue  interface{}       `json:"fill_value"`
	Order      string            `json:"order"`
	// DimensionSeparator joins chunk indices into keys. Empty means ".".
	DimensionSeparator string `json:"dimension_separator,omitempty"`
}

// SimpleDType encodes a numpy-style dtype string for Metadata.DType.
func SimpleDType(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// LoadMetadata reads and parses the .zarray file from the given directory path.
func LoadMetadata(reader io.Reader) (*Metadata, error) {
	var meta Metadata
	if err := json.NewDecoder(reader).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	if meta.ZarrFormat != 2 {
		return nil, fmt.Errorf("unsupported zarr_format: %d, expected 2", meta.ZarrFormat)
	}
	if len(meta.Shape) != len(meta.Chunks) {
		return nil, fmt.Errorf("shape %v and chunks %v differ in rank", meta.Shape, meta.Chunks)
	}
	for i, c := range meta.Chunks {
		if c <= 0 || meta.Shape[i] < 0 {
			return nil, fmt.Errorf("invalid shape %v or chunks %v", meta.Shape, meta.Chunks)
		}
	}
	switch meta.Order {
	case "", "C", "F":
	default:
		return nil, fmt.Errorf("unsupported order: %q", meta.Order)
	}

	return &meta, nil
}

// MemoryOrder returns the layout of elements within each chunk.
func (m *Metadata) MemoryOrder() ndt.Order {
	if m.Order == "F" {
		return ndt.FOrder
	}
	return ndt.COrder
}

func (m *Metadata) separator() string {
	if m.DimensionSeparator == "" {
		return "."
	}
	return m.DimensionSeparator
}

// ElementType parses the dtype into an ndt type.
func (m *Metadata) ElementType() (*ndt.Type, error) {
	return parseDTypeJSON(m.DType)
}

// ArrayType returns the element type wrapped in one fixed dimension per
// entry of shape.
func (m *Metadata) ArrayType(shape []int) (*ndt.Type, error) {
	tp, err := m.ElementType()
	if err != nil {
		return nil, err
	}
	return wrapDims(tp, shape), nil
}

// ItemSize returns the byte size of one element.
func (m *Metadata) ItemSize() (int, error) {
	tp, err := m.ElementType()
	if err != nil {
		return 0, err
	}
	return tp.DataSize(), nil
}

func wrapDims(tp *ndt.Type, shape []int) *ndt.Type {
	for i := len(shape) - 1; i >= 0; i-- {
		tp = ndt.FixedDim(shape[i], tp)
	}
	return tp
}

func parseDTypeJSON(raw json.RawMessage) (*ndt.Type, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing dtype")
	}
	if raw[0] == '[' {
		return ParseStructuredDType(raw)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("invalid dtype %s: %w", raw, err)
	}
	return ParseDType(s)
}

// ParseDType takes a numpy-style string like "<f4", "|b1", "<i8", "|S10" or
// "<U5" and returns the matching ndt type.
// Reject big-endian (>) types: exported buffers declare native byte order.
func ParseDType(s string) (*ndt.Type, error) {
	if len(s) < 3 {
		return nil, fmt.Errorf("invalid dtype: %s", s)
	}

	endian := s[0]
	if endian == '>' {
		return nil, fmt.Errorf("big-endian types are unsupported: %s", s)
	}
	if endian != '<' && endian != '|' && endian != '=' {
		return nil, fmt.Errorf("invalid byte order in dtype: %s", s)
	}

	kind := s[1]
	sizeStr := s[2:]

	size, err := strconv.Atoi(sizeStr)
	if err != nil || size <= 0 {
		return nil, fmt.Errorf("invalid size in dtype: %s", s)
	}

	var id ndt.ID
	switch kind {
	case 'b':
		id = pick(size, map[int]ndt.ID{1: ndt.BoolID})
	case 'i':
		id = pick(size, map[int]ndt.ID{1: ndt.Int8ID, 2: ndt.Int16ID, 4: ndt.Int32ID, 8: ndt.Int64ID})
	case 'u':
		id = pick(size, map[int]ndt.ID{1: ndt.Uint8ID, 2: ndt.Uint16ID, 4: ndt.Uint32ID, 8: ndt.Uint64ID})
	case 'f':
		id = pick(size, map[int]ndt.ID{4: ndt.Float32ID, 8: ndt.Float64ID})
	case 'c':
		id = pick(size, map[int]ndt.ID{8: ndt.Complex64ID, 16: ndt.Complex128ID})
	case 'S':
		return ndt.FixedString(size, ndt.ASCII), nil
	case 'U':
		return ndt.FixedString(4*size, ndt.UTF32), nil
	case 'V':
		return ndt.FixedBytes(size), nil
	default:
		return nil, fmt.Errorf("unsupported dtype kind: %c in %s", kind, s)
	}
	if id == ndt.UninitializedID {
		return nil, fmt.Errorf("unsupported size %d for dtype kind %c in %s", size, kind, s)
	}
	return ndt.Make(id), nil
}

func pick(size int, ids map[int]ndt.ID) ndt.ID {
	return ids[size]
}

// ParseStructuredDType parses a structured dtype: a JSON list of
// [name, dtype] or [name, dtype, shape] entries. Fields are packed back to
// back in declaration order, as numpy stores them.
func ParseStructuredDType(raw json.RawMessage) (*ndt.Type, error) {
	var entries [][]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("invalid structured dtype: %w", err)
	}

	fields := make([]ndt.Field, 0, len(entries))
	offset := 0
	for i, entry := range entries {
		if len(entry) < 2 || len(entry) > 3 {
			return nil, fmt.Errorf("structured dtype entry %d has %d elements, want 2 or 3", i, len(entry))
		}
		var name string
		if err := json.Unmarshal(entry[0], &name); err != nil {
			return nil, fmt.Errorf("structured dtype entry %d: invalid name: %w", i, err)
		}
		tp, err := parseDTypeJSON(entry[1])
		if err != nil {
			return nil, fmt.Errorf("structured dtype field %q: %w", name, err)
		}
		if len(entry) == 3 {
			var shape []int
			if err := json.Unmarshal(entry[2], &shape); err != nil {
				return nil, fmt.Errorf("structured dtype field %q: invalid shape: %w", name, err)
			}
			tp = wrapDims(tp, shape)
		}
		fields = append(fields, ndt.Field{Name: name, Type: tp, Offset: offset})
		offset += tp.DataSize()
	}
	return ndt.Struct(fields...)
}
