package zarr

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// zstdDecoder is shared by every reader. zstd.Decoder is safe for concurrent
// use with DecodeAll.
var zstdDecoder *zstd.Decoder

func init() {
	var err error
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("zarr: zstd decoder initialization failed: " + err.Error())
	}
}

// decompress decodes a chunk stored with the numcodecs compressor id.
// expectedSize is the decoded size of a full chunk.
func decompress(id string, data []byte, expectedSize int) ([]byte, error) {
	switch id {
	case "zstd":
		return zstdDecoder.DecodeAll(data, make([]byte, 0, expectedSize))
	case "lz4":
		return decompressLZ4(data)
	case "zlib":
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to init zlib reader: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "gzip":
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to init gzip reader: %w", err)
		}
		defer gr.Close()
		return io.ReadAll(gr)
	default:
		return nil, fmt.Errorf("unsupported compressor: %s", id)
	}
}

// decompressLZ4 decodes the numcodecs LZ4 framing: a little-endian uint32
// holding the decoded size, followed by one LZ4 block.
func decompressLZ4(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("lz4 chunk has %d bytes, too short for its header", len(data))
	}
	size := int(binary.LittleEndian.Uint32(data))
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(data[4:], destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}
