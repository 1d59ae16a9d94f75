package zarr

import (
	"context"
	"fmt"
	"io"

	"github.com/TuSKan/ndbuffer/nd"
	"github.com/TuSKan/ndbuffer/ndt"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// Reader reads a Zarr V2 array from a blob bucket into nd arrays.
type Reader struct {
	bucket   *blob.Bucket
	meta     *Metadata
	elem     *ndt.Type
	itemSize int
	owned    bool
}

// NewReader opens the bucket at url and loads its .zarray metadata.
func NewReader(ctx context.Context, url string) (*Reader, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	r, err := NewReaderFromBucket(ctx, bucket)
	if err != nil {
		bucket.Close()
		return nil, err
	}
	r.owned = true
	return r, nil
}

// NewReaderFromBucket loads the .zarray metadata from an open bucket. The
// caller keeps ownership of the bucket.
func NewReaderFromBucket(ctx context.Context, bucket *blob.Bucket) (*Reader, error) {
	reader, err := bucket.NewReader(ctx, ".zarray", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open .zarray: %w", err)
	}
	defer reader.Close()

	meta, err := LoadMetadata(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	elem, err := meta.ElementType()
	if err != nil {
		return nil, fmt.Errorf("invalid dtype: %w", err)
	}
	if elem.DataSize() == 0 {
		return nil, fmt.Errorf("dtype %s has no fixed size", elem)
	}
	return &Reader{
		bucket:   bucket,
		meta:     meta,
		elem:     elem,
		itemSize: elem.DataSize(),
	}, nil
}

// strides computes element strides for a given shape in the given order.
func strides(shape []int, order ndt.Order) []int {
	if len(shape) == 0 {
		return []int{}
	}
	s := make([]int, len(shape))
	stride := 1
	if order == ndt.FOrder {
		for i := range shape {
			s[i] = stride
			stride *= shape[i]
		}
		return s
	}
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = stride
		stride *= shape[i]
	}
	return s
}

// ReadFull reads the entire Zarr array.
func (r *Reader) ReadFull(ctx context.Context) (*nd.Array, error) {
	return r.ReadRegion(ctx, make([]int, len(r.meta.Shape)), r.meta.Shape)
}

// ReadChunk reads a single chunk from the Zarr array given its coordinates
// and returns its decompressed bytes. Missing chunks read as zeros.
func (r *Reader) ReadChunk(ctx context.Context, coords []int) ([]byte, error) {
	key := ChunkKey(coords, r.meta.separator())

	expectedElements := 1
	for _, dim := range r.meta.Chunks {
		expectedElements *= dim
	}
	expectedBytes := expectedElements * r.itemSize

	reader, err := r.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			// TODO: honor fill_value for missing chunks.
			return make([]byte, expectedBytes), nil
		}
		return nil, fmt.Errorf("failed to open chunk %s: %w", key, err)
	}
	defer reader.Close()

	chunkData, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk %s: %w", key, err)
	}

	if r.meta.Compressor != nil {
		chunkData, err = decompress(r.meta.Compressor.ID, chunkData, expectedBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress chunk %s: %w", key, err)
		}
	}

	if len(chunkData) < expectedBytes {
		return nil, fmt.Errorf("chunk %s has %d bytes, expected %d", key, len(chunkData), expectedBytes)
	}
	return chunkData, nil
}

// ReadRegion reads an N-dimensional region of the Zarr array. The result is
// laid out in the store's memory order, so an "F" ordered store yields a
// Fortran-contiguous array.
func (r *Reader) ReadRegion(ctx context.Context, start, shape []int) (*nd.Array, error) {
	if len(start) != len(r.meta.Shape) || len(shape) != len(r.meta.Shape) {
		return nil, fmt.Errorf("start and shape must match array dimensionality")
	}

	// Validate bounds
	for i := range r.meta.Shape {
		if start[i] < 0 || shape[i] < 0 || start[i]+shape[i] > r.meta.Shape[i] {
			return nil, fmt.Errorf("region out of bounds at dimension %d", i)
		}
	}

	order := r.meta.MemoryOrder()
	out, err := nd.Empty(wrapDims(r.elem, shape), order)
	if err != nil {
		return nil, err
	}

	if len(r.meta.Shape) == 0 {
		chunkData, err := r.ReadChunk(ctx, []int{})
		if err != nil {
			return nil, err
		}
		copy(out.Data(), chunkData[:r.itemSize])
		return out, nil
	}
	for _, n := range shape {
		if n == 0 {
			return out, nil
		}
	}

	minChunk := make([]int, len(start))
	maxChunk := make([]int, len(start))
	for i := range start {
		minChunk[i] = start[i] / r.meta.Chunks[i]
		maxChunk[i] = (start[i] + shape[i] - 1) / r.meta.Chunks[i]
	}

	dstStrides := strides(shape, order)
	chunkStrides := strides(r.meta.Chunks, order)

	var iterateChunks func(dim int, currentChunkCoords []int) error
	iterateChunks = func(dim int, currentChunkCoords []int) error {
		if dim == len(minChunk) {
			chunkData, err := r.ReadChunk(ctx, currentChunkCoords)
			if err != nil {
				return err
			}

			copyShape := make([]int, len(r.meta.Shape))
			srcOffset := make([]int, len(r.meta.Shape))
			dstOffset := make([]int, len(r.meta.Shape))

			for i := range r.meta.Shape {
				chunkStartGlobal := currentChunkCoords[i] * r.meta.Chunks[i]
				chunkEndGlobal := min(chunkStartGlobal+r.meta.Chunks[i], r.meta.Shape[i])

				intersectStart := max(chunkStartGlobal, start[i])
				intersectEnd := min(chunkEndGlobal, start[i]+shape[i])

				if intersectStart >= intersectEnd {
					return nil
				}

				copyShape[i] = intersectEnd - intersectStart
				srcOffset[i] = intersectStart - chunkStartGlobal
				dstOffset[i] = intersectStart - start[i]
			}

			copyND(out.Data(), dstStrides, dstOffset, chunkData, chunkStrides, srcOffset, copyShape, r.itemSize)
			return nil
		}

		for i := minChunk[dim]; i <= maxChunk[dim]; i++ {
			currentChunkCoords[dim] = i
			if err := iterateChunks(dim+1, currentChunkCoords); err != nil {
				return err
			}
		}
		return nil
	}

	coords := make([]int, len(minChunk))
	if err := iterateChunks(0, coords); err != nil {
		return nil, err
	}

	return out, nil
}

// copyND recursively copies n-dimensional data from src to dst. Strides and
// offsets are in elements.
func copyND(
	dst []byte, dstStrides, dstOffset []int,
	src []byte, srcStrides, srcOffset []int,
	copyShape []int, itemSize int,
) {
	startSrcIdx := 0
	startDstIdx := 0
	for i := range copyShape {
		startSrcIdx += srcOffset[i] * srcStrides[i]
		startDstIdx += dstOffset[i] * dstStrides[i]
	}

	var iterate func(dim int, currentSrcIdx, currentDstIdx int)
	iterate = func(dim int, currentSrcIdx, currentDstIdx int) {
		// Optimization: bulk copy for the innermost contiguous dimension
		if dim == len(copyShape)-1 {
			n := copyShape[dim]
			if srcStrides[dim] == 1 && dstStrides[dim] == 1 {
				byteLen := n * itemSize
				srcStart := currentSrcIdx * itemSize
				dstStart := currentDstIdx * itemSize
				copy(dst[dstStart:dstStart+byteLen], src[srcStart:srcStart+byteLen])
				return
			}
			// Fallback for non-contiguous last dimension
			for i := 0; i < n; i++ {
				srcStart := (currentSrcIdx + i*srcStrides[dim]) * itemSize
				dstStart := (currentDstIdx + i*dstStrides[dim]) * itemSize
				copy(dst[dstStart:dstStart+itemSize], src[srcStart:srcStart+itemSize])
			}
			return
		}

		for i := 0; i < copyShape[dim]; i++ {
			iterate(dim+1, currentSrcIdx+i*srcStrides[dim], currentDstIdx+i*dstStrides[dim])
		}
	}
	iterate(0, startSrcIdx, startDstIdx)
}

// Metadata returns the parsed .zarray document.
func (r *Reader) Metadata() *Metadata {
	return r.meta
}

// ElementType returns the array's element type.
func (r *Reader) ElementType() *ndt.Type {
	return r.elem
}

// Close closes the reader. A bucket passed to NewReaderFromBucket is left
// open.
func (r *Reader) Close() error {
	if !r.owned {
		return nil
	}
	return r.bucket.Close()
}
