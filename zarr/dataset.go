package zarr

import (
	"context"
	"fmt"
	"io"

	"github.com/TuSKan/ndbuffer/nd"
	"github.com/TuSKan/ndbuffer/pep3118"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"go.uber.org/zap"
	"gocloud.dev/blob"
)

// Dataset handles reading Zarr arrays in batches along the first dimension.
type Dataset struct {
	reader       *Reader
	exporter     *pep3118.Exporter
	logger       *zap.Logger
	CurrentIndex int
}

// DatasetOptions configures a Dataset.
type DatasetOptions struct {
	// Exporter builds the buffer views returned by NextView.
	Exporter *pep3118.Exporter
	Logger   *zap.Logger
}

// NewDataset creates a new Dataset for the given bucket URL.
func NewDataset(ctx context.Context, path string) (*Dataset, error) {
	reader, err := NewReader(ctx, path)
	if err != nil {
		return nil, err
	}
	return newDataset(reader, DatasetOptions{})
}

// NewDatasetFromBucket creates a Dataset over an already open bucket.
func NewDatasetFromBucket(ctx context.Context, bucket *blob.Bucket, opts DatasetOptions) (*Dataset, error) {
	reader, err := NewReaderFromBucket(ctx, bucket)
	if err != nil {
		return nil, err
	}
	return newDataset(reader, opts)
}

func newDataset(reader *Reader, opts DatasetOptions) (*Dataset, error) {
	if len(reader.meta.Shape) == 0 {
		reader.Close()
		return nil, fmt.Errorf("cannot batch a 0-d array")
	}
	if opts.Exporter == nil {
		opts.Exporter = pep3118.NewExporter(pep3118.DefaultOptions())
	}
	if opts.Logger == nil {
		opts.Logger = pep3118.Logger()
	}
	return &Dataset{reader: reader, exporter: opts.Exporter, logger: opts.Logger}, nil
}

// Reader returns the underlying array reader.
func (d *Dataset) Reader() *Reader {
	return d.reader
}

// Reset rewinds the dataset to its first row.
func (d *Dataset) Reset() {
	d.CurrentIndex = 0
}

// NextArray reads the next batch of at most batchSize rows.
// Returns io.EOF if there is no more data.
func (d *Dataset) NextArray(ctx context.Context, batchSize int) (*nd.Array, error) {
	arr, end, err := d.readBatch(ctx, batchSize)
	if err != nil {
		return nil, err
	}
	d.CurrentIndex = end
	return arr, nil
}

// readBatch reads the rows following CurrentIndex without consuming them.
// It returns the batch and the index just past it.
func (d *Dataset) readBatch(ctx context.Context, batchSize int) (*nd.Array, int, error) {
	if batchSize <= 0 {
		return nil, 0, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	shape := d.reader.meta.Shape
	if d.CurrentIndex >= shape[0] {
		return nil, 0, io.EOF
	}

	start := d.CurrentIndex
	end := min(start+batchSize, shape[0])

	// Batch shape: [end-start, Shape[1], Shape[2]...]
	regionStart := make([]int, len(shape))
	regionStart[0] = start
	batchShape := append([]int{end - start}, shape[1:]...)

	arr, err := d.reader.ReadRegion(ctx, regionStart, batchShape)
	if err != nil {
		return nil, 0, err
	}
	d.logger.Debug("read batch",
		zap.Int("start", start),
		zap.Int("end", end),
		zap.Ints("shape", batchShape))
	return arr, end, nil
}

// NextBatch reads the next batch as a gomlx tensor.
// Returns io.EOF if there is no more data. Rows are consumed only when the
// conversion succeeds.
func (d *Dataset) NextBatch(ctx context.Context, batchSize int) (*tensors.Tensor, error) {
	arr, end, err := d.readBatch(ctx, batchSize)
	if err != nil {
		return nil, err
	}
	t, err := arr.Tensor()
	if err != nil {
		return nil, err
	}
	d.CurrentIndex = end
	return t, nil
}

// NextView reads the next batch and exports it as a buffer view with the
// given flags. The caller must Release the view. A rejected export leaves
// the rows unconsumed, so the caller may retry with other flags.
func (d *Dataset) NextView(ctx context.Context, batchSize int, flags pep3118.Flags) (*pep3118.View, error) {
	arr, end, err := d.readBatch(ctx, batchSize)
	if err != nil {
		return nil, err
	}
	v, err := d.exporter.GetBuffer(arr, flags)
	if err != nil {
		return nil, err
	}
	d.CurrentIndex = end
	return v, nil
}

// Close closes the underlying reader.
func (d *Dataset) Close() error {
	return d.reader.Close()
}
