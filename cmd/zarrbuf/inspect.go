package main

import (
	"fmt"
	"io"

	"github.com/TuSKan/ndbuffer/pep3118"
	"github.com/TuSKan/ndbuffer/zarr"
	"github.com/spf13/cobra"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
)

type inspectParams struct {
	stdout io.Writer
	url    string
	flags  string
	start  []int
	shape  []int
}

func newInspectCommand() *cobra.Command {
	p := inspectParams{}
	cmd := &cobra.Command{
		Use:   "inspect <bucket-url>",
		Short: "Read a region of a Zarr array and print its buffer view",
		Example: `  # Whole array, strided record view
  zarrbuf inspect file:///data/temperature.zarr

  # A 2x2 window requiring a C-contiguous view
  zarrbuf inspect file:///data/t.zarr --start 1,1 --shape 2,2 --flags C_CONTIGUOUS|FORMAT`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p.stdout = cmd.OutOrStdout()
			p.url = args[0]
			return runInspect(cmd, p)
		},
	}
	cmd.Flags().StringVar(&p.flags, "flags", "RECORDS_RO", "buffer request flags, e.g. CONTIG|FORMAT")
	cmd.Flags().IntSliceVar(&p.start, "start", nil, "region start (default: origin)")
	cmd.Flags().IntSliceVar(&p.shape, "shape", nil, "region shape (default: whole array)")
	return cmd
}

func runInspect(cmd *cobra.Command, p inspectParams) error {
	flags, err := pep3118.ParseFlags(p.flags)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	reader, err := zarr.NewReader(ctx, p.url)
	if err != nil {
		return err
	}
	defer reader.Close()

	meta := reader.Metadata()
	start := p.start
	if start == nil {
		start = make([]int, len(meta.Shape))
	}
	shape := p.shape
	if shape == nil {
		shape = make([]int, len(meta.Shape))
		for i := range shape {
			shape[i] = meta.Shape[i] - start[i]
		}
	}

	arr, err := reader.ReadRegion(ctx, start, shape)
	if err != nil {
		return err
	}
	view, err := pep3118.GetBuffer(arr, flags)
	if err != nil {
		return err
	}
	defer view.Release()

	fmt.Fprintf(p.stdout, "type:     %s\n", arr.Type())
	fmt.Fprintf(p.stdout, "order:    %c\n", meta.MemoryOrder())
	fmt.Fprintf(p.stdout, "request:  %s\n", flags)
	if view.Format != "" {
		fmt.Fprintf(p.stdout, "format:   %s\n", view.Format)
	}
	fmt.Fprintf(p.stdout, "itemsize: %d\n", view.ItemSize)
	fmt.Fprintf(p.stdout, "ndim:     %d\n", view.NDim)
	fmt.Fprintf(p.stdout, "shape:    %v\n", view.Shape)
	fmt.Fprintf(p.stdout, "strides:  %v\n", view.Strides)
	fmt.Fprintf(p.stdout, "len:      %d\n", view.Len)
	fmt.Fprintf(p.stdout, "readonly: %t\n", view.Readonly)
	return nil
}
