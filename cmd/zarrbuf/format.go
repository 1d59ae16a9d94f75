package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/TuSKan/ndbuffer/ndt"
	"github.com/TuSKan/ndbuffer/pep3118"
	"github.com/TuSKan/ndbuffer/zarr"
	"github.com/spf13/cobra"
)

func newFormatCommand() *cobra.Command {
	var shape []int
	cmd := &cobra.Command{
		Use:   "format <dtype>",
		Short: "Compile a Zarr dtype into a PEP 3118 format string",
		Example: `  zarrbuf format '<f8' --shape 3,4
  zarrbuf format '[["id", "<u4"], ["pos", "<f8", [3]]]'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tp, err := parseDType(args[0])
			if err != nil {
				return err
			}
			for i := len(shape) - 1; i >= 0; i-- {
				tp = ndt.FixedDim(shape[i], tp)
			}

			format, itemSize, err := pep3118.MakeFormat(tp, ndt.NewArrmeta(tp, ndt.COrder))
			if err != nil {
				return err
			}
			// Every compiled format must parse back to the same size.
			parsed, err := pep3118.ParseFormat(format)
			if err != nil {
				return err
			}
			if parsed.ItemSize() != itemSize {
				return fmt.Errorf("format %s parses to item size %d, compiled %d", format, parsed.ItemSize(), itemSize)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "type:     %s\n", tp)
			fmt.Fprintf(out, "format:   %s\n", format)
			fmt.Fprintf(out, "itemsize: %d\n", itemSize)
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&shape, "shape", nil, "wrap the dtype in fixed dimensions")
	return cmd
}

func parseDType(s string) (*ndt.Type, error) {
	if strings.HasPrefix(strings.TrimSpace(s), "[") {
		return zarr.ParseStructuredDType(json.RawMessage(s))
	}
	return zarr.ParseDType(s)
}
