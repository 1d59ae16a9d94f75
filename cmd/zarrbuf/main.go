// Command zarrbuf inspects Zarr V2 arrays and the PEP 3118 buffer views
// exported from them.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
