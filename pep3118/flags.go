package pep3118

import (
	"fmt"
	"strings"
)

// Flags is a buffer request. The bit values match the buffer-protocol
// request flags so they can be passed through from a foreign caller
// unchanged. Composite flags include the bits they depend on, so membership
// is tested with f&X == X.
type Flags int

const (
	Simple     Flags = 0
	Writable   Flags = 0x0001
	FormatFlag Flags = 0x0004
	ND         Flags = 0x0008

	Strides       = 0x0010 | ND
	CContiguous   = 0x0020 | Strides
	FContiguous   = 0x0040 | Strides
	AnyContiguous = 0x0080 | Strides
	Indirect      = 0x0100 | Strides

	Contig    = ND | Writable
	ContigRO  = ND
	Strided   = Strides | Writable
	StridedRO = Strides
	Records   = Strides | Writable | FormatFlag
	RecordsRO = Strides | FormatFlag
	Full      = Indirect | Writable | FormatFlag
	FullRO    = Indirect | FormatFlag
)

// Has reports whether every bit of x is set in f.
func (f Flags) Has(x Flags) bool { return f&x == x }

var flagNames = []struct {
	flag Flags
	name string
}{
	{Writable, "WRITABLE"},
	{FormatFlag, "FORMAT"},
	{ND, "ND"},
	{Strides, "STRIDES"},
	{CContiguous, "C_CONTIGUOUS"},
	{FContiguous, "F_CONTIGUOUS"},
	{AnyContiguous, "ANY_CONTIGUOUS"},
	{Indirect, "INDIRECT"},
}

// String lists the requested capabilities, e.g. "WRITABLE|FORMAT|ND".
func (f Flags) String() string {
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	if len(parts) == 0 {
		return "SIMPLE"
	}
	return strings.Join(parts, "|")
}

var compositeNames = map[string]Flags{
	"SIMPLE":     Simple,
	"CONTIG":     Contig,
	"CONTIG_RO":  ContigRO,
	"STRIDED":    Strided,
	"STRIDED_RO": StridedRO,
	"RECORDS":    Records,
	"RECORDS_RO": RecordsRO,
	"FULL":       Full,
	"FULL_RO":    FullRO,
}

// ParseFlags parses a request written as names joined by '|', such as
// "RECORDS_RO" or "ND|FORMAT". Names are case insensitive and '-' may stand
// in for '_'. It accepts everything Flags.String produces.
func ParseFlags(s string) (Flags, error) {
	var f Flags
	for _, part := range strings.Split(s, "|") {
		name := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(part), "-", "_"))
		if c, ok := compositeNames[name]; ok {
			f |= c
			continue
		}
		found := false
		for _, fn := range flagNames {
			if fn.name == name {
				f |= fn.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("pep3118: unknown buffer flag %q", part)
		}
	}
	return f, nil
}
