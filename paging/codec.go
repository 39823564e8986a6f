package paging

import "fmt"

// RefCodec selects the width of in-page references.
type RefCodec uint8

const (
	// RefAuto picks Ref16 when the page size allows it, Ref32 otherwise.
	RefAuto RefCodec = 0
	// Ref16 stores in-page references in 2 bytes.
	Ref16 RefCodec = 2
	// Ref32 stores in-page references in 4 bytes.
	Ref32 RefCodec = 4
)

// Size returns the field width in bytes.
func (c RefCodec) Size() int { return int(c) }

// MaxPageSize returns the largest page size the codec can address.
// The page tail may point one past the last byte, so it must fit as well.
func (c RefCodec) MaxPageSize() int {
	if c == Ref16 {
		return 1 << 15
	}
	return 1 << 30
}

func (c RefCodec) String() string {
	switch c {
	case Ref16:
		return "ref16"
	case Ref32:
		return "ref32"
	case RefAuto:
		return "auto"
	default:
		return fmt.Sprintf("RefCodec(%d)", uint8(c))
	}
}

// PageNumCodec selects the width of page numbers.
type PageNumCodec uint8

const (
	// PageNum32 stores page numbers as unsigned 32-bit integers.
	PageNum32 PageNumCodec = 4
	// PageNum64 stores page numbers as unsigned 64-bit integers.
	PageNum64 PageNumCodec = 8
)

// Size returns the field width in bytes.
func (c PageNumCodec) Size() int { return int(c) }

// MaxPages returns the number of pages the codec can address.
func (c PageNumCodec) MaxPages() uint64 {
	if c == PageNum64 {
		return 1<<63 - 1
	}
	return 1<<32 - 1
}

func (c PageNumCodec) String() string {
	switch c {
	case PageNum32:
		return "pagenum32"
	case PageNum64:
		return "pagenum64"
	default:
		return fmt.Sprintf("PageNumCodec(%d)", uint8(c))
	}
}

// ParseRefCodec parses the String form of a RefCodec.
func ParseRefCodec(s string) (RefCodec, error) {
	switch s {
	case "ref16":
		return Ref16, nil
	case "ref32":
		return Ref32, nil
	case "auto", "":
		return RefAuto, nil
	}
	return 0, fmt.Errorf("paging: unknown ref codec %q", s)
}

// ParsePageNumCodec parses the String form of a PageNumCodec.
func ParsePageNumCodec(s string) (PageNumCodec, error) {
	switch s {
	case "pagenum32", "":
		return PageNum32, nil
	case "pagenum64":
		return PageNum64, nil
	}
	return 0, fmt.Errorf("paging: unknown page number codec %q", s)
}
