package paging

import (
	"fmt"
	"math/bits"
	"os"

	"github.com/hupe1980/pagetree/internal/mmap"
)

// AccessPattern is a hint about how pages will be accessed.
type AccessPattern = mmap.AccessPattern

// Access patterns accepted by Options.Advice.
const (
	AccessDefault    = mmap.AccessDefault
	AccessSequential = mmap.AccessSequential
	AccessRandom     = mmap.AccessRandom
	AccessWillNeed   = mmap.AccessWillNeed
)

const minPageSize = 256

// Options configures an address space.
type Options struct {
	// PageSize is the size of one page in bytes. Must be a power of two.
	// Defaults to the OS page size.
	PageSize int

	// Refs is the in-page reference codec.
	Refs RefCodec

	// PageNums is the page number codec.
	PageNums PageNumCodec

	// ReadOnly maps files without write permission.
	ReadOnly bool

	// Advice is passed to madvise after mapping.
	Advice AccessPattern
}

// DefaultOptions contains the default address space configuration.
var DefaultOptions = Options{
	PageSize: os.Getpagesize(),
	Refs:     RefAuto,
	PageNums: PageNum32,
	Advice:   AccessRandom,
}

func buildOptions(optFns []func(*Options)) (Options, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.PageSize < minPageSize || bits.OnesCount(uint(opts.PageSize)) != 1 {
		return opts, fmt.Errorf("%w: page size %d must be a power of two >= %d", ErrInvalidOptions, opts.PageSize, minPageSize)
	}

	if opts.Refs == RefAuto {
		opts.Refs = Ref16
		if opts.PageSize > Ref16.MaxPageSize() {
			opts.Refs = Ref32
		}
	}
	if opts.Refs != Ref16 && opts.Refs != Ref32 {
		return opts, fmt.Errorf("%w: %s", ErrInvalidOptions, opts.Refs)
	}
	if opts.PageSize > opts.Refs.MaxPageSize() {
		return opts, fmt.Errorf("%w: page size %d too large for %s", ErrInvalidOptions, opts.PageSize, opts.Refs)
	}

	if opts.PageNums != PageNum32 && opts.PageNums != PageNum64 {
		return opts, fmt.Errorf("%w: %s", ErrInvalidOptions, opts.PageNums)
	}

	return opts, nil
}

func pagesIn(size int64, opts Options) (uint64, error) {
	if size <= 0 || size%int64(opts.PageSize) != 0 {
		return 0, fmt.Errorf("%w: size %d is not a positive multiple of page size %d", ErrInvalidOptions, size, opts.PageSize)
	}
	return uint64(size / int64(opts.PageSize)), nil
}
