package paging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/pagetree/internal/mmap"
)

var (
	// ErrInvalidOptions is returned when an address space configuration is invalid.
	ErrInvalidOptions = errors.New("paging: invalid options")
	// ErrPageOutOfRange is returned when a page number is beyond the space.
	ErrPageOutOfRange = errors.New("paging: page out of range")
	// ErrClosed is returned when using a closed space.
	ErrClosed = errors.New("paging: space is closed")
)

// Space is a fixed-page address space.
type Space interface {
	// PageSize returns the size of every page in bytes.
	PageSize() int
	// PageCount returns the number of pages in the space.
	PageCount() uint64
	// Page returns the bytes of page n. The slice aliases the mapping.
	Page(n uint64) ([]byte, error)
	// Refs returns the in-page reference codec.
	Refs() RefCodec
	// PageNums returns the page number codec.
	PageNums() PageNumCodec
	// Writable reports whether pages may be modified.
	Writable() bool
	// Sync flushes modified pages to stable storage, if there is any.
	Sync() error
	// Close releases the space.
	Close() error
}

type segment struct {
	first   uint64 // first page number in this segment
	pages   uint64
	data    []byte
	mapping *mmap.Mapping
	file    *os.File
}

// Region is a Space made of one or more mapped segments.
type Region struct {
	opts     Options
	segments []segment
	pages    uint64
	closed   atomic.Bool
}

var _ Space = (*Region)(nil)

// NewMemory creates an anonymous address space of size bytes.
func NewMemory(size int64, optFns ...func(*Options)) (*Region, error) {
	opts, err := buildOptions(optFns)
	if err != nil {
		return nil, err
	}
	opts.ReadOnly = false

	pages, err := pagesIn(size, opts)
	if err != nil {
		return nil, err
	}
	if pages > opts.PageNums.MaxPages() {
		return nil, fmt.Errorf("%w: %d pages exceed %s", ErrInvalidOptions, pages, opts.PageNums)
	}

	m, err := mmap.MapAnon(int(size))
	if err != nil {
		return nil, fmt.Errorf("paging: map anonymous: %w", err)
	}
	_ = m.Advise(opts.Advice)

	return &Region{
		opts:     opts,
		segments: []segment{{first: 0, pages: pages, data: m.Bytes(), mapping: m}},
		pages:    pages,
	}, nil
}

// FileSpec names one segment of a multi-file space.
type FileSpec struct {
	Path string
	// Size is the segment size in bytes; must be a multiple of the page size.
	Size int64
}

// OpenFile maps a single file as an address space, creating or extending
// it to size bytes. A size of 0 uses the existing file size.
func OpenFile(path string, size int64, optFns ...func(*Options)) (*Region, error) {
	return OpenFiles([]FileSpec{{Path: path, Size: size}}, optFns...)
}

// OpenFiles maps several files and concatenates them into one page-number
// space, in the order given. Segments are mapped in parallel.
func OpenFiles(specs []FileSpec, optFns ...func(*Options)) (*Region, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no files", ErrInvalidOptions)
	}

	opts, err := buildOptions(optFns)
	if err != nil {
		return nil, err
	}

	segments := make([]segment, len(specs))

	g, _ := errgroup.WithContext(context.Background())
	for i, spec := range specs {
		g.Go(func() error {
			seg, err := openSegment(spec, opts)
			if err != nil {
				return fmt.Errorf("paging: open %s: %w", spec.Path, err)
			}
			segments[i] = seg
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, seg := range segments {
			seg.close()
		}
		return nil, err
	}

	var total uint64
	for i := range segments {
		segments[i].first = total
		total += segments[i].pages
	}
	if total > opts.PageNums.MaxPages() {
		for _, seg := range segments {
			seg.close()
		}
		return nil, fmt.Errorf("%w: %d pages exceed %s", ErrInvalidOptions, total, opts.PageNums)
	}

	return &Region{opts: opts, segments: segments, pages: total}, nil
}

func openSegment(spec FileSpec, opts Options) (segment, error) {
	flag := os.O_RDWR | os.O_CREATE
	if opts.ReadOnly {
		flag = os.O_RDONLY
	}

	f, err := os.OpenFile(spec.Path, flag, 0o644)
	if err != nil {
		return segment{}, err
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return segment{}, err
	}

	size := spec.Size
	if size == 0 {
		size = fi.Size()
	}
	if fi.Size() < size {
		if opts.ReadOnly {
			_ = f.Close()
			return segment{}, fmt.Errorf("%w: file is %d bytes, want %d", ErrInvalidOptions, fi.Size(), size)
		}
		if err := f.Truncate(size); err != nil {
			_ = f.Close()
			return segment{}, err
		}
	}

	pages, err := pagesIn(size, opts)
	if err != nil {
		_ = f.Close()
		return segment{}, err
	}

	m, err := mmap.MapFile(f, int(size), !opts.ReadOnly)
	if err != nil {
		_ = f.Close()
		return segment{}, err
	}
	_ = m.Advise(opts.Advice)

	return segment{pages: pages, data: m.Bytes(), mapping: m, file: f}, nil
}

func (s segment) close() error {
	var errs []error
	if s.mapping != nil {
		errs = append(errs, s.mapping.Close())
	}
	if s.file != nil {
		errs = append(errs, s.file.Close())
	}
	return errors.Join(errs...)
}

// PageSize implements Space.
func (r *Region) PageSize() int { return r.opts.PageSize }

// PageCount implements Space.
func (r *Region) PageCount() uint64 { return r.pages }

// Refs implements Space.
func (r *Region) Refs() RefCodec { return r.opts.Refs }

// PageNums implements Space.
func (r *Region) PageNums() PageNumCodec { return r.opts.PageNums }

// Writable implements Space.
func (r *Region) Writable() bool { return !r.opts.ReadOnly }

// Options returns the effective options of the space.
func (r *Region) Options() Options { return r.opts }

// Page implements Space.
func (r *Region) Page(n uint64) ([]byte, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	if n >= r.pages {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, n, r.pages)
	}

	seg := &r.segments[0]
	if len(r.segments) > 1 {
		i := sort.Search(len(r.segments), func(i int) bool {
			return r.segments[i].first > n
		})
		seg = &r.segments[i-1]
	}

	size := uint64(r.opts.PageSize)
	off := (n - seg.first) * size
	return seg.data[off : off+size : off+size], nil
}

// Sync flushes every file segment.
func (r *Region) Sync() error {
	if r.closed.Load() {
		return ErrClosed
	}
	var errs []error
	for _, seg := range r.segments {
		if seg.file == nil {
			continue
		}
		if err := seg.mapping.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("paging: sync %s: %w", seg.file.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close unmaps every segment and closes the files. It is idempotent.
func (r *Region) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	var errs []error
	for _, seg := range r.segments {
		errs = append(errs, seg.close())
	}
	return errors.Join(errs...)
}
