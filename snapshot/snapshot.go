package snapshot

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/pagetree/internal/master"
	"github.com/hupe1980/pagetree/internal/page"
	"github.com/hupe1980/pagetree/internal/resource"
	"github.com/hupe1980/pagetree/paging"
)

var (
	// ErrInvalidOptions is returned for unusable export options.
	ErrInvalidOptions = errors.New("snapshot: invalid options")
	// ErrCorrupt is returned when a stream fails validation.
	ErrCorrupt = errors.New("snapshot: corrupt stream")
	// ErrIncompatible is returned when a snapshot does not fit the target space.
	ErrIncompatible = errors.New("snapshot: incompatible target")
	// ErrNotEmpty is returned when the target space already holds data.
	ErrNotEmpty = errors.New("snapshot: target space is not empty")
)

// Options configures Export.
type Options struct {
	// Compression applied to every frame.
	Compression Compression

	// BatchPages is the number of pages per frame.
	BatchPages int

	// Concurrency is the number of frames compressed in parallel.
	Concurrency int

	// BytesPerSecond throttles the stream on export and import.
	// If 0, unlimited.
	BytesPerSecond int64
}

// DefaultOptions contains the default export configuration.
var DefaultOptions = Options{
	Compression: CompressionZstd,
	BatchPages:  64,
	Concurrency: runtime.GOMAXPROCS(0),
}

// Export writes the used pages of space to w: a manifest followed by
// checksummed, optionally compressed frames of BatchPages pages each.
//
// The pages are copied while other writers may be active, so a live export
// is a fuzzy image. Quiesce writers for a consistent snapshot.
func Export(ctx context.Context, w io.Writer, space paging.Space, optFns ...func(*Options)) (*Manifest, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BatchPages <= 0 {
		return nil, fmt.Errorf("%w: batch pages %d", ErrInvalidOptions, opts.BatchPages)
	}
	if opts.Compression > CompressionZstd {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOptions, opts.Compression)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if uint64(opts.BatchPages)*uint64(space.PageSize()) > 1<<31 {
		return nil, fmt.Errorf("%w: frame of %d pages is too large", ErrInvalidOptions, opts.BatchPages)
	}

	used, err := usedPages(space)
	if err != nil {
		return nil, err
	}

	rc := resource.NewController(resource.Config{
		MaxWorkers:    int64(opts.Concurrency),
		IOBytesPerSec: opts.BytesPerSecond,
	})

	m := &Manifest{
		Version:     Version,
		ID:          uuid.New(),
		PageSize:    space.PageSize(),
		Refs:        space.Refs(),
		PageNums:    space.PageNums(),
		PageCount:   space.PageCount(),
		UsedPages:   used,
		Compression: opts.Compression,
		BatchPages:  opts.BatchPages,
		CreatedAt:   time.Now().UTC(),
	}

	bw := bufio.NewWriter(resource.NewRateLimitedWriter(ctx, w, rc))
	if err := writeManifest(bw, m); err != nil {
		return nil, err
	}

	batch := uint64(opts.BatchPages)
	window := uint64(opts.Concurrency) * batch
	for start := uint64(0); start < used; start += window {
		end := min(start+window, used)
		frames := make([][]byte, (end-start+batch-1)/batch)

		g, gctx := errgroup.WithContext(ctx)
		for i := range frames {
			first := start + uint64(i)*batch
			last := min(first+batch, end)
			g.Go(func() error {
				if err := rc.AcquireWorker(gctx); err != nil {
					return err
				}
				defer rc.ReleaseWorker()

				data, err := readPages(space, first, last)
				if err != nil {
					return err
				}
				frames[i], err = encodeFrame(data, opts.Compression)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for _, f := range frames {
			if _, err := bw.Write(f); err != nil {
				return nil, err
			}
		}
	}

	// An empty frame ends the stream.
	var end [frameHeaderSize]byte
	if _, err := bw.Write(end[:]); err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	return m, nil
}

// usedPages returns the number of pages handed out in space, or 0 for a
// blank space.
func usedPages(space paging.Space) (uint64, error) {
	p, err := space.Page(0)
	if err != nil {
		return 0, err
	}
	if page.KindOf(p) == page.KindNew {
		return 0, nil
	}
	rec, err := master.Open(space, 0)
	if err != nil {
		return 0, fmt.Errorf("snapshot: %w", err)
	}
	return rec.StoreTail(), nil
}

func readPages(space paging.Space, first, last uint64) ([]byte, error) {
	size := space.PageSize()
	data := make([]byte, 0, int(last-first)*size)
	for n := first; n < last; n++ {
		p, err := space.Page(n)
		if err != nil {
			return nil, err
		}
		data = append(data, p...)
	}
	return data, nil
}

// Import restores a snapshot from r into space. The snapshot must match the
// space's page size and codecs, and every page it covers must be zero.
// Page 0 is written last, so the store only becomes visible to openers
// once every other page is in place. Nothing else may use space until
// Import returns.
//
// Of the options only BytesPerSecond applies; the stream carries the rest.
func Import(ctx context.Context, r io.Reader, space paging.Space, optFns ...func(*Options)) (*Manifest, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BytesPerSecond > 0 {
		rc := resource.NewController(resource.Config{IOBytesPerSec: opts.BytesPerSecond})
		r = resource.NewRateLimitedReader(ctx, r, rc)
	}

	br := bufio.NewReader(r)
	m, err := ReadManifest(br)
	if err != nil {
		return nil, err
	}
	if err := m.compatible(space); err != nil {
		return nil, err
	}
	for n := uint64(0); n < m.UsedPages; n++ {
		p, err := space.Page(n)
		if err != nil {
			return nil, err
		}
		if !isZero(p) {
			return nil, fmt.Errorf("%w: page %d", ErrNotEmpty, n)
		}
	}

	var (
		head   [frameHeaderSize]byte
		next   uint64
		first  []byte // page 0, held back
		buf    []byte
		pageSz = m.PageSize
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(br, head[:]); err != nil {
			return nil, fmt.Errorf("%w: frame header: %w", ErrCorrupt, err)
		}
		h := readFrameHeader(head[:])
		if h.UncompressedSize == 0 {
			break
		}

		if h.UncompressedSize%uint32(pageSz) != 0 || h.UncompressedSize > uint32(m.BatchPages*pageSz) {
			return nil, fmt.Errorf("%w: frame of %d bytes", ErrCorrupt, h.UncompressedSize)
		}
		pages := uint64(h.UncompressedSize) / uint64(pageSz)
		if next+pages > m.UsedPages {
			return nil, fmt.Errorf("%w: frames exceed %d pages", ErrCorrupt, m.UsedPages)
		}

		stored := h.CompressedSize
		if stored == 0 {
			stored = h.UncompressedSize
		}
		if stored > h.UncompressedSize {
			return nil, fmt.Errorf("%w: frame payload of %d bytes", ErrCorrupt, stored)
		}
		payload := make([]byte, stored)
		if _, err := io.ReadFull(br, payload); err != nil {
			return nil, fmt.Errorf("%w: frame payload: %w", ErrCorrupt, err)
		}

		if cap(buf) < int(h.UncompressedSize) {
			buf = make([]byte, h.UncompressedSize)
		}
		data := buf[:h.UncompressedSize]
		if err := decodeFrame(h, payload, data, m.Compression); err != nil {
			return nil, err
		}

		for i := uint64(0); i < pages; i++ {
			src := data[int(i)*pageSz : int(i+1)*pageSz]
			n := next + i
			if n == 0 {
				first = append([]byte(nil), src...)
				continue
			}
			p, err := space.Page(n)
			if err != nil {
				return nil, err
			}
			copy(p, src)
		}
		next += pages
	}

	if next != m.UsedPages {
		return nil, fmt.Errorf("%w: %d of %d pages present", ErrCorrupt, next, m.UsedPages)
	}
	if first != nil {
		p, err := space.Page(0)
		if err != nil {
			return nil, err
		}
		copy(p[2:], first[2:])
		page.Magic(p).Store(binary.BigEndian.Uint16(first))
	}
	if err := space.Sync(); err != nil {
		return nil, err
	}
	return m, nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
