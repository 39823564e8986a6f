package snapshot

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/hupe1980/pagetree/paging"
)

// Version is the snapshot format version written by Export.
const Version = 1

// magic opens every snapshot stream.
var magic = [8]byte{'P', 'G', 'T', 'S', 'N', 'A', 'P', 0}

// maxManifestSize bounds the manifest length read from a stream.
const maxManifestSize = 1 << 20

// Manifest describes a snapshot. It is stored CBOR-encoded after the magic.
type Manifest struct {
	Version     uint                `cbor:"1,keyasint"`
	ID          uuid.UUID           `cbor:"2,keyasint"`
	PageSize    int                 `cbor:"3,keyasint"`
	Refs        paging.RefCodec     `cbor:"4,keyasint"`
	PageNums    paging.PageNumCodec `cbor:"5,keyasint"`
	PageCount   uint64              `cbor:"6,keyasint"`
	UsedPages   uint64              `cbor:"7,keyasint"`
	Compression Compression         `cbor:"8,keyasint"`
	BatchPages  int                 `cbor:"9,keyasint"`
	CreatedAt   time.Time           `cbor:"10,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	encOpts := cbor.CoreDetEncOptions()
	encOpts.Time = cbor.TimeRFC3339Nano

	var err error
	if encMode, err = encOpts.EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(err)
	}
}

func writeManifest(w io.Writer, m *Manifest) error {
	data, err := encMode.Marshal(m)
	if err != nil {
		return fmt.Errorf("snapshot: encode manifest: %w", err)
	}

	head := make([]byte, len(magic)+4)
	copy(head, magic[:])
	binary.LittleEndian.PutUint32(head[len(magic):], uint32(len(data)))
	if _, err := w.Write(head); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadManifest reads the magic and manifest at the start of a snapshot
// stream, leaving r positioned at the first frame.
func ReadManifest(r io.Reader) (*Manifest, error) {
	head := make([]byte, len(magic)+4)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrCorrupt, err)
	}
	if [8]byte(head[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}

	n := binary.LittleEndian.Uint32(head[len(magic):])
	if n == 0 || n > maxManifestSize {
		return nil, fmt.Errorf("%w: manifest length %d", ErrCorrupt, n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("%w: read manifest: %w", ErrCorrupt, err)
	}

	var m Manifest
	if err := decMode.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %w", ErrCorrupt, err)
	}
	if m.Version != Version {
		return nil, fmt.Errorf("%w: version %d", ErrIncompatible, m.Version)
	}
	if m.PageSize <= 0 || m.BatchPages <= 0 || m.UsedPages > m.PageCount {
		return nil, fmt.Errorf("%w: manifest page size %d, batch %d, used %d of %d",
			ErrCorrupt, m.PageSize, m.BatchPages, m.UsedPages, m.PageCount)
	}
	return &m, nil
}

// compatible reports whether the snapshot can be restored into space.
func (m *Manifest) compatible(space paging.Space) error {
	switch {
	case m.PageSize != space.PageSize():
		return fmt.Errorf("%w: page size %d, space has %d", ErrIncompatible, m.PageSize, space.PageSize())
	case m.Refs != space.Refs():
		return fmt.Errorf("%w: %s snapshot, space uses %s", ErrIncompatible, m.Refs, space.Refs())
	case m.PageNums != space.PageNums():
		return fmt.Errorf("%w: %s snapshot, space uses %s", ErrIncompatible, m.PageNums, space.PageNums())
	case m.UsedPages > space.PageCount():
		return fmt.Errorf("%w: %d pages used, space has %d", ErrIncompatible, m.UsedPages, space.PageCount())
	case !space.Writable():
		return fmt.Errorf("%w: space is read-only", ErrIncompatible)
	}
	return nil
}
