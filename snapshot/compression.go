package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/pagetree/internal/hash"
)

// Compression selects how page frames are compressed.
type Compression uint8

const (
	// CompressionNone stores frames as is.
	CompressionNone Compression = 0
	// CompressionSnappy favors speed.
	CompressionSnappy Compression = 1
	// CompressionLZ4 is fast with a slightly better ratio than Snappy.
	CompressionLZ4 Compression = 2
	// CompressionZstd gives the best ratio.
	CompressionZstd Compression = 3
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression parses a compression name as printed by String.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CompressionNone, nil
	case "snappy":
		return CompressionSnappy, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("%w: unknown compression %q", ErrInvalidOptions, s)
	}
}

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// frameHeaderSize is [uncompressedLen:u32][compressedLen:u32][crc32c:u32].
// A compressedLen of 0 means the data is stored uncompressed.
const frameHeaderSize = 12

type frameHeader struct {
	UncompressedSize uint32
	CompressedSize   uint32
	Checksum         uint32
}

func (h frameHeader) put(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], h.UncompressedSize)
	binary.LittleEndian.PutUint32(b[4:], h.CompressedSize)
	binary.LittleEndian.PutUint32(b[8:], h.Checksum)
}

func readFrameHeader(b []byte) frameHeader {
	return frameHeader{
		UncompressedSize: binary.LittleEndian.Uint32(b[0:]),
		CompressedSize:   binary.LittleEndian.Uint32(b[4:]),
		Checksum:         binary.LittleEndian.Uint32(b[8:]),
	}
}

// encodeFrame returns header plus payload for data. Data that does not
// shrink by at least 10% is stored uncompressed.
func encodeFrame(data []byte, c Compression) ([]byte, error) {
	var (
		compressed []byte
		err        error
	)
	switch c {
	case CompressionNone:
	case CompressionSnappy:
		compressed = snappy.Encode(nil, data)
	case CompressionLZ4:
		compressed, err = compressLZ4(data)
	case CompressionZstd:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidOptions, c)
	}
	if err != nil {
		return nil, err
	}

	h := frameHeader{
		UncompressedSize: uint32(len(data)),
		Checksum:         hash.CRC32C(data),
	}
	payload := data
	if len(compressed) > 0 && float64(len(compressed)) <= float64(len(data))*0.9 {
		h.CompressedSize = uint32(len(compressed))
		payload = compressed
	}

	out := make([]byte, frameHeaderSize+len(payload))
	h.put(out)
	copy(out[frameHeaderSize:], payload)
	return out, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	compressed := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // Incompressible
	}
	return compressed[:n], nil
}

// decodeFrame restores a frame payload into dst, which must be exactly
// h.UncompressedSize bytes, and verifies the checksum.
func decodeFrame(h frameHeader, payload, dst []byte, c Compression) error {
	if len(dst) != int(h.UncompressedSize) {
		return fmt.Errorf("%w: frame holds %d bytes, want %d", ErrCorrupt, h.UncompressedSize, len(dst))
	}

	if h.CompressedSize == 0 {
		copy(dst, payload)
	} else {
		switch c {
		case CompressionSnappy:
			n, err := snappy.DecodedLen(payload)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrCorrupt, err)
			}
			if n != len(dst) {
				return errors.Join(ErrCorrupt, errSizeMismatch)
			}
			if _, err := snappy.Decode(dst, payload); err != nil {
				return fmt.Errorf("%w: %w", ErrCorrupt, err)
			}
		case CompressionLZ4:
			n, err := lz4.UncompressBlock(payload, dst)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrCorrupt, err)
			}
			if n != len(dst) {
				return errors.Join(ErrCorrupt, errSizeMismatch)
			}
		case CompressionZstd:
			dec := getZstdDecoder()
			decoded, err := dec.DecodeAll(payload, dst[:0])
			zstdDecoderPool.Put(dec)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrCorrupt, err)
			}
			if len(decoded) != len(dst) {
				return errors.Join(ErrCorrupt, errSizeMismatch)
			}
			copy(dst, decoded)
		default:
			return fmt.Errorf("%w: compressed frame in a %s snapshot", ErrCorrupt, c)
		}
	}

	if sum := hash.CRC32C(dst); sum != h.Checksum {
		return fmt.Errorf("%w: checksum %08x, want %08x", ErrCorrupt, sum, h.Checksum)
	}
	return nil
}

var errSizeMismatch = errors.New("decompressed size mismatch")
