package cas

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"unsafe"
)

var hostBigEndian = binary.NativeEndian.Uint16([]byte{0x00, 0x01}) == 0x0001

// be32 converts between host order and big-endian. It is its own inverse.
func be32(v uint32) uint32 {
	if hostBigEndian {
		return v
	}
	return bits.ReverseBytes32(v)
}

func be64(v uint64) uint64 {
	if hostBigEndian {
		return v
	}
	return bits.ReverseBytes64(v)
}

func word32(page []byte, off int) *uint32 {
	b := page[off : off+4 : off+4]
	p := unsafe.Pointer(&b[0])
	if uintptr(p)&3 != 0 {
		panic(fmt.Sprintf("cas: unaligned 32-bit field at offset %d", off))
	}
	return (*uint32)(p)
}

func word64(page []byte, off int) *uint64 {
	b := page[off : off+8 : off+8]
	p := unsafe.Pointer(&b[0])
	if uintptr(p)&7 != 0 {
		panic(fmt.Sprintf("cas: unaligned 64-bit field at offset %d", off))
	}
	return (*uint64)(p)
}
