package hash

import (
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the CRC32-Castagnoli checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// CRC32CBase64 returns the big-endian checksum encoded as standard base64,
// the form S3 expects in x-amz-checksum-crc32c.
func CRC32CBase64(data []byte) string {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], CRC32C(data))
	return base64.StdEncoding.EncodeToString(buf[:])
}
