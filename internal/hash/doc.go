// Package hash provides the CRC32-Castagnoli (CRC32C) checksums used by
// snapshot frames and S3 uploads.
//
//	checksum := hash.CRC32C(data)
//	header := hash.CRC32CBase64(data) // x-amz-checksum-crc32c
package hash
