// Package snapshot copies a page space to and from a portable stream.
//
// A snapshot starts with an 8-byte magic, a little-endian u32 length and
// a CBOR manifest describing the page size, codecs and number of used
// pages. The pages follow in frames:
//
//	[uncompressedLen u32][compressedLen u32][crc32c u32][payload]
//
// A compressedLen of 0 marks a raw payload. An all-zero header ends the
// stream. Frames are compressed in parallel on export and verified
// against their CRC32C on import.
//
// Export and Import work on any io.Writer or io.Reader. Backup and
// Restore wrap them for a blobstore.BlobStore such as the local file
// system, S3 or MinIO:
//
//	store := blobstore.NewLocalStore("/var/backups")
//	m, err := snapshot.Backup(ctx, store, "nightly.snap", space,
//	    func(o *snapshot.Options) { o.Compression = snapshot.CompressionLZ4 })
//
// Import requires a zeroed target and writes page 0 last, so a
// concurrent opener never sees a partially restored store.
package snapshot
