// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("backups/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	_, err = db.Backup(ctx, store, "nightly.snap")
//
// # Features
//
//   - Range reads for partial fetches
//   - Streaming multipart uploads for large snapshots
//   - CRC32C checksums on upload
//   - Configurable prefix for multi-tenant isolation
package s3
