// Package blobstore provides the storage abstraction formula cache payloads
// are persisted to.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests and ephemeral engines
//   - LocalStore: a directory on the local file system
//   - s3.Store: Amazon S3 with multipart uploads for large blobs
//   - minio.Store: MinIO and other S3-compatible services
//
// # Custom Implementations
//
// Implement the BlobStore interface to support custom storage backends:
//
//	type BlobStore interface {
//	    Put(ctx, name, data) error           // Atomic write
//	    Get(ctx, name) ([]byte, error)       // Full read
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)  // Sorted names
//	}
//
// Missing blobs must be reported with an error matching ErrNotFound.
package blobstore
