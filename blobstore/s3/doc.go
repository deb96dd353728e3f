// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("bitdb/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	engine := bitdb.New(bitdb.WithPayloadStore(store))
//
// # Features
//
//   - Multipart uploads for large payloads
//   - CRC32C integrity validation
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
