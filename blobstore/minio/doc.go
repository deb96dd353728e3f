// Package minio stores cache payload blobs in MinIO or any other
// S3-compatible server (Ceph, Garage, SeaweedFS) through minio-go.
//
// Blob names are joined under a root prefix, so several engines can share a
// bucket:
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds: credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "payloads", "bitdb/")
//	db, _ := bitdb.New(bitdb.WithPayloadStore(store))
//	n, err := db.SaveCache(ctx)
//
// Missing objects are reported as blobstore.ErrNotFound. Delete of a missing
// object succeeds.
package minio
