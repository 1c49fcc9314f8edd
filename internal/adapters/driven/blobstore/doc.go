// Package blobstore holds the driven.BlobStore adapters.
//
//   - memory: map-backed store for tests and dry runs
//   - filesystem: a local directory, keys map to relative paths
//   - s3: Amazon S3 or any S3-compatible endpoint
//   - guard: decorator applying per-call timeouts and a rate limit
//
// Every adapter reports a missing key as domain.ErrNotFound and lists keys in
// lexicographic order.
package blobstore
