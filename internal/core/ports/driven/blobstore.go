package driven

import "context"

// BlobStore is the object storage every zone lives in.
// Implementations must be safe for concurrent use on distinct keys.
//
// Errors are reported with domain.ErrNotFound, domain.ErrAccessDenied or
// domain.ErrTransient so callers can classify them.
type BlobStore interface {
	// Get returns the content stored at key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores data at key, overwriting any existing object.
	Put(ctx context.Context, key string, data []byte) error

	// Copy duplicates src to dst. The destination is either fully written or absent.
	Copy(ctx context.Context, src, dst string) error

	// Delete removes key. Deleting a missing key returns domain.ErrNotFound.
	Delete(ctx context.Context, key string) error

	// List returns every key under prefix in lexicographic order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
}
