// Package storage persists project archives and thumbnails in object
// storage. Paths are namespaced by owner id; the gateway enforces
// ownership before any call reaches a BlobStore.
package storage

import "context"

// BlobStore is the archive object store. Delete treats a missing object
// as success so compensating cleanup stays idempotent.
type BlobStore interface {
	Upload(ctx context.Context, path, contentType string, body []byte) error
	Download(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}
