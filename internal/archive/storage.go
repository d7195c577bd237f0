// Package archive exports frozen report documents to object storage.
package archive

import (
	"context"
	"errors"
)

// Common errors for object store operations.
var (
	ErrObjectNotFound = errors.New("archive: object not found")
	ErrUploadFailed   = errors.New("archive: upload failed")
	ErrDownloadFailed = errors.New("archive: download failed")
	ErrDeleteFailed   = errors.New("archive: delete failed")
)

// ObjectStore abstracts the archive backend. Implementations include
// S3 and the local filesystem for development and tests.
type ObjectStore interface {
	// Put writes an object, replacing any existing one at the path.
	Put(ctx context.Context, objectPath string, data []byte) error

	// Get reads an object. Returns ErrObjectNotFound when absent.
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Exists checks whether an object exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// Delete removes an object. Deleting a missing object is not an
	// error.
	Delete(ctx context.Context, objectPath string) error

	// List returns all object paths under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
