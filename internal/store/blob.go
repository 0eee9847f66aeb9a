package store

import (
	"context"
	"io"
	"time"
)

// UploadResult describes a stored blob.
type UploadResult struct {
	URL  string // public retrieval URL
	Name string // generated file name
	Path string // folder-qualified object path
}

// BlobInfo is metadata for a stored object.
type BlobInfo struct {
	Name      string
	Path      string
	Size      int64
	UpdatedAt time.Time
}

// BlobStore is the hosted object storage boundary. Uploaded files get
// generated names of the form <epoch-ms>_<random-suffix>.<ext> to avoid
// collisions.
type BlobStore interface {
	// Upload stores the blob under folder and returns its public location.
	Upload(ctx context.Context, r io.Reader, folder, origName, contentType string) (UploadResult, error)
	// Delete removes the object at path.
	Delete(ctx context.Context, path string) error
	// List returns metadata for objects under folder.
	List(ctx context.Context, folder string) ([]BlobInfo, error)
	// PublicURL returns the public retrieval URL for an object path.
	PublicURL(path string) string
}
