// Package storage provides the object store used for source radiographs
// and oversized inference results. Objects are opaque byte blobs addressed
// by a slash-separated path inside one bucket.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/tbourn/dental-gateway/internal/config"
)

var (
	// ErrObjectExists is returned by Put with noOverwrite when the path is taken.
	ErrObjectExists = errors.New("object already exists")
	// ErrObjectNotFound is returned by Get for a missing path.
	ErrObjectNotFound = errors.New("object not found")
)

// Store is a single bucket.
type Store interface {
	// Put writes data at path. With noOverwrite an existing object is left
	// untouched and ErrObjectExists is returned.
	Put(ctx context.Context, path string, data []byte, contentType string, noOverwrite bool) error
	Get(ctx context.Context, path string) ([]byte, error)
	// Delete removes path. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error
	// Ping checks that the bucket is reachable.
	Ping(ctx context.Context) error
}

// Buckets groups the two stores the gateway talks to.
type Buckets struct {
	Images  Store
	Results Store
}

// Open builds the image and result stores selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Buckets, error) {
	switch cfg.Driver {
	case "memory", "":
		return Buckets{Images: NewMemory(), Results: NewMemory()}, nil
	case "s3":
		client, err := NewS3Client(ctx, cfg)
		if err != nil {
			return Buckets{}, err
		}
		return Buckets{
			Images:  NewS3Store(client, cfg.ImageBucket),
			Results: NewS3Store(client, cfg.ResultBucket),
		}, nil
	default:
		return Buckets{}, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
