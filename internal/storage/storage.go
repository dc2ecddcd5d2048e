// Package storage uploads task exports to an object store.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/tasktrack/apiserver/config"
)

// ObjectStorage defines the object operations the exporter needs from a
// backend.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Bucket() string
}

// Storage wraps an ObjectStorage backend with a stable API.
type Storage struct {
	backend ObjectStorage
}

// NewStorage constructs a Storage wrapper for the provided backend.
func NewStorage(backend ObjectStorage) *Storage {
	return &Storage{backend: backend}
}

// Open builds the backend selected by cfg.Backend and makes sure its bucket
// exists.
func Open(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch cfg.Backend {
	case config.StorageBackendMinio:
		backend, err = NewMinioClient(cfg.Minio)
	case config.StorageBackendGCS:
		backend, err = NewGCSClient(ctx, cfg.GCS)
	case "":
		return nil, fmt.Errorf("storage backend is not configured")
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Backend, err)
	}

	s := NewStorage(backend)
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", s.Bucket(), err)
	}
	return s, nil
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put uploads an object to the configured bucket.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if key == "" {
		return fmt.Errorf("object key is required")
	}
	return s.backend.Put(ctx, key, r, size, contentType)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}
