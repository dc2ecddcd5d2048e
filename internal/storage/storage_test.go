package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tasktrack/apiserver/config"
)

type memoryBackend struct {
	ensured bool
	objects map[string][]byte
	types   map[string]string
	err     error
}

func (b *memoryBackend) EnsureBucket(context.Context) error {
	b.ensured = true
	return b.err
}

func (b *memoryBackend) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if b.objects == nil {
		b.objects = map[string][]byte{}
		b.types = map[string]string{}
	}
	b.objects[key] = data
	b.types[key] = contentType
	return nil
}

func (b *memoryBackend) Bucket() string { return "exports" }

func TestStoragePut(t *testing.T) {
	backend := &memoryBackend{}
	s := NewStorage(backend)

	require.NoError(t, s.EnsureBucket(context.Background()))
	require.True(t, backend.ensured)

	body := []byte(`[]`)
	require.NoError(t, s.Put(context.Background(), "exports/u/1.json", bytes.NewReader(body), int64(len(body)), "application/json"))
	require.Equal(t, body, backend.objects["exports/u/1.json"])
	require.Equal(t, "application/json", backend.types["exports/u/1.json"])
	require.Equal(t, "exports", s.Bucket())

	require.Error(t, s.Put(context.Background(), "", bytes.NewReader(body), 2, ""))
}

func TestStorageEnsureBucketError(t *testing.T) {
	s := NewStorage(&memoryBackend{err: errors.New("denied")})
	require.EqualError(t, s.EnsureBucket(context.Background()), "denied")
}

func TestOpenValidatesConfig(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, config.StorageConfig{})
	require.Error(t, err)

	_, err = Open(ctx, config.StorageConfig{Backend: "s3"})
	require.ErrorContains(t, err, "unsupported")

	_, err = Open(ctx, config.StorageConfig{Backend: config.StorageBackendMinio})
	require.ErrorContains(t, err, "minio endpoint is required")

	_, err = Open(ctx, config.StorageConfig{
		Backend: config.StorageBackendMinio,
		Minio:   config.MinioConfig{Endpoint: "localhost:9000", Bucket: "b"},
	})
	require.ErrorContains(t, err, "access key")

	_, err = Open(ctx, config.StorageConfig{Backend: config.StorageBackendGCS})
	require.ErrorContains(t, err, "gcs bucket is required")
}
