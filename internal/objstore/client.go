// Package objstore wraps the object store holding pipeline output
// documents behind a small read-only interface.
package objstore

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/framelabs/emosync/internal/config"
)

// Client is the read-only view of the object store the ingest pipeline
// consumes. Implementations must release every acquired read handle on
// all exit paths.
type Client interface {
	// ListKeys returns every object key in the bucket.
	ListKeys(ctx context.Context) ([]string, error)
	// ReadObject returns the full contents of one object.
	ReadObject(ctx context.Context, key string) ([]byte, error)
}

// MinioClient implements Client over a MinIO bucket.
type MinioClient struct {
	mc     *minio.Client
	bucket string
}

// NewMinioClient builds a MinioClient from object-store configuration.
func NewMinioClient(cfg config.ObjectStoreConfig) (*MinioClient, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinioClient{mc: mc, bucket: cfg.Bucket}, nil
}

// ListKeys lists the bucket recursively. A per-object listing error
// aborts the listing with that error.
func (c *MinioClient) ListKeys(ctx context.Context) ([]string, error) {
	var keys []string
	for obj := range c.mc.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// ReadObject fetches and fully buffers one object. The read handle is
// closed on every path.
func (c *MinioClient) ReadObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}
