package archive

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
)

type gcsBucket struct {
	handle *gcs.BucketHandle
}

// NewGCSStorage returns an Archive on Google Cloud Storage. Credentials
// come from Application Default Credentials.
func NewGCSStorage(ctx context.Context, bucket, prefix string) (*Archive, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs storage: bucket is required")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &Archive{blobs: gcsBucket{handle: client.Bucket(bucket)}, prefix: prefix}, nil
}

func (b gcsBucket) write(ctx context.Context, key, contentType string, data []byte) error {
	w := b.handle.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close %s: %w", key, err)
	}
	return nil
}

func (b gcsBucket) read(ctx context.Context, key string) ([]byte, error) {
	r, err := b.handle.Object(key).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gcs read %s: %w", key, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}
