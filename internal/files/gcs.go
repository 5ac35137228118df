package files

import (
	"context"
	"errors"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/documentspecflow/internal/gcp"
)

// GCSStore keeps files in a Cloud Storage bucket.
type GCSStore struct {
	bucket *storage.BucketHandle
	name   string
}

func NewGCSStore(client *storage.Client, bucket string) *GCSStore {
	return &GCSStore{bucket: client.Bucket(bucket), name: bucket}
}

func (s *GCSStore) Save(ctx context.Context, name, contentType string, data []byte) error {
	return gcp.SaveToGCSAtomically(ctx, s.bucket, name, contentType, data)
}

func (s *GCSStore) Open(ctx context.Context, name string) ([]byte, error) {
	data, err := gcp.ReadGCSObject(ctx, s.bucket, name)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}
