package service

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type StorageService struct {
	client *storage.Client
}

func NewStorageService(ctx context.Context, opts ...option.ClientOption) (*StorageService, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &StorageService{client: client}, nil
}

func (s *StorageService) Close() error {
	return s.client.Close()
}

// UploadObject writes data as a single object put. GCS guarantees the object
// is either absent or fully written, so a failed upload leaves nothing to
// clean up.
func (s *StorageService) UploadObject(ctx context.Context, bucket, objectPath, contentType string, data []byte) error {
	w := s.client.Bucket(bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("%w: writing gs://%s/%s: %v", ErrUpload, bucket, objectPath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: finalizing gs://%s/%s: %v", ErrUpload, bucket, objectPath, err)
	}
	return nil
}
