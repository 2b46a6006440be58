package documents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"stampdesk/stamp-studio/stamp-studio-backend/pkg/storage"
)

type StorageProvider struct {
	s3         storage.S3Client
	bucket     string
	presignTTL time.Duration
}

func NewStorageProvider(s3 storage.S3Client, bucket string, presignTTL time.Duration) *StorageProvider {
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	return &StorageProvider{s3: s3, bucket: bucket, presignTTL: presignTTL}
}

func (p *StorageProvider) Bucket() string {
	return p.bucket
}

func (p *StorageProvider) UploadPDF(ctx context.Context, key string, data []byte) error {
	return p.s3.Upload(ctx, p.bucket, key, "application/pdf", bytes.NewReader(data))
}

func (p *StorageProvider) Upload(ctx context.Context, key, contentType string, data []byte) error {
	return p.s3.Upload(ctx, p.bucket, key, contentType, bytes.NewReader(data))
}

func (p *StorageProvider) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return p.s3.Download(ctx, bucket, key)
}

func (p *StorageProvider) Delete(ctx context.Context, bucket, key string) error {
	return p.s3.Delete(ctx, bucket, key)
}

func (p *StorageProvider) PresignedURL(ctx context.Context, bucket, key string) (string, error) {
	return p.s3.GetPresignedURL(ctx, bucket, key, p.presignTTL)
}

// SignedKey is the object key of a produced document.
func (p *StorageProvider) SignedKey(id uuid.UUID, filename string) string {
	return fmt.Sprintf("signed/%s/%s", id, filename)
}
