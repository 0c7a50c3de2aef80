package data

import (
	"context"

	"github.com/lk2023060901/transmute-backend/internal/pkg/minio"
)

// ObjectUploader is the slice of the MinIO client the mirror needs.
type ObjectUploader interface {
	FPutObject(ctx context.Context, filePath, contentType string) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, filePath string) error
}

// ObjectMirror copies converted artifacts into the object store.
type ObjectMirror struct {
	client ObjectUploader
}

func NewObjectMirror(client ObjectUploader) *ObjectMirror {
	return &ObjectMirror{client: client}
}

func (m *ObjectMirror) Publish(ctx context.Context, path, contentType string) error {
	_, err := m.client.FPutObject(ctx, path, contentType)
	return err
}

func (m *ObjectMirror) Remove(ctx context.Context, path string) error {
	return m.client.RemoveObject(ctx, path)
}
