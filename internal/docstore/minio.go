package docstore

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Minio reads objects from a MinIO server.
type Minio struct {
	client   *minio.Client
	maxBytes int64
}

func NewMinio(cfg config.DocStoreConfig) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}
	return &Minio{client: client, maxBytes: cfg.MaxBytes}, nil
}

func (m *Minio) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	name := objectName(bucket, key)
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyMinio(err, name)
	}
	defer obj.Close()

	// GetObject is lazy; Stat surfaces a missing object.
	if _, err := obj.Stat(); err != nil {
		return nil, classifyMinio(err, name)
	}
	return readLimited(obj, m.maxBytes, name)
}

// BucketExists reports whether bucket is reachable; used as a health probe.
func (m *Minio) BucketExists(ctx context.Context, bucket string) error {
	ok, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", bucket)
	}
	return nil
}

func classifyMinio(err error, name string) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return apperrors.Wrap(apperrors.ErrNotFound, err, "%s", name)
	}
	return apperrors.Wrap(apperrors.ErrFetch, err, "getting %s", name)
}
