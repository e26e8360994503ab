package storage

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/novaangola/apiserver/config"
)

const minioNoSuchKey = "NoSuchKey"

// MinioClient stores evidence images in an S3-compatible bucket.
type MinioClient struct {
	client *minio.Client
	bucket string
}

// NewMinioClient connects to the endpoint named in cfg.
func NewMinioClient(cfg config.MinioConfig) (*MinioClient, error) {
	if err := requireSettings("minio",
		setting{"MINIO_ENDPOINT", cfg.Endpoint},
		setting{"MINIO_ACCESS_KEY", cfg.AccessKey},
		setting{"MINIO_SECRET_KEY", cfg.SecretKey},
		setting{"MINIO_BUCKET", cfg.Bucket},
	); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinioClient{client: client, bucket: cfg.Bucket}, nil
}

func (m *MinioClient) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil || exists {
		return err
	}
	return m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
}

func (m *MinioClient) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: evidenceCacheControl,
	})
	return err
}

// Get stats the object before returning it because GetObject is lazy and
// would otherwise only report a missing key on the first Read.
func (m *MinioClient) Get(ctx context.Context, key string) (*Object, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.translate(err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, m.translate(err)
	}
	return &Object{ReadCloser: obj, Size: info.Size, ContentType: info.ContentType}, nil
}

func (m *MinioClient) Delete(ctx context.Context, key string) error {
	return m.translate(m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}))
}

func (m *MinioClient) Bucket() string {
	return m.bucket
}

func (m *MinioClient) translate(err error) error {
	if err != nil && minio.ToErrorResponse(err).Code == minioNoSuchKey {
		return ErrObjectNotFound
	}
	return err
}
