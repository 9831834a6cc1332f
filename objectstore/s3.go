package objectstore

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// S3Config configures the MinIO-client-backed backend, shared by the S3 and
// GCS variants (GCS's XML API is S3-interoperable and reachable through the
// same client against a different endpoint).
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

// S3Backend stores objects in an S3-compatible bucket via minio-go.
type S3Backend struct {
	client *minio.Client
	cfg    S3Config
	log    *logrus.Logger
	retry  RetryConfig
}

// NewS3Backend dials an S3-compatible endpoint.
func NewS3Backend(cfg S3Config) (*S3Backend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return &S3Backend{client: client, cfg: cfg, log: logrus.New(), retry: DefaultRetryConfig()}, nil
}

func (b *S3Backend) key(key string) string { return b.cfg.Prefix + key }

func (b *S3Backend) Put(ctx context.Context, key string, data []byte, metadata map[string]string) (Object, error) {
	var info minio.UploadInfo
	err := WithRetry(ctx, b.retry, func() error {
		var err error
		info, err = b.client.PutObject(ctx, b.cfg.Bucket, b.key(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType:  metadata["content-type"],
			UserMetadata: metadata,
		})
		return err
	})
	if err != nil {
		b.log.WithError(err).WithField("key", key).Warn("objectstore: s3 put failed")
		return Object{}, err
	}
	return Object{Key: key, Size: info.Size, ETag: info.ETag, LastModified: info.LastModified, Metadata: metadata}, nil
}

func (b *S3Backend) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := WithRetry(ctx, b.retry, func() error {
		obj, err := b.client.GetObject(ctx, b.cfg.Bucket, b.key(key), minio.GetObjectOptions{})
		if err != nil {
			return err
		}
		defer obj.Close()
		data, err = io.ReadAll(obj)
		return err
	})
	return data, err
}

func (b *S3Backend) GetStream(ctx context.Context, key string) (io.ReadCloser, error) {
	return b.client.GetObject(ctx, b.cfg.Bucket, b.key(key), minio.GetObjectOptions{})
}

func (b *S3Backend) Delete(ctx context.Context, key string) error {
	return WithRetry(ctx, b.retry, func() error {
		return b.client.RemoveObject(ctx, b.cfg.Bucket, b.key(key), minio.RemoveObjectOptions{})
	})
}

func (b *S3Backend) Exists(ctx context.Context, key string) bool {
	_, err := b.client.StatObject(ctx, b.cfg.Bucket, b.key(key), minio.StatObjectOptions{})
	return err == nil
}

func (b *S3Backend) List(ctx context.Context, prefix string, limit int) ([]Object, error) {
	var out []Object
	for obj := range b.client.ListObjects(ctx, b.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    b.key(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		out = append(out, Object{Key: obj.Key, Size: obj.Size, ETag: obj.ETag, LastModified: obj.LastModified})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (b *S3Backend) Head(ctx context.Context, key string) (Object, error) {
	info, err := b.client.StatObject(ctx, b.cfg.Bucket, b.key(key), minio.StatObjectOptions{})
	if err != nil {
		return Object{}, err
	}
	return Object{Key: key, Size: info.Size, ETag: info.ETag, LastModified: info.LastModified, ContentType: info.ContentType}, nil
}

func (b *S3Backend) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := b.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: b.cfg.Bucket, Object: b.key(dstKey)},
		minio.CopySrcOptions{Bucket: b.cfg.Bucket, Object: b.key(srcKey)},
	)
	return err
}

// NewGCSBackend dials Google Cloud Storage's S3-interoperability XML API
// through the same minio client.
func NewGCSBackend(cfg S3Config) (*S3Backend, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "storage.googleapis.com"
	}
	cfg.UseSSL = true
	return NewS3Backend(cfg)
}
