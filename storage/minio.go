package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioAPI is the subset of *minio.Client used by Minio.
type MinioAPI interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

var _ MinioAPI = (*minio.Client)(nil)

type MinioOptions struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool
}

// Minio stores objects on a MinIO (or any S3-compatible) server.
type Minio struct {
	bucket string
	client MinioAPI
}

func NewMinio(o MinioOptions) (*Minio, error) {
	if o.Bucket == "" {
		return nil, errors.New("minio bucket name is required")
	}
	client, err := minio.New(o.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(o.AccessKeyID, o.SecretAccessKey, ""),
		Secure: o.UseSSL,
		Region: o.Region,
	})
	if err != nil {
		return nil, &Error{Op: "init", Bucket: o.Bucket, Err: err}
	}
	return NewMinioWithClient(o.Bucket, client), nil
}

func NewMinioWithClient(bucket string, client MinioAPI) *Minio {
	return &Minio{
		bucket: bucket,
		client: client,
	}
}

func (m *Minio) PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"x-amz-acl": "private"},
	})
	if err != nil {
		return NewObjectError("put", m.bucket, key, err)
	}
	return nil
}

func (m *Minio) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", NewObjectError("sign", m.bucket, key, err)
	}
	return u.String(), nil
}
