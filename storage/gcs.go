package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	gcs "cloud.google.com/go/storage"
)

// GCS stores objects in a Google Cloud Storage bucket. Credentials come from
// the environment (Application Default Credentials).
type GCS struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
}

func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, &Error{Op: "init", Bucket: bucket, Err: err}
	}
	return &GCS{
		client: client,
		bucket: client.Bucket(bucket),
	}, nil
}

func (g *GCS) PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	// cancelling the writer's context is the only way to abort an upload
	// without committing a partial object
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objW := g.bucket.Object(key).NewWriter(ctx)
	objW.PredefinedACL = "private"
	objW.ContentType = contentType

	if _, err := io.Copy(objW, r); err != nil {
		cancel()
		_ = objW.Close()
		return NewObjectError("put", g.bucket.BucketName(), key, err)
	}
	if err := objW.Close(); err != nil {
		return NewObjectError("put", g.bucket.BucketName(), key, err)
	}
	return nil
}

func (g *GCS) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := g.bucket.SignedURL(key, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(expiry),
	})
	if err != nil {
		return "", NewObjectError("sign", g.bucket.BucketName(), key, err)
	}
	return u, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
