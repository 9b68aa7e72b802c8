package storage_test

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/imrenagi/go-signed-upload/storage"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	if params.Body != nil {
		f.body, _ = io.ReadAll(params.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

type fakePresigner struct {
	input   *s3.GetObjectInput
	expires time.Duration
	err     error
}

func (f *fakePresigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.input = params
	var o s3.PresignOptions
	for _, fn := range optFns {
		fn(&o)
	}
	f.expires = o.Expires
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{
		URL:    "https://bucket.s3.amazonaws.com/" + *params.Key + "?X-Amz-Expires=" + strconv.Itoa(int(o.Expires.Seconds())),
		Method: "GET",
	}, nil
}

func TestS3(t *testing.T) {
	t.Run("objects are put into the configured bucket under a private ACL", func(t *testing.T) {
		api := &fakeS3{}
		store := NewS3WithClient("bucket-name", api, &fakePresigner{})

		err := store.PutObject(context.Background(), "report.pdf", strings.NewReader("hello"), 5, "application/pdf")
		require.NoError(t, err)

		assert.Equal(t, "bucket-name", *api.input.Bucket)
		assert.Equal(t, "report.pdf", *api.input.Key)
		assert.Equal(t, types.ObjectCannedACLPrivate, api.input.ACL)
		assert.Equal(t, int64(5), *api.input.ContentLength)
		assert.Equal(t, "application/pdf", *api.input.ContentType)
		assert.Equal(t, []byte("hello"), api.body)
	})

	t.Run("put failures carry the operation, bucket and key", func(t *testing.T) {
		cause := errors.New("AccessDenied")
		store := NewS3WithClient("bucket-name", &fakeS3{err: cause}, &fakePresigner{})

		err := store.PutObject(context.Background(), "a.txt", strings.NewReader("x"), 1, "")
		require.Error(t, err)
		assert.ErrorIs(t, err, cause)

		var serr *Error
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "put", serr.Op)
		assert.Equal(t, "a.txt", serr.Key)
		assert.Contains(t, err.Error(), "AccessDenied")
	})

	t.Run("signed urls are requested with the given expiry", func(t *testing.T) {
		presigner := &fakePresigner{}
		store := NewS3WithClient("bucket-name", &fakeS3{}, presigner)

		u, err := store.SignedURL(context.Background(), "a.txt", time.Hour)
		require.NoError(t, err)

		assert.Equal(t, time.Hour, presigner.expires)
		assert.Equal(t, "a.txt", *presigner.input.Key)
		assert.Equal(t, "bucket-name", *presigner.input.Bucket)
		assert.Contains(t, u, "X-Amz-Expires=3600")
	})

	t.Run("signing failures are wrapped", func(t *testing.T) {
		store := NewS3WithClient("bucket-name", &fakeS3{}, &fakePresigner{err: errors.New("no credentials")})

		_, err := store.SignedURL(context.Background(), "a.txt", time.Hour)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no credentials")
	})
}

type fakeMinio struct {
	bucket  string
	key     string
	opts    minio.PutObjectOptions
	expires time.Duration
}

func (f *fakeMinio) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.bucket, f.key, f.opts = bucketName, objectName, opts
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: objectSize}, nil
}

func (f *fakeMinio) PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error) {
	f.expires = expires
	return url.Parse("http://localhost:9000/" + bucketName + "/" + objectName + "?X-Amz-Expires=3600")
}

func TestMinio(t *testing.T) {
	api := &fakeMinio{}
	store := NewMinioWithClient("uploads", api)

	require.NoError(t, store.PutObject(context.Background(), "a.txt", strings.NewReader("x"), 1, "text/plain"))
	assert.Equal(t, "uploads", api.bucket)
	assert.Equal(t, "a.txt", api.key)
	assert.Equal(t, "text/plain", api.opts.ContentType)
	assert.Equal(t, "private", api.opts.UserMetadata["x-amz-acl"])

	u, err := store.SignedURL(context.Background(), "a.txt", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, api.expires)
	assert.Equal(t, "http://localhost:9000/uploads/a.txt?X-Amz-Expires=3600", u)
}

func TestMemory(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("a signed url can be followed back to the stored bytes", func(t *testing.T) {
		store := NewMemory("bucket-name", WithClock(clock))
		require.NoError(t, store.PutObject(context.Background(), "a.txt", strings.NewReader("hello"), 5, "text/plain"))

		u, err := store.SignedURL(context.Background(), "a.txt", time.Hour)
		require.NoError(t, err)

		data, err := store.Fetch(u)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), data)

		obj, ok := store.Get("a.txt")
		require.True(t, ok)
		assert.Equal(t, "private", obj.ACL)
	})

	t.Run("signing a missing object fails with ErrObjectNotFound", func(t *testing.T) {
		store := NewMemory("bucket-name")
		_, err := store.SignedURL(context.Background(), "missing.txt", time.Hour)
		assert.True(t, IsObjectNotFound(err))
	})

	t.Run("signed urls expire after the requested window", func(t *testing.T) {
		current := now
		store := NewMemory("bucket-name", WithClock(func() time.Time { return current }))
		require.NoError(t, store.PutObject(context.Background(), "a.txt", strings.NewReader("x"), 1, ""))

		u, err := store.SignedURL(context.Background(), "a.txt", time.Hour)
		require.NoError(t, err)

		current = now.Add(time.Hour)
		_, err = store.Fetch(u)
		assert.NoError(t, err)

		current = now.Add(time.Hour + time.Second)
		_, err = store.Fetch(u)
		assert.ErrorIs(t, err, ErrURLExpired)
	})

	t.Run("tampered urls are rejected", func(t *testing.T) {
		store := NewMemory("bucket-name", WithClock(clock))
		require.NoError(t, store.PutObject(context.Background(), "a.txt", strings.NewReader("x"), 1, ""))
		require.NoError(t, store.PutObject(context.Background(), "b.txt", strings.NewReader("y"), 1, ""))

		u, err := store.SignedURL(context.Background(), "a.txt", time.Hour)
		require.NoError(t, err)

		_, err = store.Fetch(strings.Replace(u, "/a.txt", "/b.txt", 1))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("a body shorter than the declared size is rejected", func(t *testing.T) {
		store := NewMemory("bucket-name")
		err := store.PutObject(context.Background(), "a.txt", strings.NewReader("abc"), 10, "")
		assert.Error(t, err)
		assert.Equal(t, 0, store.Len())
	})
}
