package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the AWS SDK S3 client used by S3.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Presigner is the subset of s3.PresignClient used by S3.
type S3Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var (
	_ S3API       = (*s3.Client)(nil)
	_ S3Presigner = (*s3.PresignClient)(nil)
)

type S3Options struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint points the client at an S3-compatible service.
	Endpoint       string
	ForcePathStyle bool
}

// S3 stores objects in a single Amazon S3 bucket.
type S3 struct {
	bucket    string
	client    S3API
	presigner S3Presigner
}

// NewS3 builds an S3 store from static credentials. The SDK's own retry
// policy is left at its default.
func NewS3(ctx context.Context, o S3Options) (*S3, error) {
	if o.Bucket == "" {
		return nil, errors.New("s3 bucket name is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(o.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, &Error{Op: "init", Bucket: o.Bucket, Err: err}
	}

	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.Endpoint)
		}
		so.UsePathStyle = o.ForcePathStyle
	})

	return NewS3WithClient(o.Bucket, client, s3.NewPresignClient(client)), nil
}

// NewS3WithClient creates an S3 store around custom SDK implementations.
func NewS3WithClient(bucket string, client S3API, presigner S3Presigner) *S3 {
	return &S3{
		bucket:    bucket,
		client:    client,
		presigner: presigner,
	}
}

func (s *S3) PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
		ACL:           types.ObjectCannedACLPrivate,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return NewObjectError("put", s.bucket, key, err)
	}
	return nil
}

func (s *S3) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", NewObjectError("sign", s.bucket, key, err)
	}
	return req.URL, nil
}
