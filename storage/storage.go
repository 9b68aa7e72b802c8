// Package storage abstracts the remote object store the uploader hands files to.
//
// A store is created once per process and shared by every request; all
// implementations are safe for concurrent use.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ObjectStore is the capability the upload pipeline needs from a remote store.
type ObjectStore interface {
	// PutObject stores size bytes from r under key with a private access policy.
	PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// SignedURL returns a retrieval URL for key that stays valid for expiry.
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Error represents a store operation error with context about the object involved.
type Error struct {
	// Op is the operation that failed (e.g. "put", "sign")
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *Error) Error() string {
	if e.Bucket != "" && e.Key != "" {
		return fmt.Sprintf("storage.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Key != "" {
		return fmt.Sprintf("storage.%s object %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage.%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewObjectError creates a new Error with bucket and key context.
func NewObjectError(op, bucket, key string, err error) *Error {
	return &Error{
		Op:     op,
		Bucket: bucket,
		Key:    key,
		Err:    err,
	}
}

var (
	// ErrObjectNotFound indicates that the requested object does not exist
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidSignature indicates a signed URL that was tampered with or is not ours
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrURLExpired indicates a signed URL used after its expiry
	ErrURLExpired = errors.New("signed url expired")
)

// IsObjectNotFound checks if an error indicates that an object was not found.
func IsObjectNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}
