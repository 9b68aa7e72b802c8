package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/imrenagi/go-signed-upload/storage"
)

// SignedURLExpiry is how long every issued URL stays valid.
const SignedURLExpiry = 3600 * time.Second

// Issuer hands out time-limited retrieval URLs for stored objects.
type Issuer struct {
	store storage.ObjectStore
}

func NewIssuer(store storage.ObjectStore) *Issuer {
	return &Issuer{store: store}
}

func (i *Issuer) Issue(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrMissingFilename
	}
	url, err := i.store.SignedURL(ctx, key, SignedURLExpiry)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return url, nil
}
