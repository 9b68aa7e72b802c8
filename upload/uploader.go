package upload

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
	"github.com/imrenagi/go-signed-upload/storage"
	"github.com/rs/zerolog/log"
)

// Uploader transfers staged files to the object store.
type Uploader struct {
	fs    billy.Filesystem
	store storage.ObjectStore
}

func NewUploader(fs billy.Filesystem, store storage.ObjectStore) *Uploader {
	return &Uploader{
		fs:    fs,
		store: store,
	}
}

// Upload stores the staged file at path under its base name and returns that
// key. The caller must only pass files whose write has completed.
func (u *Uploader) Upload(ctx context.Context, path string) (string, error) {
	key := filepath.Base(path)

	fi, err := u.fs.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat staged file %s: %w", path, err)
	}

	f, err := u.fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open staged file %s: %w", path, err)
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return "", fmt.Errorf("failed to detect content type of %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind staged file %s: %w", path, err)
	}

	if err := u.store.PutObject(ctx, key, f, fi.Size(), mtype.String()); err != nil {
		return "", err
	}

	log.Ctx(ctx).Info().
		Str("key", key).
		Int64("file_size", fi.Size()).
		Str("content_type", mtype.String()).
		Msg("File Uploaded")
	return key, nil
}
