package storage

import (
	"context"
	"fmt"

	"github.com/imrenagi/go-signed-upload/config"
)

// Open builds the store selected by cfg.Backend. It is called once per
// process; the returned store is shared by all requests.
func Open(ctx context.Context, cfg config.StoreConfig) (ObjectStore, error) {
	switch cfg.Backend {
	case config.StoreS3:
		s, err := NewS3(ctx, S3Options{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Endpoint:        cfg.S3.Endpoint,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreGCS:
		g, err := NewGCS(ctx, cfg.GCS.Bucket)
		if err != nil {
			return nil, err
		}
		return g, nil
	case config.StoreMinio:
		m, err := NewMinio(MinioOptions{
			Endpoint:        cfg.Minio.Endpoint,
			Bucket:          cfg.Minio.Bucket,
			AccessKeyID:     cfg.Minio.AccessKeyID,
			SecretAccessKey: cfg.Minio.SecretAccessKey,
			Region:          cfg.Minio.Region,
			UseSSL:          cfg.Minio.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	case config.StoreMemory:
		return NewMemory("memory"), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
