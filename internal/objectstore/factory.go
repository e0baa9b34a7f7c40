package objectstore

import (
	"context"
	"fmt"

	"pv-go/internal/config"
	"pv-go/internal/pv"
)

// NewStoreFromConfig creates an ObjectStore implementation based on the store config type.
func NewStoreFromConfig(ctx context.Context, cfg config.StoreConfig, multipartThreshold int64) (pv.ObjectStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 store requires s3_bucket to be set")
		}
		return NewS3Store(ctx, S3Options{
			Bucket:             cfg.S3Bucket,
			Prefix:             cfg.S3Prefix,
			Region:             cfg.S3Region,
			Endpoint:           cfg.S3Endpoint,
			MultipartThreshold: multipartThreshold,
		})
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
