package artifacts

import (
	"context"
	"fmt"

	"github.com/josephblackelite/spur-protocol/pkg/config"
)

// StoreType names an artifact storage backend.
type StoreType string

const (
	StoreTypeFS  StoreType = "fs"
	StoreTypeS3  StoreType = "s3"
	StoreTypeGCS StoreType = "gcs"
)

// NewStore builds the backend selected by cfg.ArtifactStore.
func NewStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch StoreType(cfg.ArtifactStore) {
	case "", StoreTypeFS:
		return NewFileStore(cfg.ArtifactDir)
	case StoreTypeS3:
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
			Prefix:   "plans/",
		})
	case StoreTypeGCS:
		return newGCSStore(ctx, cfg.GCSBucket)
	default:
		return nil, fmt.Errorf("unsupported artifact store: %s", cfg.ArtifactStore)
	}
}
