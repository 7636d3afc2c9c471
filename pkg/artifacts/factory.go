package artifacts

import (
	"context"
	"fmt"
)

// Backend names the supported artifact stores.
type Backend string

const (
	BackendFS  Backend = "fs"
	BackendS3  Backend = "s3"
	BackendGCS Backend = "gcs"
)

// Config selects and configures an artifact backend. It mirrors the
// artifacts section of the run profile.
type Config struct {
	Backend  Backend
	Dir      string // fs
	Bucket   string // s3, gcs
	Region   string // s3
	Endpoint string // s3 override for MinIO/LocalStack
	Prefix   string // s3, gcs
}

// New builds the configured artifact store.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendFS, "":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("artifacts: fs backend requires a dir")
		}
		return NewFileStore(cfg.Dir)
	case BackendS3:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("artifacts: s3 backend requires a bucket")
		}
		return NewS3Store(ctx, S3Config{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
			Prefix:   cfg.Prefix,
		})
	case BackendGCS:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("artifacts: gcs backend requires a bucket")
		}
		return newGCS(ctx, cfg)
	default:
		return nil, fmt.Errorf("artifacts: unsupported backend %q", cfg.Backend)
	}
}
