package blob

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v10"
	infras3 "recordcore/internal/infra/blob/s3"
)

// Config carries the environment-driven driver selection.
type Config struct {
	Driver string `env:"RECORDCORE_BLOB_DRIVER" envDefault:"fs"`
	FSRoot string `env:"RECORDCORE_BLOB_FS_ROOT"`
}

// Open selects a Store from environment variables.
//
//	RECORDCORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	RECORDCORE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	RECORDCORE_BLOB_S3_*: bucket, region, endpoint and credentials (see the
//	s3 driver config)
func Open(ctx context.Context) (Store, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse blob config: %w", err)
	}
	switch Driver(cfg.Driver) {
	case DriverFilesystem, "":
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return infras3.OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}
