package blob

import (
	"context"

	infras3 "recordcore/internal/infra/blob/s3"
)

// S3Config re-exports the S3 driver configuration.
type S3Config = infras3.Config

// NewS3 returns an S3-backed Store built from cfg.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infras3.New(ctx, cfg)
}

// NewMockS3ForTests returns the S3 store wired to a fake transport, for
// tests outside the s3 package.
func NewMockS3ForTests() Store { return infras3.NewMockForTests() }
