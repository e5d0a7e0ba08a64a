package blob

import (
	"context"

	infraS3 "fieldcore/internal/infra/blob/s3"
)

// S3Config re-exports the infra S3 configuration type.
type S3Config = infraS3.Config

// NewS3 constructs an S3-backed Store from cfg.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	s, err := infraS3.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// OpenS3FromEnv constructs an S3 store from the FIELDCORE_BLOB_S3_* variables.
func OpenS3FromEnv(ctx context.Context) (Store, error) {
	s, err := infraS3.OpenFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}
