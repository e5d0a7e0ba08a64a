package blob

import (
	"context"
	"fmt"
	"os"
)

// Config selects a blob driver. S3 settings always come from the
// FIELDCORE_BLOB_S3_* variables.
type Config struct {
	Driver Driver
	FSRoot string
}

// Open selects a Store implementation using environment variables.
//
//	FIELDCORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	FIELDCORE_BLOB_FS_ROOT: directory root when driver=fs (default ./exports)
//	FIELDCORE_BLOB_S3_*: see OpenS3FromEnv
func Open(ctx context.Context) (Store, error) {
	return OpenConfig(ctx, Config{
		Driver: Driver(os.Getenv("FIELDCORE_BLOB_DRIVER")),
		FSRoot: os.Getenv("FIELDCORE_BLOB_FS_ROOT"),
	})
}

// OpenConfig opens the Store described by cfg.
func OpenConfig(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverFilesystem
	}
	switch cfg.Driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}
