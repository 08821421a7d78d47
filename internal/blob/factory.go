package blob

import (
	"context"
	"fmt"
	"os"
)

// Open selects a blob.Store implementation using environment variables.
// dir is the filesystem root used when IDOT_OUTPUT_FS_ROOT is unset; the CLI
// passes the directory of the requested output file.
//
//	IDOT_OUTPUT_DRIVER: fs|s3|memory (default fs)
//	IDOT_OUTPUT_FS_ROOT: directory root when driver=fs
//	(S3 specific variables documented in internal/infra/blob/s3)
func Open(ctx context.Context, dir string) (Store, error) {
	driver := os.Getenv("IDOT_OUTPUT_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		root := os.Getenv("IDOT_OUTPUT_FS_ROOT")
		if root == "" {
			root = dir
		}
		return NewFilesystem(root)
	case DriverS3:
		return OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown output driver %s", driver)
	}
}
