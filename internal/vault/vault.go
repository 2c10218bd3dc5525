// Package vault implements optional off-site mirrors of archived
// bytes, keyed by MD5. The archive on local disk remains the source of
// truth; mirroring is best-effort and a mirror failure never fails an
// ingestion.
package vault

import (
	"context"
	"fmt"
	"io"

	"toaster/internal/config"
)

// Mirror stores copies of archived files keyed by their MD5.
type Mirror interface {
	// Put stores content identified by its MD5. The operation is
	// idempotent: storing the same checksum multiple times is safe.
	// size is the number of bytes that will be read from r.
	Put(ctx context.Context, md5 string, r io.Reader, size int64) error

	// Get retrieves content by MD5 and writes it to w.
	Get(ctx context.Context, md5 string, w io.Writer) error

	// Has reports whether content with the given MD5 is present.
	Has(ctx context.Context, md5 string) (bool, error)

	// ValidateSetup verifies that the mirror is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}

// NewMirrorFromConfig creates a Mirror based on the mirror config type.
// An empty type means no mirror is configured and returns (nil, nil).
func NewMirrorFromConfig(ctx context.Context, cfg config.MirrorConfig) (Mirror, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "memory":
		return NewMemoryMirror(cfg.Name), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 mirror requires s3_bucket to be set")
		}
		return NewS3Mirror(ctx, cfg)
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem mirror requires fs_root to be set")
		}
		return NewFileSystemMirror(cfg.Name, cfg.FSRoot)
	default:
		return nil, fmt.Errorf("unknown mirror type: %s", cfg.Type)
	}
}
