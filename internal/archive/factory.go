package archive

import (
	"context"
	"fmt"

	"inkwell/internal/config"
)

// NewArchiverFromConfig creates an Archiver implementation based on the
// archive config type. Returns nil (no archiver) for type "none" or an
// empty type.
func NewArchiverFromConfig(ctx context.Context, cfg config.ArchiveConfig) (Archiver, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "s3":
		return NewS3Archiver(ctx, cfg)
	case "memory":
		return NewMemoryArchiver(), nil
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
