package source

import (
	"fmt"

	"github.com/ethpandaops/archivoor/pkg/config"
)

// New creates the Reader selected by the import configuration.
func New(cfg *config.ImportConfig) (Reader, error) {
	switch cfg.Source.Type {
	case "", "local":
		return NewLocalReader(cfg.RootDir)
	case "s3":
		if cfg.Source.S3 == nil {
			return nil, fmt.Errorf("s3 source is not configured")
		}

		return NewS3Reader(cfg.Source.S3, cfg.RootDir), nil
	default:
		return nil, fmt.Errorf("unsupported source type %q", cfg.Source.Type)
	}
}
