package archive

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// Config selects and parameterizes an archive backend.
type Config struct {
	Driver Driver
	Root   string // filesystem driver root directory
	S3     S3Config
}

// Open constructs the archive backend named by cfg.Driver. An empty driver
// selects the filesystem backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		return NewFilesystem(cfg.Root)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, errors.Newf("unknown archive driver %q", cfg.Driver)
	}
}

const containerContentType = "application/x-nwb+json"

// PutFile replicates a local file into the archive under its base name.
// Already archived keys are left untouched.
func PutFile(ctx context.Context, s Store, path string) error {
	key := filepath.Base(path)
	if _, err := s.Head(ctx, key); err == nil {
		return nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = fh.Close() }()
	if _, err := s.Put(ctx, key, fh, PutOptions{ContentType: containerContentType}); err != nil {
		if errors.Is(err, ErrExists) {
			return nil
		}
		return err
	}
	return nil
}
