// Package archive replicates encoded derived containers to a blob backend.
// Replication is best effort and sits outside the ingestion commit path: the
// relational row referencing the local file is the source of truth.
package archive

import (
	"context"
	"io"
	"time"

	"github.com/cockroachdb/errors"
)

// Driver identifies a concrete archive backend implementation.
type Driver string

const (
	// DriverFilesystem archives to a local directory (default, dev).
	DriverFilesystem Driver = "fs"
	// DriverS3 archives to an S3 / MinIO compatible bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps archived blobs in memory (tests).
	DriverMemory Driver = "memory"
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
}

// Info describes an archived blob.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type,omitempty"`
	Checksum     string    `json:"checksum,omitempty"` // hex sha256 of the content
	LastModified time.Time `json:"last_modified"`
}

// Store is the minimal blob surface replication needs. Semantics mirror a
// subset of S3 so the filesystem backend can emulate them.
type Store interface {
	// Put stores a new blob at key. Fails if the key already exists.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get retrieves blob contents and metadata.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// Head returns metadata only.
	Head(ctx context.Context, key string) (Info, error)
	// Delete removes a blob. Returns (false, nil) if not found.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns blobs whose key has the given prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	// Driver reports the configured backend.
	Driver() Driver
}

// ErrExists is returned by Put when the key already holds a blob.
var ErrExists = errors.New("archive: blob already exists")
