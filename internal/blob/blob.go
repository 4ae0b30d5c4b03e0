// Package blob is the only entry point to the blob backends. Callers depend on
// the Store interface and choose a backend through Config.
package blob

import (
	"context"
	"fmt"

	"labbench/internal/blob/core"
	"labbench/internal/infra/blob/fs"
	"labbench/internal/infra/blob/memory"
	"labbench/internal/infra/blob/s3"
)

type (
	// Store is the blob contract (alias of core.Store).
	Store = core.Store
	// Object describes a stored blob.
	Object = core.Object
	// PutOptions carries content type and user metadata.
	PutOptions = core.PutOptions
	// Driver names a backend.
	Driver = core.Driver
	// S3Config holds bucket coordinates for the s3 driver.
	S3Config = s3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrNotFound    = core.ErrNotFound
	ErrUnsupported = core.ErrUnsupported
	ErrInvalidKey  = core.ErrInvalidKey
)

// Config selects a backend. Field tags are read relative to the caller's env
// prefix (LABBENCH_ for the CLI).
type Config struct {
	Driver Driver   `env:"BLOB_DRIVER" envDefault:"fs"`
	FSRoot string   `env:"BLOB_FS_ROOT" envDefault:"./labbench-data"`
	S3     S3Config `envPrefix:"BLOB_S3_"`
}

// Open constructs the configured store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		return fs.New(cfg.FSRoot)
	case DriverMemory:
		return memory.New(), nil
	case DriverS3:
		return s3.New(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewMemory returns an in-process store.
func NewMemory() Store { return memory.New() }

// NewS3Mock returns an s3 store backed by an in-process fake bucket.
func NewS3Mock(bucket string) (Store, error) { return s3.NewMock(bucket) }
