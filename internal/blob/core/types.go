// Package core defines the blob storage contract shared by the backends in
// internal/infra/blob.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local directory (default)
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
	DriverMemory     Driver = "memory" // in-memory (tests)
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Object describes a stored blob.
type Object struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is the minimal S3-like surface lab reports are written through.
type Store interface {
	// Put writes the blob at key, replacing any previous content.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Object, error)
	// Get returns the blob and its metadata. Missing keys yield ErrNotFound.
	Get(ctx context.Context, key string) (Object, io.ReadCloser, error)
	// Head returns metadata only.
	Head(ctx context.Context, key string) (Object, error)
	// Delete removes a blob and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns blobs under prefix ordered by key.
	List(ctx context.Context, prefix string) ([]Object, error)
	// PresignURL returns a time-limited GET URL, or ErrUnsupported.
	PresignURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Driver() Driver
}

var (
	// ErrNotFound is returned (wrapped) for missing keys.
	ErrNotFound = errors.New("blob not found")
	// ErrUnsupported is returned when an optional capability is not available.
	ErrUnsupported = errors.New("blob: unsupported operation")
	// ErrInvalidKey rejects empty, absolute or traversing keys.
	ErrInvalidKey = errors.New("blob: invalid key")
)

// CloneMetadata copies user metadata so stores never alias caller maps.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
