// Package core declares the blob storage contract shared by the blob facade
// and the infra drivers. Keeping the contract in its own package lets the
// drivers implement it without importing the facade that wraps them.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete blob storage backend.
type Driver string

const (
	// DriverFilesystem stores blobs under a local directory root.
	DriverFilesystem Driver = "fs"
	// DriverS3 stores blobs in an S3 or MinIO bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps blobs in process memory, for tests.
	DriverMemory Driver = "memory"
)

// PutOptions carries the optional write parameters of a Put.
type PutOptions struct {
	// ContentType is the MIME type recorded with the blob.
	ContentType string
	// Metadata is a small flat set of user key-value pairs stored alongside
	// the payload.
	Metadata map[string]string
}

// SignedURLOptions configures PresignURL.
type SignedURLOptions struct {
	// Method is the HTTP method the URL authorizes. Only GET is supported.
	Method string
	// Expiry bounds the URL lifetime; 15 minutes when zero.
	Expiry time.Duration
}

// Info describes one stored blob.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	URL          string            `json:"url,omitempty"`
}

// Store is a thin S3-shaped object store. Writes are create-only: Put fails
// when the key already exists, which is what keeps archived registry
// snapshots immutable. The filesystem driver emulates the same semantics
// locally.
type Store interface {
	// Put stores a new blob under key and fails if the key exists.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get returns the blob metadata and payload. Local drivers report
	// missing keys with errors matching fs.ErrNotExist.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// Head returns metadata only.
	Head(ctx context.Context, key string) (Info, error)
	// Delete removes a blob, reporting whether it existed. Idempotent.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns every blob whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	// PresignURL returns a time-limited GET URL for key, or ErrUnsupported
	// when the backend cannot mint one.
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	// Driver reports which backend serves the store.
	Driver() Driver
}

// ErrUnsupported marks an optional capability the driver does not provide.
var ErrUnsupported = errors.New("blob: unsupported operation")
