// Package blob is the single entry point for blob storage. It re-exports
// the core contract and wraps the infra drivers so the rest of the tree
// depends on blob.Store alone; an architecture test enforces that only this
// package imports the driver packages.
package blob

import (
	"recordcore/internal/blob/core"
	"recordcore/internal/infra/blob/fs"
	memorystore "recordcore/internal/infra/blob/memory"
)

type (
	// Driver identifies a blob backend.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the blob storage contract.
	Store = core.Store
)

const (
	// DriverFilesystem stores blobs under a local directory.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 stores blobs in an S3-compatible bucket.
	DriverS3 = core.DriverS3
	// DriverMemory keeps blobs in process memory.
	DriverMemory = core.DriverMemory
)

// ErrUnsupported marks a capability the selected driver does not provide.
var ErrUnsupported = core.ErrUnsupported

// NewFilesystem returns a filesystem-backed Store rooted at dir. The Store
// return type keeps call sites on the interface.
func NewFilesystem(dir string) (Store, error) {
	return fs.New(dir)
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memorystore.New() }
