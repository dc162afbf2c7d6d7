// Package record implements a reactive client-side record core: compiled
// attribute tables with dependency-aware validators, a lifecycle status
// bitmask derived from a backing registry, and a thin entity facade that
// aggregates per-attribute validation errors incrementally.
//
// The package is intentionally free of third-party dependencies. Entities and
// their aggregators are confined to a single goroutine; registries decide
// their own locking discipline behind the Registry contract.
package record

import "strings"

// Status is a bitmask describing the lifecycle state of a record as stored by
// its registry. Transient records that have never been committed report the
// fixed StatusUncommitted composite; tracked records always read their status
// from the registry, never from a cache.
type Status uint16

// Lifecycle status bits. Bits combine: a record being fetched again after a
// local edit is READY|LOADING|DIRTY.
const (
	// StatusEmpty marks a key the registry has minted but holds no data for.
	StatusEmpty Status = 1 << iota
	// StatusReady marks a record whose working data is usable.
	StatusReady
	// StatusLoading marks a record with an in-flight fetch.
	StatusLoading
	// StatusNew marks a record created locally and not yet acknowledged.
	StatusNew
	// StatusDirty marks a record with uncommitted local edits.
	StatusDirty
	// StatusObsolete marks a record whose working data should be refetched.
	StatusObsolete
	// StatusNonExistent marks a key the backing source reported missing.
	StatusNonExistent
	// StatusDestroyed marks a record that has been destroyed.
	StatusDestroyed
)

// StatusUncommitted is the composite status every transient record reports
// until it is committed to a registry.
const StatusUncommitted = StatusReady | StatusNew | StatusDirty

// Has reports whether any bit of mask is set. Callers testing for an exact
// state compare directly instead.
func (s Status) Has(mask Status) bool {
	return s&mask != 0
}

var statusNames = []struct {
	bit  Status
	name string
}{
	{StatusEmpty, "EMPTY"},
	{StatusReady, "READY"},
	{StatusLoading, "LOADING"},
	{StatusNew, "NEW"},
	{StatusDirty, "DIRTY"},
	{StatusObsolete, "OBSOLETE"},
	{StatusNonExistent, "NON_EXISTENT"},
	{StatusDestroyed, "DESTROYED"},
}

// String renders the status as a pipe-joined list of bit names.
func (s Status) String() string {
	if s == 0 {
		return "NONE"
	}
	parts := make([]string, 0, 4)
	for _, entry := range statusNames {
		if s&entry.bit != 0 {
			parts = append(parts, entry.name)
		}
	}
	return strings.Join(parts, "|")
}
