package record

import "time"

// StoreKey identifies a tracked record inside a single registry. Keys are
// opaque and registry-local; the zero key marks a transient record that has
// not been committed anywhere.
type StoreKey uint64

// Registry is the narrow contract an entity facade needs from the system of
// record owning authoritative status and data. Implementations decide their
// own storage and locking; facades call these operations synchronously and
// treat CreateRecord, FetchData and DestroyRecord as fire-and-forget requests
// whose results arrive later through DataDidChange pushes.
type Registry interface {
	// Status returns the lifecycle status stored for the key. Unknown keys
	// report StatusEmpty.
	Status(key StoreKey) Status
	// SetStatus replaces the lifecycle status stored for the key.
	SetStatus(key StoreKey, status Status)

	// StoreKeyFor returns the store key for a (type, identifier) pair,
	// minting a new key the first time the pair is seen. A nil identifier
	// asks the registry to mint one.
	StoreKeyFor(t *Type, id any) StoreKey
	// IDForStoreKey resolves a store key back to the identifier it was
	// minted for.
	IDForStoreKey(key StoreKey) (any, bool)

	// ReadValue reads one wire-keyed value from the working data mapping.
	ReadValue(key StoreKey, wireKey string) (any, bool)
	// WriteValue writes one wire-keyed value into the working data mapping
	// and marks the record dirty.
	WriteValue(key StoreKey, wireKey string, value any)
	// ReadData returns a copy of the full working data mapping.
	ReadData(key StoreKey) (map[string]any, bool)

	// CreateRecord hands a freshly committed mapping to the registry and
	// requests creation in the backing source.
	CreateRecord(key StoreKey, data map[string]any)
	// SetRecordForStoreKey registers the live facade for a key so the
	// registry can push data changes back into it.
	SetRecordForStoreKey(key StoreKey, e *Entity)
	// RevertData discards uncommitted working data in favour of the last
	// authoritative snapshot and notifies the live facade.
	RevertData(key StoreKey)
	// FetchData requests a refresh from the backing source.
	FetchData(key StoreKey)
	// DestroyRecord requests deletion in the backing source.
	DestroyRecord(key StoreKey)
	// MaterializeRecord returns the canonical facade bound to this registry
	// for a tracked key, constructing and registering it on first use.
	MaterializeRecord(key StoreKey, t *Type) *Entity

	// RecordEvent journals a lifecycle event. Registries fill in missing
	// identifiers and timestamps.
	RecordEvent(ev Event)
}

// EventKind labels a journaled lifecycle event.
type EventKind string

// Event kinds journaled by the core lifecycle operations.
const (
	// EventCreatedByUser marks the local commit of a new record.
	EventCreatedByUser EventKind = "created_by_user"
	// EventDestroyedByUser marks a local destroy request.
	EventDestroyedByUser EventKind = "destroyed_by_user"
)

// Event is one journaled lifecycle transition.
type Event struct {
	ID   string    `json:"id"`
	Kind EventKind `json:"kind"`
	Type string    `json:"type"`
	Key  StoreKey  `json:"key"`
	At   time.Time `json:"at"`
}
