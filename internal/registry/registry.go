// Package registry implements the authoritative in-memory system of record
// behind the record.Registry contract: store-key minting, lifecycle status,
// working data and baselines, live facade handles, and the lifecycle event
// journal. Persistence adapters under internal/infra/persistence embed this
// registry and add durability.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"recordcore/pkg/record"

	"github.com/google/uuid"
)

// Compile-time contract assertions.
var (
	_ record.Registry = (*Registry)(nil)
	_ Authority       = (*Registry)(nil)
)

// Authority is the completion surface a backing source drives to resolve the
// deferred operations a facade requested through the record.Registry
// contract.
type Authority interface {
	CompleteCreate(ctx context.Context, key record.StoreKey) error
	CompleteFetch(ctx context.Context, key record.StoreKey, data map[string]any) error
	CompleteFetchMissing(ctx context.Context, key record.StoreKey) error
	CompleteDestroy(ctx context.Context, key record.StoreKey) error
}

// pendingOp tracks which deferred request a record is waiting on.
type pendingOp string

const (
	pendingNone    pendingOp = ""
	pendingCreate  pendingOp = "create"
	pendingFetch   pendingOp = "fetch"
	pendingDestroy pendingOp = "destroy"
)

// recordState is the authoritative registry-side state of one record.
type recordState struct {
	typeName string
	id       string
	status   record.Status
	data     map[string]any
	baseline map[string]any
	pending  pendingOp
}

// Registry is a mutex-guarded in-memory record.Registry. Facade handles are
// notified outside the lock so observers can freely read back through the
// registry.
type Registry struct {
	mu      sync.RWMutex
	nextKey record.StoreKey
	records map[record.StoreKey]*recordState
	keys    map[string]record.StoreKey
	handles map[record.StoreKey]*record.Entity
	events  []record.Event

	clock   func() time.Time
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
}

// New constructs an empty registry. Options install observability hooks; the
// defaults are no-ops.
func New(opts ...Option) *Registry {
	r := &Registry{
		records: make(map[record.StoreKey]*recordState),
		keys:    make(map[string]record.StoreKey),
		handles: make(map[record.StoreKey]*record.Entity),
		clock:   func() time.Time { return time.Now().UTC() },
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		audit:   noopAudit{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ErrUnknownKey reports an operation against a key the registry never minted.
type ErrUnknownKey struct {
	Key record.StoreKey
}

func (e ErrUnknownKey) Error() string {
	return fmt.Sprintf("registry: unknown store key %d", e.Key)
}

// ErrNoPendingOperation reports a completion that has no matching request.
type ErrNoPendingOperation struct {
	Key record.StoreKey
	Op  string
}

func (e ErrNoPendingOperation) Error() string {
	return fmt.Sprintf("registry: store key %d has no pending %s", e.Key, e.Op)
}

// identity builds the lookup key for a (type, identifier) pair.
func identity(typeName, id string) string {
	return typeName + "\x00" + id
}

// instrument opens a span and returns the closer that records metrics, audit
// and logs for the operation. The closer must be called with no registry
// lock held.
func (r *Registry) instrument(ctx context.Context, operation string, key record.StoreKey) func(error) {
	start := r.clock()
	ctx, span := r.tracer.Start(ctx, operation)
	return func(err error) {
		duration := r.clock().Sub(start)
		r.metrics.Observe(ctx, operation, err == nil, duration)
		span.End(err)
		typeName, _ := r.TypeNameForStoreKey(key)
		entry := AuditEntry{Operation: operation, Status: AuditSuccess, Type: typeName, Key: key, At: r.clock()}
		if err != nil {
			entry.Status = AuditError
			entry.Detail = err.Error()
			r.logger.Error(operation+" failed", "type", typeName, "key", key, "error", err)
		} else {
			r.logger.Debug(operation, "type", typeName, "key", key)
		}
		r.audit.Record(ctx, entry)
	}
}

// Status implements record.Registry. Unknown keys report StatusEmpty.
func (r *Registry) Status(key record.StoreKey) record.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if st, ok := r.records[key]; ok {
		return st.status
	}
	return record.StatusEmpty
}

// SetStatus implements record.Registry.
func (r *Registry) SetStatus(key record.StoreKey, status record.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.records[key]; ok {
		st.status = status
	}
}

// StoreKeyFor implements record.Registry. Identifiers are canonicalised to
// strings; a nil identifier mints a fresh UUID.
func (r *Registry) StoreKeyFor(t *record.Type, id any) record.StoreKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	idStr := ""
	if id == nil {
		idStr = uuid.NewString()
	} else {
		idStr = fmt.Sprint(id)
	}
	lookup := identity(t.Name(), idStr)
	if key, ok := r.keys[lookup]; ok {
		return key
	}
	r.nextKey++
	key := r.nextKey
	r.keys[lookup] = key
	r.records[key] = &recordState{
		typeName: t.Name(),
		id:       idStr,
		status:   record.StatusEmpty,
	}
	return key
}

// IDForStoreKey implements record.Registry.
func (r *Registry) IDForStoreKey(key record.StoreKey) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.records[key]
	if !ok {
		return nil, false
	}
	return st.id, true
}

// TypeNameForStoreKey resolves the record type a key was minted for.
func (r *Registry) TypeNameForStoreKey(key record.StoreKey) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.records[key]
	if !ok {
		return "", false
	}
	return st.typeName, true
}

// ReadValue implements record.Registry. Returned values are cloned so
// callers cannot mutate registry state through them.
func (r *Registry) ReadValue(key record.StoreKey, wireKey string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.records[key]
	if !ok || st.data == nil {
		return nil, false
	}
	value, ok := st.data[wireKey]
	if !ok {
		return nil, false
	}
	return record.CloneValue(value), true
}

// WriteValue implements record.Registry. The write lands in the working data
// and flags the record dirty; the baseline stays untouched until the backing
// source confirms.
func (r *Registry) WriteValue(key record.StoreKey, wireKey string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.records[key]
	if !ok {
		return
	}
	if st.data == nil {
		st.data = make(map[string]any)
	}
	st.data[wireKey] = record.CloneValue(value)
	st.status |= record.StatusDirty
}

// ReadData implements record.Registry.
func (r *Registry) ReadData(key record.StoreKey) (map[string]any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.records[key]
	if !ok || st.data == nil {
		return nil, false
	}
	return record.CloneMap(st.data), true
}

// CreateRecord implements record.Registry. The mapping becomes both working
// data and baseline; the record waits on CompleteCreate for acknowledgement.
func (r *Registry) CreateRecord(key record.StoreKey, data map[string]any) {
	done := r.instrument(context.Background(), "create_record", key)
	r.mu.Lock()
	st, ok := r.records[key]
	if !ok {
		r.mu.Unlock()
		done(ErrUnknownKey{Key: key})
		return
	}
	st.data = record.CloneMap(data)
	st.baseline = record.CloneMap(data)
	st.status = record.StatusReady | record.StatusNew | record.StatusDirty
	st.pending = pendingCreate
	r.mu.Unlock()
	done(nil)
}

// SetRecordForStoreKey implements record.Registry.
func (r *Registry) SetRecordForStoreKey(key record.StoreKey, e *record.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e == nil {
		delete(r.handles, key)
		return
	}
	r.handles[key] = e
}

// RevertData implements record.Registry. Working data returns to the last
// baseline and the live handle is told that everything may have changed.
func (r *Registry) RevertData(key record.StoreKey) {
	done := r.instrument(context.Background(), "revert_data", key)
	r.mu.Lock()
	st, ok := r.records[key]
	if !ok {
		r.mu.Unlock()
		done(ErrUnknownKey{Key: key})
		return
	}
	st.data = record.CloneMap(st.baseline)
	st.status = record.StatusReady
	st.pending = pendingNone
	handle := r.handles[key]
	r.mu.Unlock()
	done(nil)
	if handle != nil {
		handle.DataDidChange()
	}
}

// FetchData implements record.Registry. The loading bit goes up immediately;
// data arrives through CompleteFetch or CompleteFetchMissing.
func (r *Registry) FetchData(key record.StoreKey) {
	done := r.instrument(context.Background(), "fetch_data", key)
	r.mu.Lock()
	st, ok := r.records[key]
	if !ok {
		r.mu.Unlock()
		done(ErrUnknownKey{Key: key})
		return
	}
	st.status |= record.StatusLoading
	st.pending = pendingFetch
	r.mu.Unlock()
	done(nil)
}

// DestroyRecord implements record.Registry. The record shows a pending
// destroy until CompleteDestroy settles it.
func (r *Registry) DestroyRecord(key record.StoreKey) {
	done := r.instrument(context.Background(), "destroy_record", key)
	r.mu.Lock()
	st, ok := r.records[key]
	if !ok {
		r.mu.Unlock()
		done(ErrUnknownKey{Key: key})
		return
	}
	st.status = record.StatusDestroyed | record.StatusDirty
	st.pending = pendingDestroy
	r.mu.Unlock()
	done(nil)
}

// MaterializeRecord implements record.Registry: it returns the canonical
// facade for a key, constructing and registering it on first use.
func (r *Registry) MaterializeRecord(key record.StoreKey, t *record.Type) *record.Entity {
	return r.MaterializeFor(key, t, r)
}

// MaterializeFor builds the canonical facade bound to the given outer
// registry. Persistence wrappers embed this registry and pass themselves so
// facades call back through the wrapper.
func (r *Registry) MaterializeFor(key record.StoreKey, t *record.Type, as record.Registry) *record.Entity {
	if as == nil {
		as = r
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[key]; ok {
		return h
	}
	h := record.Materialized(t, as, key)
	r.handles[key] = h
	return h
}

// RecordEvent implements record.Registry. Missing identifiers and timestamps
// are stamped by the registry.
func (r *Registry) RecordEvent(ev record.Event) {
	r.mu.Lock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = r.clock()
	}
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.logger.Debug("event", "kind", ev.Kind, "type", ev.Type, "key", ev.Key)
}

// Events returns a copy of the journaled lifecycle events in order.
func (r *Registry) Events() []record.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]record.Event(nil), r.events...)
}

// Len returns the number of minted store keys.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// CompleteCreate acknowledges a pending create: the record settles to ready.
func (r *Registry) CompleteCreate(ctx context.Context, key record.StoreKey) error {
	done := r.instrument(ctx, "complete_create", key)
	r.mu.Lock()
	st, ok := r.records[key]
	if !ok {
		r.mu.Unlock()
		err := ErrUnknownKey{Key: key}
		done(err)
		return err
	}
	if st.pending != pendingCreate {
		r.mu.Unlock()
		err := ErrNoPendingOperation{Key: key, Op: string(pendingCreate)}
		done(err)
		return err
	}
	st.status = record.StatusReady
	st.pending = pendingNone
	st.baseline = record.CloneMap(st.data)
	r.mu.Unlock()
	done(nil)
	return nil
}

// CompleteFetch delivers authoritative data for a key. A pending fetch is
// resolved, but unsolicited pushes from the backing source are accepted the
// same way. The live handle is notified outside the lock.
func (r *Registry) CompleteFetch(ctx context.Context, key record.StoreKey, data map[string]any) error {
	done := r.instrument(ctx, "complete_fetch", key)
	r.mu.Lock()
	st, ok := r.records[key]
	if !ok {
		r.mu.Unlock()
		err := ErrUnknownKey{Key: key}
		done(err)
		return err
	}
	st.data = record.CloneMap(data)
	st.baseline = record.CloneMap(data)
	st.status = record.StatusReady
	st.pending = pendingNone
	handle := r.handles[key]
	r.mu.Unlock()
	done(nil)
	if handle != nil {
		handle.DataDidChange()
	}
	return nil
}

// CompleteFetchMissing resolves a fetch whose source reported the record
// gone: data is dropped and the status settles to non-existent.
func (r *Registry) CompleteFetchMissing(ctx context.Context, key record.StoreKey) error {
	done := r.instrument(ctx, "complete_fetch_missing", key)
	r.mu.Lock()
	st, ok := r.records[key]
	if !ok {
		r.mu.Unlock()
		err := ErrUnknownKey{Key: key}
		done(err)
		return err
	}
	st.data = nil
	st.baseline = nil
	st.status = record.StatusNonExistent
	st.pending = pendingNone
	handle := r.handles[key]
	r.mu.Unlock()
	done(nil)
	if handle != nil {
		handle.DataDidChange()
	}
	return nil
}

// CompleteDestroy acknowledges a pending destroy: working data is dropped
// and the destroyed status settles. The key and its identity stay minted.
func (r *Registry) CompleteDestroy(ctx context.Context, key record.StoreKey) error {
	done := r.instrument(ctx, "complete_destroy", key)
	r.mu.Lock()
	st, ok := r.records[key]
	if !ok {
		r.mu.Unlock()
		err := ErrUnknownKey{Key: key}
		done(err)
		return err
	}
	if st.pending != pendingDestroy {
		r.mu.Unlock()
		err := ErrNoPendingOperation{Key: key, Op: string(pendingDestroy)}
		done(err)
		return err
	}
	st.data = nil
	st.baseline = nil
	st.status = record.StatusDestroyed
	st.pending = pendingNone
	r.mu.Unlock()
	done(nil)
	return nil
}
