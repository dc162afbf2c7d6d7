package record

// Entity is the lifecycle facade over one logical record. A transient entity
// owns a local wire-keyed working mapping; committing hands that mapping to
// the registry, after which every read and write delegates to the registry's
// working data. Lifecycle status is always derived from (store key, registry
// state) on demand and never cached on the facade.
//
// Entities are not safe for concurrent use; confine each facade to one
// goroutine.
type Entity struct {
	typ      *Type
	registry Registry
	key      StoreKey

	local       map[string]any
	syncStopped bool
	destroyed   bool

	validity      *ValidityAggregator
	validOverride *bool

	observers    map[string][]ObserverFunc
	batchDepth   int
	pendingOrder []string
	pendingSet   map[string]struct{}
}

// New returns a transient entity of the given type bound to a registry. The
// entity owns its local working mapping until Commit transfers it.
func New(t *Type, reg Registry) *Entity {
	return &Entity{typ: t, registry: reg, local: make(map[string]any)}
}

// Materialized returns a tracked facade for an existing store key. It is the
// constructor registries use for their canonical handles; application code
// resolves facades through Registry.MaterializeRecord instead.
func Materialized(t *Type, reg Registry, key StoreKey) *Entity {
	return &Entity{typ: t, registry: reg, key: key}
}

// Type returns the compiled record type.
func (e *Entity) Type() *Type { return e.typ }

// Registry returns the registry the facade is bound to.
func (e *Entity) Registry() Registry { return e.registry }

// StoreKey returns the registry key, zero while transient.
func (e *Entity) StoreKey() StoreKey { return e.key }

// Tracked reports whether the record has been committed to its registry.
func (e *Entity) Tracked() bool { return e.key != 0 }

// ID returns the identifier value, nil while unset.
func (e *Entity) ID() any { return e.Get(e.typ.idProp) }

// Status derives the current lifecycle status. Transient records report the
// fixed uncommitted composite, discarded transients report destroyed, and
// tracked records read through to the registry.
func (e *Entity) Status() Status {
	if e.key == 0 {
		if e.destroyed {
			return StatusDestroyed
		}
		return StatusUncommitted
	}
	return e.registry.Status(e.key)
}

// HasStatus reports whether the current status carries any bit of mask.
func (e *Entity) HasStatus(mask Status) bool {
	return e.Status().Has(mask)
}

// Editable reports whether the record currently accepts local writes.
func (e *Entity) Editable() bool {
	if e.typ.readOnly || e.destroyed {
		return false
	}
	return !e.Status().Has(StatusDestroyed)
}

// MarkObsolete flags a tracked record so its working data is refetched on
// next use. Transient records have nothing to refetch.
func (e *Entity) MarkObsolete() {
	if e.key == 0 {
		return
	}
	e.registry.SetStatus(e.key, e.registry.Status(e.key)|StatusObsolete)
}

// MarkLoading flags a tracked record as having an in-flight fetch.
func (e *Entity) MarkLoading() {
	if e.key == 0 {
		return
	}
	e.registry.SetStatus(e.key, e.registry.Status(e.key)|StatusLoading)
}

// Get returns the current value of a property. Transient records read their
// local mapping, tracked records read the registry's working data. Undeclared
// properties and absent values read as nil; defaults only materialise at
// commit time.
func (e *Entity) Get(property string) any {
	attr, ok := e.typ.byProp[property]
	if !ok {
		return nil
	}
	if e.key == 0 {
		if e.local == nil {
			return nil
		}
		return e.local[attr.key]
	}
	value, _ := e.registry.ReadValue(e.key, attr.key)
	return value
}

// Set writes a property value and notifies observers synchronously, or
// stages the notification when a change scope is open. Writing never
// validates; validation errors surface only through the validity aggregator.
func (e *Entity) Set(property string, value any) error {
	attr, ok := e.typ.byProp[property]
	if !ok {
		return UnknownAttributeError{Type: e.typ.name, Property: property}
	}
	if e.typ.readOnly {
		return NotEditableError{Type: e.typ.name, Reason: "type is read only"}
	}
	if e.destroyed {
		return NotEditableError{Type: e.typ.name, Reason: "record discarded"}
	}
	if e.key != 0 && e.registry.Status(e.key).Has(StatusDestroyed) {
		return NotEditableError{Type: e.typ.name, Reason: "record destroyed"}
	}
	if e.key == 0 {
		if e.local == nil {
			e.local = make(map[string]any)
		}
		e.local[attr.key] = value
	} else {
		e.registry.WriteValue(e.key, attr.key, value)
	}
	e.notifyProperty(property)
	return nil
}

// Commit promotes a transient record into its registry: defaults are
// materialised for absent attributes, an identifier is minted when none was
// set, the working mapping transfers to the registry, and the facade becomes
// the registered live handle for the minted store key. Committing a tracked
// record fails with AlreadyCommittedError.
func (e *Entity) Commit() (*Entity, error) {
	if e.key != 0 {
		return e, AlreadyCommittedError{Type: e.typ.name, Key: e.key}
	}
	if e.destroyed {
		return nil, NotEditableError{Type: e.typ.name, Reason: "record discarded"}
	}
	data := e.local
	if data == nil {
		data = make(map[string]any)
	}
	var filled []string
	for i := range e.typ.attrs {
		attr := &e.typ.attrs[i]
		if attr.noSync {
			continue
		}
		if _, present := data[attr.key]; present {
			continue
		}
		value := attr.defaultValue()
		if value == nil {
			continue
		}
		data[attr.key] = value
		filled = append(filled, attr.property)
	}
	idKey := e.typ.idKey()
	key := e.registry.StoreKeyFor(e.typ, data[idKey])
	if data[idKey] == nil {
		if minted, ok := e.registry.IDForStoreKey(key); ok && minted != nil {
			data[idKey] = minted
			filled = append(filled, e.typ.idProp)
		}
	}
	e.registry.CreateRecord(key, data)
	e.key = key
	e.local = nil
	e.registry.SetRecordForStoreKey(key, e)
	e.registry.RecordEvent(Event{Kind: EventCreatedByUser, Type: e.typ.name, Key: key})
	if len(filled) > 0 {
		scope := e.BeginChanges()
		for _, property := range filled {
			e.notifyProperty(property)
		}
		scope.End()
	}
	return e, nil
}

// DiscardChanges abandons local edits. A transient record is destroyed
// outright; a tracked record asks the registry to revert its working data to
// the last authoritative snapshot, which notifies the live handle.
func (e *Entity) DiscardChanges() {
	if e.key == 0 {
		e.destroyed = true
		e.local = nil
		return
	}
	e.registry.RevertData(e.key)
}

// Refresh requests fresh data from the backing source. The call returns
// immediately; data arrives later through DataDidChange.
func (e *Entity) Refresh() {
	if e.key == 0 {
		return
	}
	e.registry.FetchData(e.key)
}

// Destroy journals the destroy and asks the registry to delete the record.
// Only tracked, editable records can be destroyed; a transient draft is
// discarded through DiscardChanges instead.
func (e *Entity) Destroy() {
	if e.key == 0 || !e.Editable() {
		return
	}
	e.registry.RecordEvent(Event{Kind: EventDestroyedByUser, Type: e.typ.name, Key: e.key})
	e.registry.DestroyRecord(e.key)
}

// Materialize resolves the facade for this record's identity in the target
// registry. Resolving into the record's own registry returns the canonical
// handle, so repeated materialisation preserves identity. Transient records
// carry no identity and cannot be materialised.
func (e *Entity) Materialize(target Registry) (*Entity, error) {
	if e.key == 0 {
		return nil, TransientMaterializeError{Type: e.typ.name}
	}
	id, ok := e.registry.IDForStoreKey(e.key)
	if !ok {
		return nil, TransientMaterializeError{Type: e.typ.name}
	}
	key := target.StoreKeyFor(e.typ, id)
	return target.MaterializeRecord(key, e.typ), nil
}

// StopSync suppresses registry pushes into this facade. Local writes still
// notify.
func (e *Entity) StopSync() { e.syncStopped = true }

// StartSync re-enables registry pushes and resynchronises the facade by
// notifying every attribute once.
func (e *Entity) StartSync() {
	if !e.syncStopped {
		return
	}
	e.syncStopped = false
	if e.key != 0 {
		e.DataDidChange()
	}
}

// SyncStopped reports whether registry pushes are currently suppressed.
func (e *Entity) SyncStopped() bool { return e.syncStopped }

// DataDidChange notifies observers that working data changed out of band,
// typically after a revert or fetch completion. No arguments means every
// attribute; otherwise only the named wire keys are translated and notified.
// All notifications of one call share a single change scope.
func (e *Entity) DataDidChange(wireKeys ...string) {
	if e.syncStopped {
		return
	}
	scope := e.BeginChanges()
	defer scope.End()
	if len(wireKeys) == 0 {
		for i := range e.typ.attrs {
			e.notifyProperty(e.typ.attrs[i].property)
		}
		return
	}
	for _, key := range wireKeys {
		if property, ok := e.typ.Property(key); ok {
			e.notifyProperty(property)
		}
	}
}

// ValidateValue checks a candidate value against the property's validator
// without mutating the record. The returned error is the one the aggregator
// would record if the value were set.
func (e *Entity) ValidateValue(property string, candidate any) error {
	attr, ok := e.typ.byProp[property]
	if !ok {
		return UnknownAttributeError{Type: e.typ.name, Property: property}
	}
	if attr.validator == nil {
		return nil
	}
	return attr.validator(candidate, property, e)
}

// validateCurrent runs an attribute's validator against the current value.
func (e *Entity) validateCurrent(attr *compiledAttribute) error {
	if attr.validator == nil {
		return nil
	}
	return attr.validator(e.Get(attr.property), attr.property, e)
}

// Validity returns the entity's aggregator, constructing it on first access.
func (e *Entity) Validity() *ValidityAggregator {
	if e.validity == nil {
		newValidityAggregator(e)
	}
	return e.validity
}

// IsValid reports record validity: the manual override when one is set,
// otherwise whether the aggregator counts zero errors.
func (e *Entity) IsValid() bool {
	if e.validOverride != nil {
		return *e.validOverride
	}
	return e.Validity().Valid()
}

// SetValid forces the validity flag. The override holds until the next
// revalidation that changes the error count, at which point computed
// validity reasserts itself.
func (e *Entity) SetValid(valid bool) {
	e.validOverride = &valid
}
