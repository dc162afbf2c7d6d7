package record

import (
	"fmt"
	"testing"
	"time"
)

// fakeRegistry is a minimal in-memory Registry used by the package tests. It
// keeps the deferred operations pending until a test resolves them through
// one of the complete helpers, mirroring a backing source that answers out of
// band.
type fakeRegistry struct {
	nextKey  StoreKey
	status   map[StoreKey]Status
	data     map[StoreKey]map[string]any
	baseline map[StoreKey]map[string]any
	ids      map[StoreKey]any
	keys     map[string]StoreKey
	handles  map[StoreKey]*Entity
	events   []Event

	creates  []StoreKey
	fetches  []StoreKey
	destroys []StoreKey
	minted   int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		status:   make(map[StoreKey]Status),
		data:     make(map[StoreKey]map[string]any),
		baseline: make(map[StoreKey]map[string]any),
		ids:      make(map[StoreKey]any),
		keys:     make(map[string]StoreKey),
		handles:  make(map[StoreKey]*Entity),
	}
}

func (r *fakeRegistry) Status(key StoreKey) Status {
	if s, ok := r.status[key]; ok {
		return s
	}
	return StatusEmpty
}

func (r *fakeRegistry) SetStatus(key StoreKey, s Status) { r.status[key] = s }

func (r *fakeRegistry) StoreKeyFor(t *Type, id any) StoreKey {
	if id == nil {
		r.minted++
		id = fmt.Sprintf("minted-%d", r.minted)
	}
	lookup := t.Name() + "/" + fmt.Sprint(id)
	if key, ok := r.keys[lookup]; ok {
		return key
	}
	r.nextKey++
	key := r.nextKey
	r.keys[lookup] = key
	r.ids[key] = id
	r.status[key] = StatusEmpty
	return key
}

func (r *fakeRegistry) IDForStoreKey(key StoreKey) (any, bool) {
	id, ok := r.ids[key]
	return id, ok
}

func (r *fakeRegistry) ReadValue(key StoreKey, wireKey string) (any, bool) {
	data, ok := r.data[key]
	if !ok {
		return nil, false
	}
	value, ok := data[wireKey]
	return value, ok
}

func (r *fakeRegistry) WriteValue(key StoreKey, wireKey string, value any) {
	data := r.data[key]
	if data == nil {
		data = make(map[string]any)
		r.data[key] = data
	}
	data[wireKey] = value
	r.status[key] |= StatusDirty
}

func (r *fakeRegistry) ReadData(key StoreKey) (map[string]any, bool) {
	data, ok := r.data[key]
	if !ok {
		return nil, false
	}
	return CloneMap(data), true
}

func (r *fakeRegistry) CreateRecord(key StoreKey, data map[string]any) {
	r.data[key] = data
	r.baseline[key] = CloneMap(data)
	r.status[key] = StatusReady | StatusNew | StatusDirty
	r.creates = append(r.creates, key)
}

func (r *fakeRegistry) SetRecordForStoreKey(key StoreKey, e *Entity) {
	r.handles[key] = e
}

func (r *fakeRegistry) RevertData(key StoreKey) {
	r.data[key] = CloneMap(r.baseline[key])
	r.status[key] = StatusReady
	if h := r.handles[key]; h != nil {
		h.DataDidChange()
	}
}

func (r *fakeRegistry) FetchData(key StoreKey) {
	r.status[key] |= StatusLoading
	r.fetches = append(r.fetches, key)
}

func (r *fakeRegistry) DestroyRecord(key StoreKey) {
	r.status[key] = StatusDestroyed | StatusDirty
	r.destroys = append(r.destroys, key)
}

func (r *fakeRegistry) MaterializeRecord(key StoreKey, t *Type) *Entity {
	if h, ok := r.handles[key]; ok {
		return h
	}
	h := Materialized(t, r, key)
	r.handles[key] = h
	return h
}

func (r *fakeRegistry) RecordEvent(ev Event) {
	if ev.ID == "" {
		ev.ID = fmt.Sprintf("ev-%d", len(r.events)+1)
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	r.events = append(r.events, ev)
}

// completeCreate acknowledges a pending create.
func (r *fakeRegistry) completeCreate(key StoreKey) {
	r.status[key] = StatusReady
}

// completeFetch resolves an in-flight fetch with fresh authoritative data and
// notifies the live handle.
func (r *fakeRegistry) completeFetch(key StoreKey, data map[string]any) {
	r.data[key] = CloneMap(data)
	r.baseline[key] = CloneMap(data)
	r.status[key] = StatusReady
	if h := r.handles[key]; h != nil {
		h.DataDidChange()
	}
}

// completeDestroy acknowledges a pending destroy and drops the working data.
func (r *fakeRegistry) completeDestroy(key StoreKey) {
	r.status[key] = StatusDestroyed
	delete(r.data, key)
}

func requireString(value any, property string, _ *Entity) error {
	s, ok := value.(string)
	if !ok || s == "" {
		return fmt.Errorf("%s must be a non-empty string", property)
	}
	return nil
}

func phoneForCountry(value any, property string, e *Entity) error {
	country, _ := e.Get("country").(string)
	s, _ := value.(string)
	if country == "US" && len(s) != 10 {
		return fmt.Errorf("%s must have 10 digits in the US", property)
	}
	if s == "" {
		return fmt.Errorf("%s is required", property)
	}
	return nil
}

func postalForCountry(value any, property string, e *Entity) error {
	country, _ := e.Get("country").(string)
	s, _ := value.(string)
	if country == "US" && len(s) != 5 {
		return fmt.Errorf("%s must have 5 digits in the US", property)
	}
	if s == "" {
		return fmt.Errorf("%s is required", property)
	}
	return nil
}

// newTestType compiles the address book model shared by the package tests: a
// phone number and a postal code that both depend on the country.
func newTestType(t *testing.T) *Type {
	t.Helper()
	typ, err := NewType(Definition{
		Name: "contact",
		Attributes: []Attribute{
			{Key: "guid", Property: "id"},
			{Property: "email", Validator: requireString},
			{Property: "country", Validator: requireString},
			{Property: "phone", Validator: phoneForCountry, DependsOn: []string{"country"}},
			{Property: "postal_code", Validator: postalForCountry, DependsOn: []string{"country"}},
			{Property: "display_name", NoSync: true, Default: "unnamed"},
		},
	})
	if err != nil {
		t.Fatalf("compile test type: %v", err)
	}
	return typ
}

// mustSet fails the test when a write is rejected.
func mustSet(t *testing.T, e *Entity, property string, value any) {
	t.Helper()
	if err := e.Set(property, value); err != nil {
		t.Fatalf("set %s: %v", property, err)
	}
}

// fillValid writes a complete valid contact. The Belgian phone and postal
// formats deliberately violate the US rules so country switches flip both
// dependents.
func fillValid(t *testing.T, e *Entity) {
	t.Helper()
	mustSet(t, e, "email", "ada@example.org")
	mustSet(t, e, "country", "BE")
	mustSet(t, e, "phone", "25521111")
	mustSet(t, e, "postal_code", "1000")
}
