package record

import "sort"

// ValidityAggregator maintains the validation state of one entity: one error
// slot per declared attribute and a count of attributes currently in error.
// The count is only ever adjusted by deltas as individual slots flip between
// nil and non-nil; it is never recomputed by scanning the map.
//
// An aggregator is created lazily on first access and subscribes once per
// distinct dependency key of the entity's type. Each notification revalidates
// exactly the dependents of the changed key.
type ValidityAggregator struct {
	e      *Entity
	errors map[string]error
	count  int
}

// stagedError is one revalidation result waiting for count application.
type stagedError struct {
	property string
	err      error
}

// newValidityAggregator evaluates every declared validator against the
// entity's current values and subscribes to the type's dependency keys. The
// aggregator is attached to the entity before evaluation so validators that
// reach back into the entity observe a consistent handle.
func newValidityAggregator(e *Entity) *ValidityAggregator {
	t := e.typ
	agg := &ValidityAggregator{
		e:      e,
		errors: make(map[string]error, len(t.attrs)),
	}
	e.validity = agg
	for i := range t.attrs {
		property := t.attrs[i].property
		err := e.validateCurrent(&t.attrs[i])
		agg.errors[property] = err
		if err != nil {
			agg.count++
		}
	}
	for _, key := range t.DependencyKeys() {
		key := key
		e.AddObserver(key, func(*Entity, string) { agg.dependencyChanged(key) })
	}
	return agg
}

// dependencyChanged revalidates every dependent of the changed key. Results
// are staged first and the count deltas applied in a second pass, so one
// notification adjusts the count exactly once per flipped slot regardless of
// validator evaluation order.
func (v *ValidityAggregator) dependencyChanged(key string) {
	dependents := v.e.typ.deps[key]
	if len(dependents) == 0 {
		return
	}
	staged := make([]stagedError, 0, len(dependents))
	for _, property := range dependents {
		attr := v.e.typ.byProp[property]
		staged = append(staged, stagedError{property: property, err: v.e.validateCurrent(attr)})
	}
	delta := 0
	for _, s := range staged {
		prev := v.errors[s.property]
		switch {
		case prev == nil && s.err != nil:
			delta++
		case prev != nil && s.err == nil:
			delta--
		}
		v.errors[s.property] = s.err
	}
	if delta != 0 {
		v.count += delta
		// Computed validity changed; any manual override is stale now.
		v.e.validOverride = nil
	}
}

// ErrorCount returns the number of attributes currently in error.
func (v *ValidityAggregator) ErrorCount() int { return v.count }

// Valid reports whether no attribute is currently in error.
func (v *ValidityAggregator) Valid() bool { return v.count == 0 }

// Error returns the current validation error for a property, nil when the
// property validates cleanly or is not declared.
func (v *ValidityAggregator) Error(property string) error {
	return v.errors[property]
}

// InvalidProperties returns the sorted property names currently in error.
func (v *ValidityAggregator) InvalidProperties() []string {
	var props []string
	for property, err := range v.errors {
		if err != nil {
			props = append(props, property)
		}
	}
	sort.Strings(props)
	return props
}

// Dependents returns the properties revalidated when the given dependency
// key changes.
func (v *ValidityAggregator) Dependents(key string) []string {
	return v.e.typ.Dependents(key)
}
