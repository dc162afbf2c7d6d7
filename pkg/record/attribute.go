package record

import "fmt"

// ValidatorFunc checks a candidate value for a single property. A nil return
// means the value is acceptable. Validators may read sibling attributes
// through the entity, which is how cross-attribute dependencies are
// expressed.
type ValidatorFunc func(value any, property string, e *Entity) error

// Attribute declares a single record attribute: the wire key it is stored
// under, the property it is exposed as, and its validation behaviour.
type Attribute struct {
	// Key is the wire key in the underlying data mapping. It defaults to
	// Property when empty.
	Key string
	// Property is the name the attribute is exposed under. Required.
	Property string
	// Validator checks values for this attribute. Nil means always valid.
	Validator ValidatorFunc
	// DependsOn lists property names whose changes revalidate this
	// attribute. Every attribute implicitly depends on its own property.
	DependsOn []string
	// Default supplies the value materialised at commit time when the
	// attribute is absent. A func() any is invoked per commit; other values
	// are cloned, or canonicalised when they implement Canonical.
	Default any
	// NoSync excludes the attribute from default materialisation at commit
	// time. Its value only reaches the wire mapping through explicit writes.
	NoSync bool
}

// Definition describes a record type before compilation: the type name, the
// identifier property, and the attribute table. Compile a Definition with
// NewType before constructing entities from it.
type Definition struct {
	// Name identifies the record type. Required.
	Name string
	// ID names the property acting as the record identifier. Defaults to
	// "id".
	ID string
	// ReadOnly rejects all local writes on entities of this type.
	ReadOnly bool
	// Attributes is the attribute table in declaration order.
	Attributes []Attribute
}

// Check validates the definition and returns every finding as a human
// readable string. An empty slice means the definition compiles cleanly.
func (d Definition) Check() []string {
	var findings []string
	if d.Name == "" {
		findings = append(findings, "definition has no name")
	}
	idProp := d.ID
	if idProp == "" {
		idProp = "id"
	}
	props := make(map[string]int, len(d.Attributes))
	keys := make(map[string]int, len(d.Attributes))
	for i, attr := range d.Attributes {
		if attr.Property == "" {
			findings = append(findings, fmt.Sprintf("attribute %d has no property name", i))
			continue
		}
		if prev, ok := props[attr.Property]; ok {
			findings = append(findings, fmt.Sprintf("attributes %d and %d share property %q", prev, i, attr.Property))
		} else {
			props[attr.Property] = i
		}
		key := attr.Key
		if key == "" {
			key = attr.Property
		}
		if prev, ok := keys[key]; ok {
			findings = append(findings, fmt.Sprintf("attributes %d and %d share wire key %q", prev, i, key))
		} else {
			keys[key] = i
		}
	}
	for _, attr := range d.Attributes {
		for _, dep := range attr.DependsOn {
			if _, ok := props[dep]; !ok {
				findings = append(findings, fmt.Sprintf("attribute %q depends on undeclared property %q", attr.Property, dep))
			}
		}
	}
	idIndex, hasID := props[idProp]
	if !hasID {
		findings = append(findings, fmt.Sprintf("identifier property %q is not declared", idProp))
	} else if d.Attributes[idIndex].NoSync {
		findings = append(findings, fmt.Sprintf("identifier property %q must not be marked no-sync", idProp))
	}
	return findings
}

// Type is a compiled record type: the immutable attribute table shared by
// every entity of the type, including the flattened dependency map the
// validity aggregator subscribes through.
type Type struct {
	name     string
	idProp   string
	readOnly bool
	attrs    []compiledAttribute
	byProp   map[string]*compiledAttribute
	byKey    map[string]*compiledAttribute
	deps     map[string][]string
	depKeys  []string
}

type compiledAttribute struct {
	key       string
	property  string
	validator ValidatorFunc
	dependsOn []string
	def       any
	noSync    bool
}

// defaultValue resolves the declared default into a value safe to place in a
// fresh record. Function defaults are invoked, Canonical values are asked for
// their canonical form, everything else is cloned.
func (a *compiledAttribute) defaultValue() any {
	value := a.def
	if fn, ok := value.(func() any); ok {
		value = fn()
	}
	if value == nil {
		return nil
	}
	if c, ok := value.(Canonical); ok {
		return c.CanonicalForm()
	}
	return CloneValue(value)
}

// NewType compiles a definition into a Type. The definition is validated
// first; the error wraps the first finding reported by Check.
func NewType(d Definition) (*Type, error) {
	if findings := d.Check(); len(findings) > 0 {
		return nil, DefinitionError{Type: d.Name, Reason: findings[0]}
	}
	idProp := d.ID
	if idProp == "" {
		idProp = "id"
	}
	t := &Type{
		name:     d.Name,
		idProp:   idProp,
		readOnly: d.ReadOnly,
		attrs:    make([]compiledAttribute, len(d.Attributes)),
		byProp:   make(map[string]*compiledAttribute, len(d.Attributes)),
		byKey:    make(map[string]*compiledAttribute, len(d.Attributes)),
		deps:     make(map[string][]string, len(d.Attributes)),
	}
	for i, attr := range d.Attributes {
		key := attr.Key
		if key == "" {
			key = attr.Property
		}
		t.attrs[i] = compiledAttribute{
			key:       key,
			property:  attr.Property,
			validator: attr.Validator,
			dependsOn: append([]string(nil), attr.DependsOn...),
			def:       attr.Default,
			noSync:    attr.NoSync,
		}
		compiled := &t.attrs[i]
		t.byProp[attr.Property] = compiled
		t.byKey[key] = compiled
	}
	for i := range t.attrs {
		attr := &t.attrs[i]
		t.addDependent(attr.property, attr.property)
		for _, dep := range attr.dependsOn {
			t.addDependent(dep, attr.property)
		}
	}
	return t, nil
}

// MustType compiles a definition and panics on failure. Intended for fixed
// model tables declared at package init time.
func MustType(d Definition) *Type {
	t, err := NewType(d)
	if err != nil {
		panic(err)
	}
	return t
}

// addDependent records dependent as revalidated by changes to key, keeping
// each dependency list deduplicated and in first-registration order.
func (t *Type) addDependent(key, dependent string) {
	list, seen := t.deps[key]
	if !seen {
		t.depKeys = append(t.depKeys, key)
	}
	for _, existing := range list {
		if existing == dependent {
			return
		}
	}
	t.deps[key] = append(list, dependent)
}

// Name returns the record type name.
func (t *Type) Name() string { return t.name }

// ReadOnly reports whether entities of this type reject local writes.
func (t *Type) ReadOnly() bool { return t.readOnly }

// IDProperty returns the property acting as the record identifier.
func (t *Type) IDProperty() string { return t.idProp }

// idKey returns the wire key the identifier is stored under.
func (t *Type) idKey() string { return t.byProp[t.idProp].key }

// Properties returns the declared property names in declaration order.
func (t *Type) Properties() []string {
	props := make([]string, len(t.attrs))
	for i := range t.attrs {
		props[i] = t.attrs[i].property
	}
	return props
}

// WireKey resolves a property name to its wire key.
func (t *Type) WireKey(property string) (string, bool) {
	attr, ok := t.byProp[property]
	if !ok {
		return "", false
	}
	return attr.key, true
}

// Property resolves a wire key to its property name.
func (t *Type) Property(wireKey string) (string, bool) {
	attr, ok := t.byKey[wireKey]
	if !ok {
		return "", false
	}
	return attr.property, true
}

// Dependents returns a copy of the deduplicated list of properties that must
// revalidate when the given dependency key changes.
func (t *Type) Dependents(key string) []string {
	return append([]string(nil), t.deps[key]...)
}

// DependencyKeys returns every distinct dependency key in first-registration
// order. The validity aggregator subscribes to exactly these keys.
func (t *Type) DependencyKeys() []string {
	return append([]string(nil), t.depKeys...)
}

// Descriptor returns a serialisable snapshot of the compiled type.
func (t *Type) Descriptor() Descriptor {
	d := Descriptor{
		Name:     t.name,
		ID:       t.idProp,
		ReadOnly: t.readOnly,
	}
	d.Attributes = make([]AttributeDescriptor, len(t.attrs))
	for i := range t.attrs {
		attr := &t.attrs[i]
		d.Attributes[i] = AttributeDescriptor{
			Key:        attr.key,
			Property:   attr.property,
			DependsOn:  append([]string(nil), attr.dependsOn...),
			HasDefault: attr.def != nil,
			NoSync:     attr.noSync,
		}
	}
	return d
}

// Descriptor is a serialisable snapshot of a compiled record type, suitable
// for model manifests and presentation layers.
type Descriptor struct {
	Name       string                `json:"name"`
	ID         string                `json:"id,omitempty"`
	ReadOnly   bool                  `json:"read_only,omitempty"`
	Attributes []AttributeDescriptor `json:"attributes"`
}

// AttributeDescriptor mirrors one Attribute declaration without its runtime
// behaviour.
type AttributeDescriptor struct {
	Key        string   `json:"key"`
	Property   string   `json:"property"`
	DependsOn  []string `json:"depends_on,omitempty"`
	HasDefault bool     `json:"has_default,omitempty"`
	NoSync     bool     `json:"no_sync,omitempty"`
}

// Definition converts the descriptor back into a compilable definition. The
// resulting attributes carry no validators or defaults; the conversion exists
// so manifest tooling can reuse Check.
func (d Descriptor) Definition() Definition {
	def := Definition{Name: d.Name, ID: d.ID, ReadOnly: d.ReadOnly}
	def.Attributes = make([]Attribute, len(d.Attributes))
	for i, attr := range d.Attributes {
		def.Attributes[i] = Attribute{
			Key:       attr.Key,
			Property:  attr.Property,
			DependsOn: append([]string(nil), attr.DependsOn...),
			NoSync:    attr.NoSync,
		}
	}
	return def
}
