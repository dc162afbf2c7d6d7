package record

import "fmt"

// AlreadyCommittedError reports a commit of a record that a registry already
// tracks under a store key.
type AlreadyCommittedError struct {
	Type string
	Key  StoreKey
}

func (e AlreadyCommittedError) Error() string {
	return fmt.Sprintf("record: %s already committed under store key %d", e.Type, e.Key)
}

// NotEditableError reports a mutation of a record that no longer accepts
// local writes, either because its type is read only or because the record
// has been destroyed or discarded.
type NotEditableError struct {
	Type   string
	Reason string
}

func (e NotEditableError) Error() string {
	return fmt.Sprintf("record: %s is not editable: %s", e.Type, e.Reason)
}

// UnknownAttributeError reports access to a property the record type does not
// declare.
type UnknownAttributeError struct {
	Type     string
	Property string
}

func (e UnknownAttributeError) Error() string {
	return fmt.Sprintf("record: %s declares no attribute %q", e.Type, e.Property)
}

// TransientMaterializeError reports an attempt to materialise a record that
// has never been committed and therefore has no identity to resolve in
// another registry.
type TransientMaterializeError struct {
	Type string
}

func (e TransientMaterializeError) Error() string {
	return fmt.Sprintf("record: transient %s cannot be materialised", e.Type)
}

// DefinitionError reports an invalid attribute table found while compiling a
// record type definition.
type DefinitionError struct {
	Type   string
	Reason string
}

func (e DefinitionError) Error() string {
	return fmt.Sprintf("record: invalid definition for %s: %s", e.Type, e.Reason)
}
