package record

import (
	"encoding/json"
	"reflect"
)

// Canonical is implemented by structured default values that can present a
// canonical JSON-compatible form of themselves. Defaults implementing
// Canonical are materialised through CanonicalForm instead of generic
// cloning, so a shared template value never leaks mutable state into a
// record.
type Canonical interface {
	CanonicalForm() any
}

// CloneMap deep copies a wire data mapping so callers cannot mutate shared
// state. Nil maps clone to nil.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	clone := make(map[string]any, len(m))
	for key, value := range m {
		clone[key] = CloneValue(value)
	}
	return clone
}

// CloneValue deep copies supported JSON-compatible values to prevent shared
// references between callers. Scalars pass through, maps, slices and arrays
// are copied recursively, and unsupported kinds are returned as-is.
func CloneValue(value any) any {
	if value == nil {
		return nil
	}
	switch typed := value.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, uintptr,
		float32, float64,
		json.Number:
		return typed
	}

	source := reflect.ValueOf(value)

	switch source.Kind() {
	case reflect.Map:
		if source.IsNil() || source.Type().Key().Kind() != reflect.String {
			return value
		}
		clone := reflect.MakeMapWithSize(source.Type(), source.Len())
		iter := source.MapRange()
		for iter.Next() {
			clone.SetMapIndex(iter.Key(), cloneIntoType(iter.Value(), source.Type().Elem()))
		}
		return clone.Interface()
	case reflect.Slice:
		if source.IsNil() {
			return value
		}
		clone := reflect.MakeSlice(source.Type(), source.Len(), source.Len())
		for i := 0; i < source.Len(); i++ {
			clone.Index(i).Set(cloneIntoType(source.Index(i), source.Type().Elem()))
		}
		return clone.Interface()
	case reflect.Array:
		clone := reflect.New(source.Type()).Elem()
		for i := 0; i < source.Len(); i++ {
			clone.Index(i).Set(cloneIntoType(source.Index(i), source.Type().Elem()))
		}
		return clone.Interface()
	default:
		return value
	}
}

// cloneIntoType deep copies the provided value and converts it to the target
// type.
func cloneIntoType(value reflect.Value, target reflect.Type) reflect.Value {
	if !value.IsValid() || (value.Kind() == reflect.Interface && value.IsNil()) {
		return reflect.Zero(target)
	}

	cloned := CloneValue(value.Interface())
	if cloned == nil {
		return reflect.Zero(target)
	}

	clonedValue := reflect.ValueOf(cloned)
	if !clonedValue.Type().AssignableTo(target) {
		if clonedValue.Type().ConvertibleTo(target) {
			return clonedValue.Convert(target)
		}
		return reflect.Zero(target)
	}
	return clonedValue
}
