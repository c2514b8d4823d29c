package model

import (
	"fmt"
	"math"
	"slices"
)

// Value is a sealed interface for attribute values.
// Only Null, Bool, Int, Float, String, Array, Object, *Node, *List, *Dict
// and *ColumnData implement it.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents an unset or JSON null value.
type Null struct{}

func (Null) value() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// Int represents an integer value.
type Int int64

func (Int) value() {}

// Float represents a floating point value.
// Non-finite floats cannot be serialized.
type Float float64

func (Float) value() {}

// String represents a string value.
type String string

func (String) value() {}

// Array is a plain, non-notifying sequence.
// Assigning an Array to a node attribute wraps it in a *List.
type Array []Value

func (Array) value() {}

// Object is a plain, non-notifying mapping with string keys.
// Assigning an Object to a node attribute wraps it in a *Dict.
type Object map[string]Value

func (Object) value() {}

// SortedKeys returns the object's keys in byte order.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// plain unwraps containers to their plain counterparts. Other values are
// returned unchanged. The result shares element storage with the container.
func plain(v Value) Value {
	switch val := v.(type) {
	case nil:
		return Null{}
	case *List:
		return Array(val.items)
	case *Dict:
		return Object(val.items)
	case *ColumnData:
		obj := make(Object, len(val.cols))
		for k, col := range val.cols {
			obj[k] = col
		}
		return obj
	default:
		return v
	}
}

// Equal reports whether two values are structurally equal.
// Containers compare equal to their plain counterparts, nodes compare by
// identity, and integers compare equal to floats of the same magnitude.
func Equal(a, b Value) bool {
	a, b = plain(a), plain(b)
	switch x := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Int:
		switch y := b.(type) {
		case Int:
			return x == y
		case Float:
			return float64(x) == float64(y)
		}
		return false
	case Float:
		switch y := b.(type) {
		case Float:
			return x == y || (math.IsNaN(float64(x)) && math.IsNaN(float64(y)))
		case Int:
			return float64(x) == float64(y)
		}
		return false
	case *Node:
		y, ok := b.(*Node)
		return ok && x == y
	case Array:
		y, ok := b.(Array)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Object:
		y, ok := b.(Object)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// FromGo converts native Go values (as produced by encoding/json or
// yaml.v3 decoding) into a Value.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return Float(val), nil
		}
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return Int(int64(val)), nil
		}
		return Float(val), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = conv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToGo converts a value into plain Go data. Nodes become their id strings.
func ToGo(v Value) any {
	switch val := plain(v).(type) {
	case Null:
		return nil
	case Bool:
		return bool(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case String:
		return string(val)
	case *Node:
		return val.ID()
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	default:
		return nil
	}
}

// clone returns a deep copy of plain aggregates. Nodes and scalars are
// shared; containers are copied into their plain form.
func clone(v Value) Value {
	switch val := plain(v).(type) {
	case Array:
		out := make(Array, len(val))
		for i, elem := range val {
			out[i] = clone(elem)
		}
		return out
	case Object:
		out := make(Object, len(val))
		for k, elem := range val {
			out[k] = clone(elem)
		}
		return out
	default:
		return val
	}
}
