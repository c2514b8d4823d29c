package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
)

// Resolver looks up a node by id while decoding.
type Resolver func(id string) (*Node, bool)

// RefJSON is the wire form of a node reference inside a value.
func RefJSON(n *Node) map[string]any {
	ref := map[string]any{"id": n.id, "type": n.typ.Name}
	if n.typ.Subtype != "" {
		ref["subtype"] = n.typ.Subtype
	}
	return ref
}

// EncodeValue converts v into plain Go data ready for encoding/json.
// Nodes become {"id", "type"} references. Non-finite floats are rejected
// because JSON cannot carry them.
func EncodeValue(v Value) (any, error) {
	switch val := plain(v).(type) {
	case Null:
		return nil, nil
	case Bool:
		return bool(val), nil
	case Int:
		return int64(val), nil
	case Float:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, NewInvalidValueError("cannot encode non-finite float %v", f)
		}
		return f, nil
	case String:
		return string(val), nil
	case *Node:
		return RefJSON(val), nil
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			enc, err := EncodeValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = enc
		}
		return out, nil
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			enc, err := EncodeValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			out[k] = enc
		}
		return out, nil
	default:
		return nil, NewInvalidValueError("cannot encode value of type %T", v)
	}
}

// MarshalValue encodes v as JSON. Object keys are emitted in sorted order.
func MarshalValue(v Value) ([]byte, error) {
	enc, err := EncodeValue(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(enc)
}

// DecodeValue converts decoded JSON data into a Value. Objects whose keys
// are a subset of id, type and subtype (and include id) are node
// references and must resolve; an unresolvable id is an unknown-reference
// error. Integral numbers decode as Int.
func DecodeValue(raw any, resolve Resolver) (Value, error) {
	switch val := raw.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		if i, err := strconv.ParseInt(string(val), 10, 64); err == nil {
			return Int(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, NewInvalidValueError("invalid number %q", val)
		}
		return Float(f), nil
	case float64, int, int64:
		return FromGo(val)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			dec, err := DecodeValue(elem, resolve)
			if err != nil {
				return nil, err
			}
			arr[i] = dec
		}
		return arr, nil
	case map[string]any:
		if id, ok := refID(val); ok {
			if resolve != nil {
				if n, found := resolve(id); found {
					return n, nil
				}
			}
			return nil, NewUnknownReferenceError(id, "attribute value")
		}
		obj := make(Object, len(val))
		for k, elem := range val {
			dec, err := DecodeValue(elem, resolve)
			if err != nil {
				return nil, err
			}
			obj[k] = dec
		}
		return obj, nil
	default:
		return nil, NewInvalidValueError("cannot decode value of type %T", raw)
	}
}

// UnmarshalValue decodes JSON bytes into a Value.
func UnmarshalValue(data []byte, resolve Resolver) (Value, error) {
	raw, err := DecodeJSON(data)
	if err != nil {
		return nil, err
	}
	return DecodeValue(raw, resolve)
}

// DecodeJSON parses data keeping numbers as json.Number so integers keep
// full precision.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return raw, nil
}

// RefIDs returns the ids of every node reference inside decoded JSON data,
// in document order.
func RefIDs(raw any) []string {
	var ids []string
	stack := []any{raw}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch val := top.(type) {
		case []any:
			for i := len(val) - 1; i >= 0; i-- {
				stack = append(stack, val[i])
			}
		case map[string]any:
			if id, ok := refID(val); ok {
				ids = append(ids, id)
				continue
			}
			sorted := slices.Sorted(maps.Keys(val))
			for i := len(sorted) - 1; i >= 0; i-- {
				stack = append(stack, val[sorted[i]])
			}
		}
	}
	return ids
}

func refID(m map[string]any) (string, bool) {
	id, ok := m["id"].(string)
	if !ok {
		return "", false
	}
	for k := range m {
		switch k {
		case "id", "type", "subtype":
		default:
			return "", false
		}
	}
	return id, true
}
