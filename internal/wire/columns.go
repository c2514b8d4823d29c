package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/bokeh/bokeh-sub002/internal/model"
)

// sliceJSON is the wire form of a slice index.
type sliceJSON struct {
	Start *int `json:"start"`
	Stop  *int `json:"stop"`
	Step  *int `json:"step"`
}

// EncodeColumns encodes column data as {"col": [...]}.
func EncodeColumns(cols map[string]model.Array) (json.RawMessage, error) {
	obj := make(model.Object, len(cols))
	for k, col := range cols {
		obj[k] = col
	}
	return model.MarshalValue(obj)
}

// DecodeColumns decodes {"col": [...]} resolving node references.
func DecodeColumns(data json.RawMessage, resolve model.Resolver) (map[string]model.Array, error) {
	v, err := model.UnmarshalValue(data, resolve)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(model.Object)
	if !ok {
		return nil, invalidPatch("column data must be an object")
	}
	out := make(map[string]model.Array, len(obj))
	for k, col := range obj {
		arr, ok := col.(model.Array)
		if !ok {
			return nil, invalidPatch("column %q must be a sequence", k)
		}
		out[k] = arr
	}
	return out, nil
}

// EncodePatches encodes patches as {"col": [[index, value], ...]} where an
// index is an integer or a {"start", "stop", "step"} object.
func EncodePatches(p model.Patches) (json.RawMessage, error) {
	out := make(map[string][][2]any, len(p))
	for col, ops := range p {
		entries := make([][2]any, 0, len(ops))
		for _, op := range ops {
			var idx any = op.Index.Pos
			if s := op.Index.Slice; s != nil {
				idx = sliceJSON{Start: s.Start, Stop: s.Stop, Step: s.Step}
			}
			val, err := model.EncodeValue(op.Value)
			if err != nil {
				return nil, fmt.Errorf("patch %q: %w", col, err)
			}
			entries = append(entries, [2]any{idx, val})
		}
		out[col] = entries
	}
	return json.Marshal(out)
}

// DecodePatches decodes the wire form produced by EncodePatches.
func DecodePatches(data json.RawMessage, resolve model.Resolver) (model.Patches, error) {
	var raw map[string][][2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, invalidPatch("malformed patches: %v", err)
	}
	out := make(model.Patches, len(raw))
	for _, col := range slices.Sorted(maps.Keys(raw)) {
		ops := make([]model.PatchOp, 0, len(raw[col]))
		for i, entry := range raw[col] {
			idx, err := decodeIndex(entry[0])
			if err != nil {
				return nil, fmt.Errorf("patch %q[%d]: %w", col, i, err)
			}
			val, err := model.UnmarshalValue(entry[1], resolve)
			if err != nil {
				return nil, fmt.Errorf("patch %q[%d]: %w", col, i, err)
			}
			ops = append(ops, model.PatchOp{Index: idx, Value: val})
		}
		out[col] = ops
	}
	return out, nil
}

func decodeIndex(data json.RawMessage) (model.PatchIndex, error) {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		var s sliceJSON
		if err := json.Unmarshal(data, &s); err != nil {
			return model.PatchIndex{}, invalidPatch("malformed slice index %s", data)
		}
		return model.PatchIndex{Slice: &model.Slice{Start: s.Start, Stop: s.Stop, Step: s.Step}}, nil
	}
	var pos int
	if err := json.Unmarshal(data, &pos); err != nil || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return model.PatchIndex{}, invalidPatch("patch index must be an integer or a slice, got %s", data)
	}
	return model.At(pos), nil
}

func invalidPatch(format string, args ...any) *model.Error {
	return &model.Error{
		Code:    model.ErrCodeInvalidPatch,
		Message: fmt.Sprintf(format, args...),
	}
}
