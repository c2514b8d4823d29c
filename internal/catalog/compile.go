// Package catalog compiles CUE model definitions into a model.Catalog.
//
// A definition file declares node types under the top-level "model" struct:
//
//	model: Plot: {
//		subtype: "Figure"
//		attrs: {
//			title:     string | *""
//			width:     int | *600
//			renderers: []
//			toolbar:   null
//		}
//	}
//
//	model: Source: {
//		attrs: selected: []
//		columnar: ["data"]
//	}
//
// Every attribute must resolve to a concrete default. Columnar attributes
// need not be listed under attrs; they default to an empty table.
package catalog

import (
	"fmt"
	"math"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/bokeh/bokeh-sub002/internal/model"
)

// CompileType parses a single CUE type definition. The type name is taken
// from the value's last path selector.
func CompileType(v cue.Value) (*model.Type, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	t := &model.Type{
		Defaults: make(map[string]model.Value),
		Columnar: make(map[string]bool),
	}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		t.Name = labels[len(labels)-1].String()
	}
	if t.Name == "" {
		return nil, &CompileError{Field: "model", Message: "type name is required", Pos: v.Pos()}
	}

	if sub := v.LookupPath(cue.ParsePath("subtype")); sub.Exists() {
		s, err := sub.String()
		if err != nil {
			return nil, &CompileError{Field: t.Name + ".subtype", Message: "subtype must be a string", Pos: sub.Pos()}
		}
		t.Subtype = s
	}

	if err := parseAttrs(t, v); err != nil {
		return nil, err
	}
	if err := parseColumnar(t, v); err != nil {
		return nil, err
	}
	return t, nil
}

func parseAttrs(t *model.Type, v cue.Value) error {
	attrs := v.LookupPath(cue.ParsePath("attrs"))
	if !attrs.Exists() {
		return nil
	}
	iter, err := attrs.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		def, err := toValue(iter.Value(), t.Name+".attrs."+name)
		if err != nil {
			return err
		}
		t.Defaults[name] = def
	}
	return nil
}

func parseColumnar(t *model.Type, v cue.Value) error {
	col := v.LookupPath(cue.ParsePath("columnar"))
	if !col.Exists() {
		return nil
	}
	field := t.Name + ".columnar"
	iter, err := col.List()
	if err != nil {
		return &CompileError{Field: field, Message: "columnar must be a list of attribute names", Pos: col.Pos()}
	}
	for iter.Next() {
		name, err := iter.Value().String()
		if err != nil {
			return &CompileError{Field: field, Message: "columnar entries must be strings", Pos: iter.Value().Pos()}
		}
		if def, ok := t.Defaults[name]; ok {
			if _, isObj := def.(model.Object); !isObj {
				return &CompileError{
					Field:   field,
					Message: fmt.Sprintf("columnar attribute %q must default to a struct", name),
					Pos:     iter.Value().Pos(),
				}
			}
		}
		t.Columnar[name] = true
	}
	return nil
}

// toValue converts a concrete CUE value to a model value. Disjunctions with a
// marked default resolve to that default.
func toValue(v cue.Value, field string) (model.Value, error) {
	if d, ok := v.Default(); ok {
		v = d
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, &CompileError{Field: field, Message: "default must be concrete", Pos: v.Pos()}
	}

	switch v.Kind() {
	case cue.NullKind:
		return model.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return model.Bool(b), nil
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return model.Int(i), nil
	case cue.FloatKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, &CompileError{Field: field, Message: "non-finite float", Pos: v.Pos()}
		}
		return model.Float(f), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return model.String(s), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := model.Array{}
		for i := 0; iter.Next(); i++ {
			elem, err := toValue(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := model.Object{}
		for iter.Next() {
			elem, err := toValue(iter.Value(), field+"."+iter.Label())
			if err != nil {
				return nil, err
			}
			obj[iter.Label()] = elem
		}
		return obj, nil
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError is a definition error with its source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError keeps the first CUE error that carries a position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
