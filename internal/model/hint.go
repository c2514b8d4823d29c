package model

import "fmt"

// Hint is a compact description of a container delta. A change carrying a
// hint can be synchronized without re-sending the whole container.
type Hint interface {
	hint()
}

// ColumnsReplaced reports that the listed columns were replaced wholesale.
type ColumnsReplaced struct {
	Cols []string
}

func (ColumnsReplaced) hint() {}

// ColumnsStreamed reports an append-only extension of columns.
// Rollover, when set and positive, bounds every updated column's length
// by truncating from the front.
type ColumnsStreamed struct {
	Data     map[string]Array
	Rollover *int
}

func (ColumnsStreamed) hint() {}

// ColumnsPatched reports random-access overwrites per column, applied in
// slice order.
type ColumnsPatched struct {
	Patches Patches
}

func (ColumnsPatched) hint() {}

// Patches maps a column name to its ordered overwrite operations.
type Patches map[string][]PatchOp

// PatchOp overwrites the positions selected by Index. For a single position
// Value is the new element; for a slice Value must be an Array with one
// element per selected position.
type PatchOp struct {
	Index PatchIndex
	Value Value
}

// PatchIndex selects either one position or a slice of positions.
type PatchIndex struct {
	Pos   int
	Slice *Slice
}

// At selects a single position.
func At(pos int) PatchIndex {
	return PatchIndex{Pos: pos}
}

// Span selects positions [start, stop) with step 1.
func Span(start, stop int) PatchIndex {
	return PatchIndex{Slice: &Slice{Start: &start, Stop: &stop}}
}

// Slice mirrors an extended slice: nil bounds mean "from the edge" and a
// nil step means 1.
type Slice struct {
	Start *int
	Stop  *int
	Step  *int
}

// Positions resolves the slice against a sequence of the given length.
// Negative bounds count from the end and are clamped to the sequence.
func (s Slice) Positions(length int) ([]int, error) {
	step := 1
	if s.Step != nil {
		step = *s.Step
	}
	if step == 0 {
		return nil, NewInvalidValueError("slice step cannot be zero")
	}
	var start, stop int
	if step > 0 {
		start, stop = 0, length
	} else {
		start, stop = length-1, -1
	}
	if s.Start != nil {
		start = clampBound(*s.Start, length, step)
	}
	if s.Stop != nil {
		stop = clampBound(*s.Stop, length, step)
	}
	var out []int
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, i)
		}
	}
	return out, nil
}

func clampBound(b, length, step int) int {
	if b < 0 {
		b += length
		if b < 0 {
			if step < 0 {
				return -1
			}
			return 0
		}
	}
	if b >= length {
		if step < 0 {
			return length - 1
		}
		return length
	}
	return b
}

// Positions resolves the index against a sequence of the given length.
func (p PatchIndex) Positions(length int) ([]int, error) {
	if p.Slice != nil {
		return p.Slice.Positions(length)
	}
	pos := p.Pos
	if pos < 0 {
		pos += length
	}
	if pos < 0 || pos >= length {
		return nil, NewInvalidValueError("patch index %d out of range for length %d", p.Pos, length)
	}
	return []int{pos}, nil
}

// String renders the index in slice notation.
func (p PatchIndex) String() string {
	if p.Slice == nil {
		return fmt.Sprintf("%d", p.Pos)
	}
	f := func(b *int) string {
		if b == nil {
			return ""
		}
		return fmt.Sprintf("%d", *b)
	}
	if p.Slice.Step != nil {
		return fmt.Sprintf("%s:%s:%s", f(p.Slice.Start), f(p.Slice.Stop), f(p.Slice.Step))
	}
	return fmt.Sprintf("%s:%s", f(p.Slice.Start), f(p.Slice.Stop))
}
