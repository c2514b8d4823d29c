package model

import (
	"fmt"
	"maps"
	"slices"
)

// ColumnData is a mutation-notifying columnar table: a mapping from column
// name to an Array of cells.
//
// Whole-column writes (Set, Update) notify with a ColumnsReplaced hint.
// Stream and Patch are the optimized paths: they notify with a hint that
// carries only the delta, so a peer need not receive the whole table.
type ColumnData struct {
	baseContainer
	cols map[string]Array
}

func (*ColumnData) value() {}

// NewColumnData creates a table from the given columns. Column slices are
// copied.
func NewColumnData(cols map[string]Array) *ColumnData {
	cd := &ColumnData{cols: make(map[string]Array, len(cols))}
	for k, col := range cols {
		cd.cols[k] = append(Array{}, col...)
	}
	return cd
}

// columnDataFrom converts an Object of Arrays into a table.
func columnDataFrom(obj Object) (*ColumnData, error) {
	cd := &ColumnData{cols: make(map[string]Array, len(obj))}
	for k, v := range obj {
		arr, ok := plain(v).(Array)
		if !ok {
			return nil, NewInvalidValueError("column %q is not a sequence", k)
		}
		cd.cols[k] = append(Array{}, arr...)
	}
	return cd, nil
}

// Snapshot returns a copy of the table as an Object. Each column is copied
// so the snapshot never observes later in-place streaming.
func (c *ColumnData) Snapshot() Value {
	obj := make(Object, len(c.cols))
	for k, col := range c.cols {
		obj[k] = append(Array{}, col...)
	}
	return obj
}

func (c *ColumnData) snapshotCols() map[string]Array {
	out := make(map[string]Array, len(c.cols))
	for k, col := range c.cols {
		out[k] = append(Array{}, col...)
	}
	return out
}

// Column returns a copy of the named column.
func (c *ColumnData) Column(name string) (Array, bool) {
	col, ok := c.cols[name]
	if !ok {
		return nil, false
	}
	return append(Array{}, col...), true
}

// Columns returns the column names in sorted order.
func (c *ColumnData) Columns() []string {
	names := make([]string, 0, len(c.cols))
	for k := range c.cols {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of columns.
func (c *ColumnData) Len() int {
	return len(c.cols)
}

func (c *ColumnData) mutate(h Hint, origin Origin, fn func()) error {
	old := c.Snapshot()
	saved := c.snapshotCols()
	fn()
	return c.notify(old, h, origin, c, func() Value {
		rejected := c.Snapshot()
		c.cols = saved
		return rejected
	})
}

// Set replaces one column.
func (c *ColumnData) Set(name string, col Array, opts ...SetOption) error {
	return c.Update(map[string]Array{name: col}, opts...)
}

// Update replaces the given columns.
func (c *ColumnData) Update(cols map[string]Array, opts ...SetOption) error {
	names := make([]string, 0, len(cols))
	for k := range cols {
		names = append(names, k)
	}
	slices.Sort(names)
	return c.mutate(ColumnsReplaced{Cols: names}, OriginOf(opts...), func() {
		for k, col := range cols {
			c.cols[k] = append(Array{}, col...)
		}
	})
}

// Delete removes a column. The change is reported as a whole-value change.
func (c *ColumnData) Delete(name string, opts ...SetOption) error {
	if _, ok := c.cols[name]; !ok {
		return NewInvalidValueError("column %q not found", name)
	}
	return c.mutate(nil, OriginOf(opts...), func() { delete(c.cols, name) })
}

// Stream appends new rows. Every existing column must be present in data
// (unless the table is empty) and all streamed columns must have the same
// length. When rollover is set and positive, each updated column keeps only
// its last rollover cells.
func (c *ColumnData) Stream(data map[string]Array, rollover *int, origin Origin) error {
	if err := c.ValidateStream(data); err != nil {
		return err
	}
	streamed := make(map[string]Array, len(data))
	for k, col := range data {
		streamed[k] = append(Array{}, col...)
	}
	h := ColumnsStreamed{Data: streamed, Rollover: rollover}
	return c.mutate(h, origin, func() {
		for k, col := range streamed {
			merged := append(append(Array{}, c.cols[k]...), col...)
			if rollover != nil && *rollover > 0 && len(merged) > *rollover {
				merged = merged[len(merged)-*rollover:]
			}
			c.cols[k] = merged
		}
	})
}

// ValidateStream checks that data can be streamed onto the table.
func (c *ColumnData) ValidateStream(data map[string]Array) error {
	return ValidateStream(c.Lengths(), data)
}

// Lengths returns the length of every column.
func (c *ColumnData) Lengths() map[string]int {
	lengths := make(map[string]int, len(c.cols))
	for k, col := range c.cols {
		lengths[k] = len(col)
	}
	return lengths
}

// ValidateStream checks that data can be streamed onto a table whose
// columns have the given lengths.
func ValidateStream(lengths map[string]int, data map[string]Array) error {
	if len(lengths) > 0 {
		for _, k := range slices.Sorted(maps.Keys(lengths)) {
			if _, ok := data[k]; !ok {
				return NewInvalidValueError("must stream updates to all existing columns (missing: %s)", k)
			}
		}
		for _, k := range sortedColumnKeys(data) {
			if _, ok := lengths[k]; !ok {
				return NewInvalidValueError("cannot stream to unknown column %q", k)
			}
		}
	}
	n := -1
	for _, k := range sortedColumnKeys(data) {
		if n >= 0 && len(data[k]) != n {
			return NewInvalidValueError("all streaming column updates must be the same length")
		}
		n = len(data[k])
	}
	return nil
}

// Patch overwrites cells in place. Operations apply in order, so a later
// operation wins where ranges overlap. All operations are validated before
// any cell changes.
func (c *ColumnData) Patch(patches Patches, origin Origin) error {
	if err := ValidatePatches(patches, c.Lengths()); err != nil {
		return err
	}
	h := ColumnsPatched{Patches: patches}
	return c.mutate(h, origin, func() {
		for _, name := range sortedPatchKeys(patches) {
			col := c.cols[name]
			for _, op := range patches[name] {
				positions, _ := op.Index.Positions(len(col))
				if op.Index.Slice == nil {
					col[positions[0]] = op.Value
					continue
				}
				vals := plain(op.Value).(Array)
				for i, pos := range positions {
					col[pos] = vals[i]
				}
			}
		}
	})
}

// ValidatePatches checks patch operations against column lengths.
func ValidatePatches(patches Patches, lengths map[string]int) error {
	for _, name := range sortedPatchKeys(patches) {
		n, ok := lengths[name]
		if !ok {
			return NewInvalidValueError("cannot patch unknown column %q", name)
		}
		for _, op := range patches[name] {
			positions, err := op.Index.Positions(n)
			if err != nil {
				return fmt.Errorf("column %q: %w", name, err)
			}
			if op.Index.Slice == nil {
				continue
			}
			vals, ok := plain(op.Value).(Array)
			if !ok {
				return NewInvalidValueError("column %q: slice patch %s needs a sequence of values", name, op.Index)
			}
			if len(vals) != len(positions) {
				return NewInvalidValueError("column %q: slice patch %s selects %d cells but has %d values",
					name, op.Index, len(positions), len(vals))
			}
		}
	}
	return nil
}

func sortedColumnKeys(m map[string]Array) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func sortedPatchKeys(p Patches) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// String renders the table for debugging.
func (c *ColumnData) String() string {
	return fmt.Sprintf("ColumnData%v", ToGo(c))
}
