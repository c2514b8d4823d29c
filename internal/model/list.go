package model

import (
	"fmt"
	"slices"
)

// List is a mutation-notifying sequence.
//
// Reads are transparent: a List compares equal to the Array it holds.
// Every mutating method snapshots the old contents, mutates, then notifies
// all owners. Methods that fail validation mutate nothing and notify no one.
// If an owner rejects the change (e.g. an ownership violation when a node
// from another document is inserted) the contents are restored and the
// error is returned.
type List struct {
	baseContainer
	items Array
}

func (*List) value() {}

// NewList creates a List holding a copy of vals.
func NewList(vals ...Value) *List {
	return &List{items: append(Array(nil), vals...)}
}

// Snapshot returns a shallow copy of the current elements.
func (l *List) Snapshot() Value {
	return append(Array{}, l.items...)
}

// Len returns the number of elements.
func (l *List) Len() int {
	return len(l.items)
}

// At returns the element at i. Negative indexes count from the end.
func (l *List) At(i int) (Value, error) {
	idx, err := l.index(i)
	if err != nil {
		return nil, err
	}
	return l.items[idx], nil
}

// Values returns a copy of the elements.
func (l *List) Values() Array {
	return append(Array{}, l.items...)
}

func (l *List) index(i int) (int, error) {
	if i < 0 {
		i += len(l.items)
	}
	if i < 0 || i >= len(l.items) {
		return 0, NewInvalidValueError("list index %d out of range for length %d", i, len(l.items))
	}
	return i, nil
}

func (l *List) bounds(i, j int) (int, int) {
	n := len(l.items)
	if i < 0 {
		i = max(i+n, 0)
	}
	if j < 0 {
		j = max(j+n, 0)
	}
	i, j = min(i, n), min(j, n)
	if j < i {
		j = i
	}
	return i, j
}

// mutate runs fn under the snapshot/notify protocol.
func (l *List) mutate(origin Origin, fn func()) error {
	old := append(Array{}, l.items...)
	fn()
	return l.notify(old, nil, origin, l, func() Value {
		rejected := append(Array{}, l.items...)
		l.items = append(Array{}, old...)
		return rejected
	})
}

// Set replaces the element at i.
func (l *List) Set(i int, v Value) error {
	idx, err := l.index(i)
	if err != nil {
		return err
	}
	return l.mutate(NoOrigin, func() { l.items[idx] = v })
}

// SetSlice replaces elements [i, j) with vals; the list grows or shrinks
// when len(vals) differs from the slice width.
func (l *List) SetSlice(i, j int, vals ...Value) error {
	i, j = l.bounds(i, j)
	return l.mutate(NoOrigin, func() {
		l.items = slices.Replace(l.items, i, j, vals...)
	})
}

// Delete removes the element at i.
func (l *List) Delete(i int) error {
	idx, err := l.index(i)
	if err != nil {
		return err
	}
	return l.mutate(NoOrigin, func() { l.items = slices.Delete(l.items, idx, idx+1) })
}

// DeleteSlice removes elements [i, j).
func (l *List) DeleteSlice(i, j int) error {
	i, j = l.bounds(i, j)
	return l.mutate(NoOrigin, func() { l.items = slices.Delete(l.items, i, j) })
}

// Append adds vals to the end.
func (l *List) Append(vals ...Value) error {
	return l.mutate(NoOrigin, func() { l.items = append(l.items, vals...) })
}

// Extend adds every element of vals to the end.
func (l *List) Extend(vals Array) error {
	return l.Append(vals...)
}

// Repeat replaces the contents with n concatenated copies (n <= 0 empties).
func (l *List) Repeat(n int) error {
	return l.mutate(NoOrigin, func() {
		if n <= 0 {
			l.items = Array{}
			return
		}
		l.items = slices.Repeat(l.items, n)
	})
}

// Insert places v before position i. Out-of-range positions clamp to the
// ends of the list.
func (l *List) Insert(i int, v Value) error {
	i, _ = l.bounds(i, i)
	return l.mutate(NoOrigin, func() { l.items = slices.Insert(l.items, i, v) })
}

// Pop removes and returns the element at i.
func (l *List) Pop(i int) (Value, error) {
	idx, err := l.index(i)
	if err != nil {
		return nil, err
	}
	v := l.items[idx]
	if err := l.mutate(NoOrigin, func() { l.items = slices.Delete(l.items, idx, idx+1) }); err != nil {
		return nil, err
	}
	return v, nil
}

// Remove deletes the first element equal to v.
func (l *List) Remove(v Value) error {
	idx := slices.IndexFunc(l.items, func(e Value) bool { return Equal(e, v) })
	if idx < 0 {
		return NewInvalidValueError("list.Remove: value not in list")
	}
	return l.mutate(NoOrigin, func() { l.items = slices.Delete(l.items, idx, idx+1) })
}

// Reverse reverses the list in place.
func (l *List) Reverse() error {
	return l.mutate(NoOrigin, func() { slices.Reverse(l.items) })
}

// Sort sorts the list in place with a stable sort.
func (l *List) Sort(cmp func(a, b Value) int) error {
	return l.mutate(NoOrigin, func() { slices.SortStableFunc(l.items, cmp) })
}

// String renders the list for debugging.
func (l *List) String() string {
	return fmt.Sprintf("List%v", ToGo(l))
}
