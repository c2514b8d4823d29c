package model

import (
	"fmt"
	"maps"
)

// Dict is a mutation-notifying mapping with string keys.
// Reads are transparent: a Dict compares equal to the Object it holds.
type Dict struct {
	baseContainer
	items Object
}

func (*Dict) value() {}

// NewDict creates a Dict holding a shallow copy of obj.
func NewDict(obj Object) *Dict {
	d := &Dict{items: make(Object, len(obj))}
	maps.Copy(d.items, obj)
	return d
}

// Snapshot returns a shallow copy of the current entries.
func (d *Dict) Snapshot() Value {
	return maps.Clone(d.items)
}

func (d *Dict) snapshot() Object {
	out := make(Object, len(d.items))
	maps.Copy(out, d.items)
	return out
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	return len(d.items)
}

// Get returns the value stored under key.
func (d *Dict) Get(key string) (Value, bool) {
	v, ok := d.items[key]
	return v, ok
}

// Keys returns the keys in sorted order.
func (d *Dict) Keys() []string {
	return d.items.SortedKeys()
}

func (d *Dict) mutate(fn func()) error {
	old := d.snapshot()
	fn()
	return d.notify(old, nil, NoOrigin, d, func() Value {
		rejected := d.snapshot()
		d.items = maps.Clone(old)
		return rejected
	})
}

// Set stores v under key.
func (d *Dict) Set(key string, v Value) error {
	return d.mutate(func() { d.items[key] = v })
}

// Delete removes key; deleting a missing key is an error.
func (d *Dict) Delete(key string) error {
	if _, ok := d.items[key]; !ok {
		return NewInvalidValueError("dict.Delete: key %q not found", key)
	}
	return d.mutate(func() { delete(d.items, key) })
}

// Update stores every entry of obj.
func (d *Dict) Update(obj Object) error {
	return d.mutate(func() { maps.Copy(d.items, obj) })
}

// Pop removes key and returns its value.
func (d *Dict) Pop(key string) (Value, error) {
	v, ok := d.items[key]
	if !ok {
		return nil, NewInvalidValueError("dict.Pop: key %q not found", key)
	}
	if err := d.mutate(func() { delete(d.items, key) }); err != nil {
		return nil, err
	}
	return v, nil
}

// PopItem removes and returns the entry with the greatest key.
func (d *Dict) PopItem() (string, Value, error) {
	if len(d.items) == 0 {
		return "", nil, NewInvalidValueError("dict.PopItem: dictionary is empty")
	}
	keys := d.Keys()
	key := keys[len(keys)-1]
	v, err := d.Pop(key)
	return key, v, err
}

// Clear removes every entry.
func (d *Dict) Clear() error {
	return d.mutate(func() { clear(d.items) })
}

// SetDefault returns the value under key, storing v first if key is absent.
// No notification happens when key is already present.
func (d *Dict) SetDefault(key string, v Value) (Value, error) {
	if cur, ok := d.items[key]; ok {
		return cur, nil
	}
	if err := d.mutate(func() { d.items[key] = v }); err != nil {
		return nil, err
	}
	return v, nil
}

// String renders the dict for debugging.
func (d *Dict) String() string {
	return fmt.Sprintf("Dict%v", ToGo(d))
}
