package model

import (
	"fmt"
	"slices"
)

// Origin tags a write with the peer that caused it. Patches applied with an
// origin re-emit events carrying the same origin, so the sender can discard
// its own echo.
type Origin string

// NoOrigin marks a locally originated write.
const NoOrigin Origin = ""

// Document is the view of an owning document that nodes need: its id for
// ownership errors, and a sink for attribute changes.
//
// NotifyChange is called after the attribute already holds new. invoke runs
// the node's per-attribute callbacks; the document decides when (immediately,
// or deferred while events are held). A non-nil error means the change was
// rejected and the node rolls the write back.
type Document interface {
	ID() string
	NotifyChange(n *Node, attr string, old, new Value, hint Hint, origin Origin, invoke func()) error
}

// AttrCallback observes a single attribute of a single node.
type AttrCallback func(attr string, old, new Value)

// Node is a vertex of the document graph: a typed bag of attributes with a
// stable id and at most one owning document.
type Node struct {
	id        string
	typ       *Type
	attrs     map[string]Value
	doc       Document
	callbacks map[string][]AttrCallback
}

func (*Node) value() {}

// NewNode creates a detached node of type t. Use Catalog.New to get a fresh id.
func NewNode(t *Type, id string) *Node {
	return &Node{
		id:    id,
		typ:   t,
		attrs: make(map[string]Value),
	}
}

// ID returns the node id. Ids are never reused within a process.
func (n *Node) ID() string {
	return n.id
}

// Type returns the node's type descriptor.
func (n *Node) Type() *Type {
	return n.typ
}

// TypeName returns the catalog name of the node's type.
func (n *Node) TypeName() string {
	return n.typ.Name
}

// Document returns the owning document, or nil when detached.
func (n *Node) Document() Document {
	return n.doc
}

// Name returns the "name" attribute, or "" when unset.
func (n *Node) Name() string {
	if s, ok := n.Get("name").(String); ok {
		return string(s)
	}
	return ""
}

// Tags returns the "tags" attribute.
func (n *Node) Tags() Array {
	if arr, ok := plain(n.Get("tags")).(Array); ok {
		return arr
	}
	return nil
}

// Has reports whether the node's type declares attr.
func (n *Node) Has(attr string) bool {
	return n.typ.Has(attr)
}

// Get returns the value of attr: the explicit value if one was set,
// otherwise the type default. Aggregate defaults are materialized as a
// per-node container on first access so in-place mutation never leaks into
// the shared default. Undeclared attributes read as Null.
func (n *Node) Get(attr string) Value {
	if v, ok := n.attrs[attr]; ok {
		return v
	}
	if !n.typ.Has(attr) {
		return Null{}
	}
	d := n.typ.Default(attr)
	switch d.(type) {
	case Array, Object:
		c, err := n.wrap(attr, clone(d))
		if err != nil {
			return d
		}
		if ct, ok := c.(Container); ok {
			ct.register(n, attr)
		}
		n.attrs[attr] = c
		return c
	}
	return d
}

// SetOption configures a single attribute write.
type SetOption func(*setConfig)

type setConfig struct {
	origin Origin
}

// WithOrigin tags the write with origin.
func WithOrigin(o Origin) SetOption {
	return func(c *setConfig) {
		c.origin = o
	}
}

// OriginOf returns the origin selected by opts.
func OriginOf(opts ...SetOption) Origin {
	cfg := setConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg.origin
}

// Set assigns attr. Plain Arrays and Objects are wrapped in notifying
// containers; an existing container is stored as-is and gains this node as
// an additional owner. Assigning a value equal to the current one is a
// no-op. If the owning document rejects the change the previous value is
// restored and the error returned.
func (n *Node) Set(attr string, v Value, opts ...SetOption) error {
	if !n.typ.Has(attr) {
		return NewInvalidValueError("type %s has no attribute %q", n.typ.Name, attr)
	}
	origin := OriginOf(opts...)

	nv, err := n.wrap(attr, v)
	if err != nil {
		return err
	}
	current := n.Get(attr)
	if Equal(current, nv) {
		return nil
	}
	old := snapshotOf(current)

	n.replace(attr, current, nv)
	if err := n.fire(attr, old, nv, nil, origin); err != nil {
		n.replace(attr, nv, current)
		return err
	}
	return nil
}

// replace swaps the stored value, moving container ownership.
func (n *Node) replace(attr string, from, to Value) {
	if c, ok := from.(Container); ok {
		c.unregister(n, attr)
	}
	if c, ok := to.(Container); ok {
		c.register(n, attr)
	}
	n.attrs[attr] = to
}

func (n *Node) wrap(attr string, v Value) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Array:
		return NewList(val...), nil
	case Object:
		if n.typ.IsColumnar(attr) {
			return columnDataFrom(val)
		}
		return NewDict(val), nil
	case *Dict:
		if n.typ.IsColumnar(attr) {
			return columnDataFrom(val.items)
		}
		return val, nil
	case *ColumnData:
		if !n.typ.IsColumnar(attr) {
			return NewDict(plain(val).(Object)), nil
		}
		return val, nil
	default:
		return v, nil
	}
}

// snapshotOf returns a non-notifying copy of containers and v otherwise.
func snapshotOf(v Value) Value {
	if c, ok := v.(Container); ok {
		return c.Snapshot()
	}
	return v
}

// notifyMutated is called by a container owned under attr after an in-place
// mutation.
func (n *Node) notifyMutated(attr string, old Value, h Hint, origin Origin) error {
	return n.fire(attr, old, n.attrs[attr], h, origin)
}

func (n *Node) fire(attr string, old, new Value, h Hint, origin Origin) error {
	invoke := func() {
		for _, cb := range slices.Clone(n.callbacks[attr]) {
			cb(attr, old, new)
		}
	}
	if n.doc == nil {
		invoke()
		return nil
	}
	return n.doc.NotifyChange(n, attr, old, new, h, origin, invoke)
}

// OnChange registers fn to run whenever attr changes.
func (n *Node) OnChange(attr string, fn AttrCallback) {
	if n.callbacks == nil {
		n.callbacks = make(map[string][]AttrCallback)
	}
	n.callbacks[attr] = append(n.callbacks[attr], fn)
}

// SerializableValue returns the wire representation of attr, using the
// type's serializer when it declares one.
func (n *Node) SerializableValue(attr string) Value {
	v := n.Get(attr)
	if s, ok := n.typ.Serializers[attr]; ok && s != nil {
		return s(n, v)
	}
	return v
}

// NonDefaultAttrs returns, in sorted order, the attributes whose value
// differs from the type default.
func (n *Node) NonDefaultAttrs() []string {
	var out []string
	for attr, v := range n.attrs {
		if !Equal(v, n.typ.Default(attr)) {
			out = append(out, attr)
		}
	}
	slices.Sort(out)
	return out
}

// AttachDocument records d as the owner. A node owned by a different
// document cannot be attached.
func (n *Node) AttachDocument(d Document) error {
	if n.doc != nil && n.doc != d {
		return NewOwnershipError(n.id, d.ID(), n.doc.ID())
	}
	n.doc = d
	return nil
}

// DetachDocument clears the owner.
func (n *Node) DetachDocument() {
	n.doc = nil
}

// String renders the node as Type(id).
func (n *Node) String() string {
	return fmt.Sprintf("%s(id=%q)", n.typ.Name, n.id)
}
