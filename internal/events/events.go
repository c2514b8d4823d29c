// Package events defines the closed set of document change events.
//
// Event is a sealed interface: only the types in this package implement
// it, so every switch over events in the codec can be exhaustive. Events
// are pointers because combination mutates the earlier event in place.
package events

import "github.com/bokeh/bokeh-sub002/internal/model"

// Kind discriminates event types. String returns the wire "kind".
type Kind int

const (
	KindModelChanged Kind = iota
	KindColumnDataChanged
	KindColumnsStreamed
	KindColumnsPatched
	KindRootAdded
	KindRootRemoved
	KindTitleChanged
	KindSessionCallbackAdded
	KindSessionCallbackRemoved
)

var kindNames = [...]string{
	KindModelChanged:           "ModelChanged",
	KindColumnDataChanged:      "ColumnDataChanged",
	KindColumnsStreamed:        "ColumnsStreamed",
	KindColumnsPatched:         "ColumnsPatched",
	KindRootAdded:              "RootAdded",
	KindRootRemoved:            "RootRemoved",
	KindTitleChanged:           "TitleChanged",
	KindSessionCallbackAdded:   "SessionCallbackAdded",
	KindSessionCallbackRemoved: "SessionCallbackRemoved",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Unknown"
	}
	return kindNames[k]
}

// ParseKind maps a wire kind back to a Kind.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return 0, false
}

// Event is a change to a document.
type Event interface {
	Kind() Kind
	// Doc returns the document the event belongs to.
	Doc() model.Document
	// Source returns the origin tag of the write that produced the event.
	Source() model.Origin
	// Invoke runs the deferred per-node callbacks, if any.
	Invoke()
	// Combine absorbs next into the receiver when delivering the receiver
	// alone is equivalent to delivering both in order.
	Combine(next Event) bool
	// Patchable reports whether the event has a wire representation.
	Patchable() bool

	event() // Sealed - only this package implements Event
}

// Base carries the fields every event has.
type Base struct {
	Document model.Document
	Origin   model.Origin
	Invoker  func()
}

func (b *Base) Doc() model.Document { return b.Document }
func (b *Base) Source() model.Origin { return b.Origin }
func (b *Base) Combine(Event) bool { return false }
func (b *Base) Patchable() bool { return true }
func (*Base) event() {}

// Invoke runs the deferred invocation once.
func (b *Base) Invoke() {
	if b.Invoker != nil {
		b.Invoker()
	}
}

// ModelChanged reports that an attribute of a node changed, either by
// assignment or by in-place mutation of a container value. When Hint is
// set the change can be transmitted as the cheaper hinted event instead of
// re-sending New.
type ModelChanged struct {
	Base
	Node            *model.Node
	Attr            string
	Old             model.Value
	New             model.Value
	SerializableNew model.Value
	Hint            model.Hint
}

func (*ModelChanged) Kind() Kind { return KindModelChanged }

// ColumnDataChanged reports that some columns of a table were replaced.
type ColumnDataChanged struct {
	Base
	Node *model.Node
	Attr string
	// New holds the full table; Cols names the columns that changed
	// (nil means all).
	New  model.Value
	Cols []string
}

func (*ColumnDataChanged) Kind() Kind { return KindColumnDataChanged }

// ColumnsStreamed reports rows appended to a table.
type ColumnsStreamed struct {
	Base
	Node     *model.Node
	Attr     string
	Data     map[string]model.Array
	Rollover *int
}

func (*ColumnsStreamed) Kind() Kind { return KindColumnsStreamed }

// ColumnsPatched reports cells overwritten in a table.
type ColumnsPatched struct {
	Base
	Node    *model.Node
	Attr    string
	Patches model.Patches
}

func (*ColumnsPatched) Kind() Kind { return KindColumnsPatched }

// RootAdded reports a new document root.
type RootAdded struct {
	Base
	Node *model.Node
}

func (*RootAdded) Kind() Kind { return KindRootAdded }

// RootRemoved reports a removed document root.
type RootRemoved struct {
	Base
	Node *model.Node
}

func (*RootRemoved) Kind() Kind { return KindRootRemoved }

// TitleChanged reports a new document title.
type TitleChanged struct {
	Base
	Title string
}

func (*TitleChanged) Kind() Kind { return KindTitleChanged }

// Callback is the identity of a session callback.
type Callback interface {
	CallbackID() string
}

// SessionCallbackAdded reports a scheduled session callback. It has no wire
// representation; the session layer uses it to arm timers.
type SessionCallbackAdded struct {
	Base
	Callback Callback
}

func (*SessionCallbackAdded) Kind() Kind { return KindSessionCallbackAdded }
func (*SessionCallbackAdded) Patchable() bool { return false }

// SessionCallbackRemoved reports a revoked session callback.
type SessionCallbackRemoved struct {
	Base
	Callback Callback
}

func (*SessionCallbackRemoved) Kind() Kind { return KindSessionCallbackRemoved }
func (*SessionCallbackRemoved) Patchable() bool { return false }

// HintEvent converts the hint of a ModelChanged into the corresponding
// hinted event. It returns nil when the event carries no hint.
func HintEvent(ev *ModelChanged) Event {
	switch h := ev.Hint.(type) {
	case model.ColumnsReplaced:
		return &ColumnDataChanged{Base: ev.Base, Node: ev.Node, Attr: ev.Attr, New: ev.New, Cols: h.Cols}
	case model.ColumnsStreamed:
		return &ColumnsStreamed{Base: ev.Base, Node: ev.Node, Attr: ev.Attr, Data: h.Data, Rollover: h.Rollover}
	case model.ColumnsPatched:
		return &ColumnsPatched{Base: ev.Base, Node: ev.Node, Attr: ev.Attr, Patches: h.Patches}
	default:
		return nil
	}
}
