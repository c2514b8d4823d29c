// Package wire defines the JSON shapes exchanged with peers: patches,
// node definitions and full documents.
//
// The encoding is fixed by the protocol. Events are discriminated by a
// "kind" field; node references inside values are {"id", "type"} objects.
// Attribute and event payloads are kept as json.RawMessage so the decoder
// can resolve references in a second pass, after every referenced node has
// been instantiated.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/bokeh/bokeh-sub002/internal/model"
)

// Ref is a node reference.
type Ref struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
}

// RefOf returns the reference to n.
func RefOf(n *model.Node) Ref {
	return Ref{ID: n.ID(), Type: n.TypeName(), Subtype: n.Type().Subtype}
}

// Node is a full node definition. Attributes hold only values that differ
// from the type defaults.
type Node struct {
	ID         string                     `json:"id"`
	Type       string                     `json:"type"`
	Subtype    string                     `json:"subtype,omitempty"`
	Attributes map[string]json.RawMessage `json:"attributes"`
}

// EncodeNode builds the definition of n from its non-default attributes,
// using the type's serializers.
func EncodeNode(n *model.Node) (Node, error) {
	out := Node{
		ID:         n.ID(),
		Type:       n.TypeName(),
		Subtype:    n.Type().Subtype,
		Attributes: make(map[string]json.RawMessage),
	}
	for _, attr := range n.NonDefaultAttrs() {
		data, err := model.MarshalValue(n.SerializableValue(attr))
		if err != nil {
			return Node{}, fmt.Errorf("node %s attribute %q: %w", n.ID(), attr, err)
		}
		out.Attributes[attr] = data
	}
	return out, nil
}

// Event is one entry of a patch's event list. The concrete types below are
// the only implementations.
type Event interface {
	EventKind() string
}

// ModelChanged sets one attribute.
type ModelChanged struct {
	Model Ref             `json:"model"`
	Attr  string          `json:"attr"`
	New   json.RawMessage `json:"new"`
}

// ColumnDataChanged replaces columns of a table.
type ColumnDataChanged struct {
	ColumnSource Ref             `json:"column_source"`
	New          json.RawMessage `json:"new"`
	Cols         []string        `json:"cols"`
}

// ColumnsStreamed appends rows to a table.
type ColumnsStreamed struct {
	ColumnSource Ref             `json:"column_source"`
	Data         json.RawMessage `json:"data"`
	Rollover     *int            `json:"rollover"`
}

// ColumnsPatched overwrites cells of a table.
type ColumnsPatched struct {
	ColumnSource Ref             `json:"column_source"`
	Patches      json.RawMessage `json:"patches"`
}

// RootAdded adds a document root.
type RootAdded struct {
	Model Ref `json:"model"`
}

// RootRemoved removes a document root.
type RootRemoved struct {
	Model Ref `json:"model"`
}

// TitleChanged sets the document title.
type TitleChanged struct {
	Title string `json:"title"`
}

func (ModelChanged) EventKind() string { return "ModelChanged" }
func (ColumnDataChanged) EventKind() string { return "ColumnDataChanged" }
func (ColumnsStreamed) EventKind() string { return "ColumnsStreamed" }
func (ColumnsPatched) EventKind() string { return "ColumnsPatched" }
func (RootAdded) EventKind() string { return "RootAdded" }
func (RootRemoved) EventKind() string { return "RootRemoved" }
func (TitleChanged) EventKind() string { return "TitleChanged" }

// Patch is the unit of synchronization.
type Patch struct {
	Events     []Event
	References []Node
}

type patchJSON struct {
	Events     []json.RawMessage `json:"events"`
	References []Node            `json:"references"`
}

// MarshalJSON emits {"events": [...], "references": [...]} with a "kind"
// field leading every event.
func (p Patch) MarshalJSON() ([]byte, error) {
	out := patchJSON{
		Events:     make([]json.RawMessage, 0, len(p.Events)),
		References: p.References,
	}
	if out.References == nil {
		out.References = []Node{}
	}
	for i, ev := range p.Events {
		data, err := MarshalEvent(ev)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		out.Events = append(out.Events, data)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a patch, dispatching each event on its "kind".
func (p *Patch) UnmarshalJSON(data []byte) error {
	var in patchJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	p.References = in.References
	p.Events = make([]Event, 0, len(in.Events))
	for i, raw := range in.Events {
		ev, err := UnmarshalEvent(raw)
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		p.Events = append(p.Events, ev)
	}
	return nil
}

// MarshalEvent encodes ev with its "kind" as the first field.
func MarshalEvent(ev Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	kind, err := json.Marshal(ev.EventKind())
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"kind":`)
	buf.Write(kind)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// UnmarshalEvent decodes one event.
func UnmarshalEvent(data []byte) (Event, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	var ev Event
	switch head.Kind {
	case "ModelChanged":
		var e ModelChanged
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		ev = e
	case "ColumnDataChanged":
		var e ColumnDataChanged
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		ev = e
	case "ColumnsStreamed":
		var e ColumnsStreamed
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		ev = e
	case "ColumnsPatched":
		var e ColumnsPatched
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		ev = e
	case "RootAdded":
		var e RootAdded
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		ev = e
	case "RootRemoved":
		var e RootRemoved
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		ev = e
	case "TitleChanged":
		var e TitleChanged
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		ev = e
	default:
		return nil, &model.Error{
			Code:    model.ErrCodeInvalidPatch,
			Message: fmt.Sprintf("unknown event kind %q", head.Kind),
		}
	}
	return ev, nil
}

// Roots is the roots section of a full document.
type Roots struct {
	RootIDs    []string `json:"root_ids"`
	References []Node   `json:"references"`
}

// Document is the full-document representation.
type Document struct {
	Title   string `json:"title"`
	Version string `json:"version"`
	Roots   Roots  `json:"roots"`
}
