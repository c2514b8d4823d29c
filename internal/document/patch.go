package document

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/bokeh/bokeh-sub002/internal/events"
	"github.com/bokeh/bokeh-sub002/internal/model"
	"github.com/bokeh/bokeh-sub002/internal/wire"
)

// refSet accumulates the nodes a patch must define, in first-seen order.
type refSet struct {
	order []*model.Node
	seen  map[*model.Node]bool
}

func newRefSet() *refSet {
	return &refSet{seen: make(map[*model.Node]bool)}
}

func (r *refSet) add(nodes ...*model.Node) {
	for _, n := range nodes {
		if !r.seen[n] {
			r.seen[n] = true
			r.order = append(r.order, n)
		}
	}
}

func (r *refSet) encode() ([]wire.Node, error) {
	out := make([]wire.Node, 0, len(r.order))
	for _, n := range r.order {
		def, err := wire.EncodeNode(n)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

// CreatePatch encodes events as a wire patch. The references hold the
// definition of every node the receiver may not know yet: the transitive
// closure of each new value, and of each added root.
//
// Session callback events have no wire representation and are rejected.
func (d *Document) CreatePatch(evs []events.Event) (wire.Patch, error) {
	refs := newRefSet()
	out := wire.Patch{Events: make([]wire.Event, 0, len(evs))}
	for i, ev := range evs {
		we, err := encodeEvent(ev, refs)
		if err != nil {
			return wire.Patch{}, fmt.Errorf("create patch: event %d: %w", i, err)
		}
		out.Events = append(out.Events, we)
	}
	defs, err := refs.encode()
	if err != nil {
		return wire.Patch{}, fmt.Errorf("create patch: %w", err)
	}
	out.References = defs
	return out, nil
}

// CreatePatchJSON is CreatePatch followed by JSON encoding.
func (d *Document) CreatePatchJSON(evs []events.Event) ([]byte, error) {
	p, err := d.CreatePatch(evs)
	if err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

func encodeEvent(ev events.Event, refs *refSet) (wire.Event, error) {
	switch e := ev.(type) {
	case *events.ModelChanged:
		if hinted := events.HintEvent(e); hinted != nil {
			return encodeEvent(hinted, refs)
		}
		v := e.SerializableNew
		if v == nil {
			v = e.Node.SerializableValue(e.Attr)
		}
		data, err := model.MarshalValue(v)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", e.Node.ID(), e.Attr, err)
		}
		// The receiver already has the patched node, unless it is the
		// new value itself.
		self, _ := v.(*model.Node)
		for _, n := range model.CollectNodes(v) {
			if n != e.Node || self == e.Node {
				refs.add(n)
			}
		}
		return wire.ModelChanged{Model: wire.RefOf(e.Node), Attr: e.Attr, New: data}, nil

	case *events.ColumnDataChanged:
		cols, err := columnsOf(e.Node.SerializableValue(e.Attr))
		if err != nil {
			return nil, err
		}
		if e.Cols != nil {
			picked := make(map[string]model.Array, len(e.Cols))
			for _, name := range e.Cols {
				if col, ok := cols[name]; ok {
					picked[name] = col
				}
			}
			cols = picked
		}
		data, err := wire.EncodeColumns(cols)
		if err != nil {
			return nil, err
		}
		refs.add(columnRefs(cols)...)
		return wire.ColumnDataChanged{ColumnSource: wire.RefOf(e.Node), New: data, Cols: e.Cols}, nil

	case *events.ColumnsStreamed:
		data, err := wire.EncodeColumns(e.Data)
		if err != nil {
			return nil, err
		}
		refs.add(columnRefs(e.Data)...)
		return wire.ColumnsStreamed{ColumnSource: wire.RefOf(e.Node), Data: data, Rollover: e.Rollover}, nil

	case *events.ColumnsPatched:
		data, err := wire.EncodePatches(e.Patches)
		if err != nil {
			return nil, err
		}
		for _, ops := range e.Patches {
			for _, op := range ops {
				refs.add(model.CollectNodes(op.Value)...)
			}
		}
		return wire.ColumnsPatched{ColumnSource: wire.RefOf(e.Node), Patches: data}, nil

	case *events.RootAdded:
		refs.add(model.CollectNodes(e.Node)...)
		return wire.RootAdded{Model: wire.RefOf(e.Node)}, nil

	case *events.RootRemoved:
		return wire.RootRemoved{Model: wire.RefOf(e.Node)}, nil

	case *events.TitleChanged:
		return wire.TitleChanged{Title: e.Title}, nil

	case *events.SessionCallbackAdded, *events.SessionCallbackRemoved:
		return nil, invalidPatch("%s events have no wire representation", ev.Kind())

	default:
		return nil, invalidPatch("unknown event %T", ev)
	}
}

func columnsOf(v model.Value) (map[string]model.Array, error) {
	var obj model.Object
	switch val := v.(type) {
	case *model.ColumnData:
		obj = val.Snapshot().(model.Object)
	case *model.Dict:
		obj = val.Snapshot().(model.Object)
	case model.Object:
		obj = val
	default:
		return nil, model.NewInvalidValueError("column data must be a mapping, got %T", v)
	}
	out := make(map[string]model.Array, len(obj))
	for k, col := range obj {
		arr, ok := col.(model.Array)
		if !ok {
			if l, isList := col.(*model.List); isList {
				arr = l.Values()
			} else {
				return nil, model.NewInvalidValueError("column %q must be a sequence", k)
			}
		}
		out[k] = arr
	}
	return out, nil
}

func columnRefs(cols map[string]model.Array) []*model.Node {
	names := make([]string, 0, len(cols))
	for k := range cols {
		names = append(names, k)
	}
	slices.Sort(names)
	vals := make([]model.Value, len(names))
	for i, k := range names {
		vals[i] = cols[k]
	}
	return model.CollectNodes(vals...)
}

// ApplyPatch applies a peer's patch. Every write is tagged with origin.
//
// Application runs in three phases:
//  1. every referenced node unknown to the document is instantiated from
//     the catalog; known ids reuse the existing node
//  2. every attribute value and event is decoded and validated, including
//     column operations against the column lengths they will see
//  3. reference attributes are initialized (under a freeze), then events
//     are applied in order
//
// Any failure in the first two phases, such as an id that is neither
// attached nor defined by the patch, returns an error with the document
// unchanged.
func (d *Document) ApplyPatch(p wire.Patch, origin model.Origin) error {
	a := newApplier(d, origin)
	if err := a.instantiate(p.References); err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}
	if err := a.decodeReferences(p.References); err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}
	for i, ev := range p.Events {
		if err := a.decodeEvent(ev); err != nil {
			return fmt.Errorf("apply patch: event %d: %w", i, err)
		}
	}
	if err := a.commit(); err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}
	d.logger.Debug("patch applied",
		"origin", string(origin),
		"events", len(p.Events),
		"references", len(p.References),
		"created", len(a.created))
	return nil
}

// ApplyPatchJSON decodes and applies a JSON patch.
func (d *Document) ApplyPatchJSON(data []byte, origin model.Origin) error {
	var p wire.Patch
	if err := json.Unmarshal(data, &p); err != nil {
		if model.HasCode(err, model.ErrCodeInvalidPatch) {
			return fmt.Errorf("apply patch: %w", err)
		}
		return fmt.Errorf("apply patch: %w", invalidPatch("malformed patch: %v", err))
	}
	return d.ApplyPatch(p, origin)
}

type attrWrite struct {
	node  *model.Node
	attr  string
	value model.Value
}

type columnKey struct {
	node *model.Node
	attr string
}

// applier carries the state of one patch (or full document) application.
type applier struct {
	doc     *Document
	origin  model.Origin
	created map[string]*model.Node
	inits   []attrWrite
	ops     []func() error
	lengths map[columnKey]map[string]int
}

func newApplier(d *Document, origin model.Origin) *applier {
	return &applier{
		doc:     d,
		origin:  origin,
		created: make(map[string]*model.Node),
		lengths: make(map[columnKey]map[string]int),
	}
}

func (a *applier) resolve(id string) (*model.Node, bool) {
	if n, ok := a.doc.graph.ByID(id); ok {
		return n, true
	}
	n, ok := a.created[id]
	return n, ok
}

func (a *applier) instantiate(defs []wire.Node) error {
	for _, def := range defs {
		if n, ok := a.resolve(def.ID); ok {
			if n.TypeName() != def.Type {
				return invalidPatch("node %s is a %s, patch defines it as %s", def.ID, n.TypeName(), def.Type)
			}
			continue
		}
		n, err := a.doc.catalog.Instantiate(def.Type, def.ID)
		if err != nil {
			return fmt.Errorf("reference %s: %w", def.ID, err)
		}
		a.created[def.ID] = n
	}
	return nil
}

func (a *applier) decodeReferences(defs []wire.Node) error {
	for _, def := range defs {
		n, _ := a.resolve(def.ID)
		attrs := make([]string, 0, len(def.Attributes))
		for attr := range def.Attributes {
			attrs = append(attrs, attr)
		}
		slices.Sort(attrs)
		for _, attr := range attrs {
			v, err := a.decodeAttr(n, attr, def.Attributes[attr])
			if err != nil {
				return fmt.Errorf("reference %s: %w", def.ID, err)
			}
			a.inits = append(a.inits, attrWrite{node: n, attr: attr, value: v})
		}
	}
	return nil
}

// decodeAttr decodes a whole-attribute value, tracking the column lengths
// of columnar attributes.
func (a *applier) decodeAttr(n *model.Node, attr string, raw json.RawMessage) (model.Value, error) {
	if !n.Has(attr) {
		return nil, invalidPatch("type %s has no attribute %q", n.TypeName(), attr)
	}
	v, err := model.UnmarshalValue(raw, a.resolve)
	if err != nil {
		return nil, fmt.Errorf("attribute %q: %w", attr, err)
	}
	if n.Type().IsColumnar(attr) {
		cols, err := columnsOf(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", attr, err)
		}
		a.lengths[columnKey{n, attr}] = lengthsOf(cols)
	}
	return v, nil
}

func (a *applier) target(id string) (*model.Node, error) {
	if n, ok := a.resolve(id); ok {
		return n, nil
	}
	if a.doc.graph.WasFormer(id) {
		return nil, &model.Error{
			Code:       model.ErrCodeUnknownReference,
			Message:    "cannot apply patch to a node that is no longer in the document",
			NodeID:     id,
			DocumentID: a.doc.id,
		}
	}
	err := model.NewUnknownReferenceError(id, "patch event")
	err.DocumentID = a.doc.id
	return nil, err
}

// columnTarget resolves a column source to its node and columnar attribute.
func (a *applier) columnTarget(id string) (*model.Node, string, error) {
	n, err := a.target(id)
	if err != nil {
		return nil, "", err
	}
	for _, attr := range n.Type().Attrs() {
		if n.Type().IsColumnar(attr) {
			return n, attr, nil
		}
	}
	return nil, "", invalidPatch("type %s has no column data", n.TypeName())
}

// columnLengths returns the simulated column lengths of (n, attr) as seen
// by the next operation.
func (a *applier) columnLengths(n *model.Node, attr string) map[string]int {
	key := columnKey{n, attr}
	if lens, ok := a.lengths[key]; ok {
		return lens
	}
	lens := map[string]int{}
	if cd, ok := n.Get(attr).(*model.ColumnData); ok {
		lens = cd.Lengths()
	}
	a.lengths[key] = lens
	return lens
}

func (a *applier) decodeEvent(ev wire.Event) error {
	switch e := ev.(type) {
	case wire.ModelChanged:
		n, err := a.target(e.Model.ID)
		if err != nil {
			return err
		}
		v, err := a.decodeAttr(n, e.Attr, e.New)
		if err != nil {
			return err
		}
		a.ops = append(a.ops, func() error {
			return n.Set(e.Attr, v, model.WithOrigin(a.origin))
		})

	case wire.ColumnDataChanged:
		n, attr, err := a.columnTarget(e.ColumnSource.ID)
		if err != nil {
			return err
		}
		cols, err := wire.DecodeColumns(e.New, a.resolve)
		if err != nil {
			return err
		}
		lens := a.columnLengths(n, attr)
		for k, col := range cols {
			lens[k] = len(col)
		}
		a.ops = append(a.ops, func() error {
			return a.columnData(n, attr).Update(cols, model.WithOrigin(a.origin))
		})

	case wire.ColumnsStreamed:
		n, attr, err := a.columnTarget(e.ColumnSource.ID)
		if err != nil {
			return err
		}
		data, err := wire.DecodeColumns(e.Data, a.resolve)
		if err != nil {
			return err
		}
		lens := a.columnLengths(n, attr)
		if err := model.ValidateStream(lens, data); err != nil {
			return err
		}
		for k, col := range data {
			lens[k] += len(col)
			if e.Rollover != nil && *e.Rollover > 0 && lens[k] > *e.Rollover {
				lens[k] = *e.Rollover
			}
		}
		a.ops = append(a.ops, func() error {
			return a.columnData(n, attr).Stream(data, e.Rollover, a.origin)
		})

	case wire.ColumnsPatched:
		n, attr, err := a.columnTarget(e.ColumnSource.ID)
		if err != nil {
			return err
		}
		patches, err := wire.DecodePatches(e.Patches, a.resolve)
		if err != nil {
			return err
		}
		if err := model.ValidatePatches(patches, a.columnLengths(n, attr)); err != nil {
			return err
		}
		a.ops = append(a.ops, func() error {
			return a.columnData(n, attr).Patch(patches, a.origin)
		})

	case wire.RootAdded:
		n, err := a.target(e.Model.ID)
		if err != nil {
			return err
		}
		a.ops = append(a.ops, func() error {
			return a.doc.AddRoot(n, model.WithOrigin(a.origin))
		})

	case wire.RootRemoved:
		n, err := a.target(e.Model.ID)
		if err != nil {
			return err
		}
		a.ops = append(a.ops, func() error {
			return a.doc.RemoveRoot(n, model.WithOrigin(a.origin))
		})

	case wire.TitleChanged:
		a.ops = append(a.ops, func() error {
			a.doc.SetTitle(e.Title, model.WithOrigin(a.origin))
			return nil
		})

	default:
		return invalidPatch("unknown patch event %T", ev)
	}
	return nil
}

// columnData returns the table stored under attr, materializing an empty
// one when the attribute holds something else.
func (a *applier) columnData(n *model.Node, attr string) *model.ColumnData {
	if cd, ok := n.Get(attr).(*model.ColumnData); ok {
		return cd
	}
	// Cannot fail: attr is columnar and the value is an empty mapping.
	_ = n.Set(attr, model.Object{}, model.WithOrigin(a.origin))
	return n.Get(attr).(*model.ColumnData)
}

func (a *applier) commit() error {
	err := a.doc.graph.Freeze(func() error {
		for _, w := range a.inits {
			if err := w.node.Set(w.attr, w.value, model.WithOrigin(a.origin)); err != nil {
				return fmt.Errorf("initialize %s.%s: %w", w.node.ID(), w.attr, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, op := range a.ops {
		if err := op(); err != nil {
			return err
		}
	}
	return nil
}

func lengthsOf(cols map[string]model.Array) map[string]int {
	out := make(map[string]int, len(cols))
	for k, col := range cols {
		out[k] = len(col)
	}
	return out
}

func invalidPatch(format string, args ...any) *model.Error {
	return &model.Error{
		Code:    model.ErrCodeInvalidPatch,
		Message: fmt.Sprintf(format, args...),
	}
}
