package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/bokeh/bokeh-sub002/internal/callbacks"
	"github.com/bokeh/bokeh-sub002/internal/catalog"
	"github.com/bokeh/bokeh-sub002/internal/document"
	"github.com/bokeh/bokeh-sub002/internal/events"
	"github.com/bokeh/bokeh-sub002/internal/journal"
	"github.com/bokeh/bokeh-sub002/internal/model"
	"github.com/bokeh/bokeh-sub002/internal/testutil"
)

// PeerOrigin is the default origin of apply steps.
const PeerOrigin model.Origin = "peer"

// Harness runs one scenario against a fresh document.
type Harness struct {
	doc     *document.Document
	nodes   map[string]*model.Node
	labels  map[string]string // node id -> label
	journal *journal.Journal
	clock   *testutil.StepClock // trace seq, separate from the journal's
	logger  *slog.Logger
	result  *Result
	err     error
}

// Run executes a scenario and returns its result. Each run uses a fresh
// document, an in-memory journal and deterministic ids, so traces are
// identical across runs.
//
// Run returns an error only when the scenario cannot be set up. Failing
// steps and assertions are reported in the result.
//
// Execution flow:
//  1. Compile the scenario's catalog
//  2. Create the declared nodes and add the roots
//  3. Snapshot into the journal and start tracing
//  4. Run the steps, releasing any hold at the end
//  5. Evaluate assertions
func Run(s *Scenario) (*Result, error) {
	return RunWithLogger(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with a caller-supplied logger.
func RunWithLogger(s *Scenario, logger *slog.Logger) (*Result, error) {
	ctx := context.Background()

	res, err := catalog.Load(s.Catalog,
		catalog.WithCatalogOptions(model.WithIDGenerator(model.NewSequentialIDs("n", 1000))))
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	opts := []document.Option{document.WithCatalog(res.Catalog), document.WithLogger(logger)}
	if s.Title != "" {
		opts = append(opts, document.WithTitle(s.Title))
	}
	doc, err := document.New(opts...)
	if err != nil {
		return nil, err
	}
	doc.Lock()
	defer doc.Unlock()

	j, err := journal.Open(":memory:",
		journal.WithClock(testutil.NewStepClock(time.Millisecond)),
		journal.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	h := &Harness{
		doc:     doc,
		nodes:   make(map[string]*model.Node, len(s.Nodes)),
		labels:  make(map[string]string, len(s.Nodes)),
		journal: j,
		clock:   testutil.NewStepClock(time.Millisecond),
		logger:  logger.With("scenario", s.Name),
		result:  NewResult(),
	}
	if err := h.setup(s); err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}

	rec, err := j.Record(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("start journal: %w", err)
	}
	doc.OnChange(h.trace)

	for i, step := range s.Steps {
		h.runStep(i, step)
	}
	if doc.HoldValue() != callbacks.HoldNone {
		doc.Unhold()
	}
	if h.err != nil {
		return nil, h.err
	}
	if err := rec.Err(); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	actx := &AssertionContext{Ctx: ctx, Harness: h}
	for _, msg := range EvaluateAssertions(h.result, s.Assertions, actx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// setup creates every declared node, then sets attributes so that
// references may point forward, then adds the roots.
func (h *Harness) setup(s *Scenario) error {
	cat := h.doc.Catalog()
	for _, def := range s.Nodes {
		n, err := cat.New(def.Type)
		if err != nil {
			return fmt.Errorf("node %s: %w", def.Label, err)
		}
		h.nodes[def.Label] = n
		h.labels[n.ID()] = def.Label
	}
	for _, def := range s.Nodes {
		n := h.nodes[def.Label]
		for _, attr := range sortedKeys(def.Attrs) {
			v, err := h.value(def.Attrs[attr])
			if err != nil {
				return fmt.Errorf("node %s.%s: %w", def.Label, attr, err)
			}
			if err := n.Set(attr, v); err != nil {
				return fmt.Errorf("node %s.%s: %w", def.Label, attr, err)
			}
		}
	}
	for _, label := range s.Roots {
		if err := h.doc.AddRoot(h.nodes[label]); err != nil {
			return fmt.Errorf("root %s: %w", label, err)
		}
	}
	return nil
}

// trace records one delivered event with its single-event patch.
func (h *Harness) trace(ev events.Event) {
	if !ev.Patchable() || h.err != nil {
		return
	}
	data, err := h.doc.CreatePatchJSON([]events.Event{ev})
	if err != nil {
		h.err = fmt.Errorf("trace %s: %w", ev.Kind(), err)
		return
	}
	patch, err := decodeJSON(data)
	if err != nil {
		h.err = fmt.Errorf("trace %s: %w", ev.Kind(), err)
		return
	}
	kind, node, attr := traceTarget(ev)
	h.result.Trace = append(h.result.Trace, TraceEvent{
		Seq:    h.clock.Next(),
		Kind:   kind.String(),
		Origin: string(ev.Source()),
		Node:   node,
		Attr:   attr,
		Patch:  patch,
	})
}

// runStep executes one step and checks its expected error. A step that is
// expected to fail must leave the document unchanged.
func (h *Harness) runStep(i int, step Step) {
	var before []byte
	if step.ExpectError != "" {
		var err error
		if before, err = h.doc.ToJSON(); err != nil {
			h.result.AddError(fmt.Sprintf("steps[%d]: encode document before step: %v", i, err))
			return
		}
	}

	err := h.apply(step)
	switch {
	case step.ExpectError == "" && err != nil:
		h.result.AddError(fmt.Sprintf("steps[%d]: unexpected error: %v", i, err))
	case step.ExpectError != "" && err == nil:
		h.result.AddError(fmt.Sprintf("steps[%d]: expected error %s, got none", i, step.ExpectError))
	case step.ExpectError != "" && !model.HasCode(err, model.ErrorCode(step.ExpectError)):
		h.result.AddError(fmt.Sprintf("steps[%d]: expected error %s, got: %v", i, step.ExpectError, err))
	case step.ExpectError != "":
		after, err := h.doc.ToJSON()
		if err != nil {
			h.result.AddError(fmt.Sprintf("steps[%d]: encode document after step: %v", i, err))
		} else if string(before) != string(after) {
			h.result.AddError(fmt.Sprintf("steps[%d]: failed step changed the document", i))
		}
	}
	h.logger.Debug("step done", "index", i, "error", err)
}

func (h *Harness) apply(step Step) error {
	origin := model.Origin(step.Origin)
	setOpts := []model.SetOption{model.WithOrigin(origin)}

	switch {
	case step.Set != nil:
		n, v, err := h.operands(step.Set)
		if err != nil {
			return err
		}
		return n.Set(step.Set.Attr, v, setOpts...)

	case step.Append != nil:
		n, v, err := h.operands(step.Append)
		if err != nil {
			return err
		}
		list, ok := n.Get(step.Append.Attr).(*model.List)
		if !ok {
			return fmt.Errorf("%s.%s is not a list", step.Append.Node, step.Append.Attr)
		}
		return list.Append(v)

	case step.Update != nil:
		cd, cols, err := h.columns(step.Update)
		if err != nil {
			return err
		}
		return cd.Update(cols, setOpts...)

	case step.Stream != nil:
		cd, cols, err := h.columns(step.Stream)
		if err != nil {
			return err
		}
		return cd.Stream(cols, step.Stream.Rollover, origin)

	case step.Patch != nil:
		cd, err := h.columnData(step.Patch.Node, step.Patch.Attr)
		if err != nil {
			return err
		}
		patches, err := h.patches(step.Patch.Patches)
		if err != nil {
			return err
		}
		return cd.Patch(patches, origin)

	case step.AddRoot != "":
		n, err := h.node(step.AddRoot)
		if err != nil {
			return err
		}
		return h.doc.AddRoot(n, setOpts...)

	case step.RemoveRoot != "":
		n, err := h.node(step.RemoveRoot)
		if err != nil {
			return err
		}
		return h.doc.RemoveRoot(n, setOpts...)

	case step.Title != nil:
		h.doc.SetTitle(*step.Title, setOpts...)
		return nil

	case step.Hold != "":
		policy, err := callbacks.ParseHoldPolicy(step.Hold)
		if err != nil {
			return err
		}
		return h.doc.Hold(policy)

	case step.Unhold:
		h.doc.Unhold()
		return nil

	case step.Apply != "":
		if origin == model.NoOrigin {
			origin = PeerOrigin
		}
		return h.doc.ApplyPatchJSON([]byte(step.Apply), origin)
	}
	return fmt.Errorf("empty step")
}

func (h *Harness) node(label string) (*model.Node, error) {
	n, ok := h.nodes[label]
	if !ok {
		return nil, fmt.Errorf("unknown node label %q", label)
	}
	return n, nil
}

func (h *Harness) operands(op *SetOp) (*model.Node, model.Value, error) {
	n, err := h.node(op.Node)
	if err != nil {
		return nil, nil, err
	}
	v, err := h.value(op.Value)
	if err != nil {
		return nil, nil, err
	}
	return n, v, nil
}

// columnData returns the table held by label.attr. An empty attr selects
// the first columnar attribute of the node's type.
func (h *Harness) columnData(label, attr string) (*model.ColumnData, error) {
	n, err := h.node(label)
	if err != nil {
		return nil, err
	}
	if attr == "" {
		for _, a := range n.Type().Attrs() {
			if n.Type().IsColumnar(a) {
				attr = a
				break
			}
		}
	}
	cd, ok := n.Get(attr).(*model.ColumnData)
	if !ok {
		return nil, fmt.Errorf("%s.%s is not columnar", label, attr)
	}
	return cd, nil
}

func (h *Harness) columns(op *ColumnOp) (*model.ColumnData, map[string]model.Array, error) {
	cd, err := h.columnData(op.Node, op.Attr)
	if err != nil {
		return nil, nil, err
	}
	cols := make(map[string]model.Array, len(op.Data))
	for name, raw := range op.Data {
		v, err := h.value(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("column %s: %w", name, err)
		}
		cols[name] = v.(model.Array)
	}
	return cd, cols, nil
}

func (h *Harness) patches(in map[string][]PatchEntry) (model.Patches, error) {
	out := make(model.Patches, len(in))
	for col, entries := range in {
		for i, e := range entries {
			var idx model.PatchIndex
			switch {
			case e.Index != nil && e.Span == nil:
				idx = model.At(*e.Index)
			case e.Index == nil && len(e.Span) == 2:
				idx = model.Span(e.Span[0], e.Span[1])
			default:
				return nil, fmt.Errorf("patch %s[%d]: exactly one of index or a two-element span is required", col, i)
			}
			v, err := h.value(e.Value)
			if err != nil {
				return nil, fmt.Errorf("patch %s[%d]: %w", col, i, err)
			}
			out[col] = append(out[col], model.PatchOp{Index: idx, Value: v})
		}
	}
	return out, nil
}

// value converts plain YAML data to a model value, resolving "@label"
// node references.
func (h *Harness) value(v any) (model.Value, error) {
	switch val := v.(type) {
	case string:
		if label, ok := strings.CutPrefix(val, "@"); ok {
			return h.node(label)
		}
		return model.String(val), nil
	case []any:
		arr := make(model.Array, len(val))
		for i, elem := range val {
			conv, err := h.value(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		obj := make(model.Object, len(val))
		for k, elem := range val {
			conv, err := h.value(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = conv
		}
		return obj, nil
	default:
		return model.FromGo(v)
	}
}

// label returns the scenario label of a node id, or the id itself.
func (h *Harness) label(id string) string {
	if l, ok := h.labels[id]; ok {
		return l
	}
	return id
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
