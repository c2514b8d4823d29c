package harness

import (
	"github.com/bokeh/bokeh-sub002/internal/events"
)

// TraceEvent is one outbound change, in delivery order.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Kind   string `json:"kind"`
	Origin string `json:"origin,omitempty"`
	// Node and Attr identify the changed node and attribute, when the
	// event has them.
	Node string `json:"node,omitempty"`
	Attr string `json:"attr,omitempty"`
	// Patch is the decoded wire patch for the event alone.
	Patch any `json:"patch"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step and assertion succeeded.
	Pass bool `json:"pass"`

	// Trace holds every patchable event delivered during the steps.
	Trace []TraceEvent `json:"trace"`

	// Errors holds step and assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// traceTarget returns the wire kind and the node/attribute an event
// touches. Hinted model changes report their hinted kind.
func traceTarget(ev events.Event) (kind events.Kind, node, attr string) {
	if mc, ok := ev.(*events.ModelChanged); ok {
		if hinted := events.HintEvent(mc); hinted != nil {
			ev = hinted
		}
	}
	switch e := ev.(type) {
	case *events.ModelChanged:
		return e.Kind(), e.Node.ID(), e.Attr
	case *events.ColumnDataChanged:
		return e.Kind(), e.Node.ID(), e.Attr
	case *events.ColumnsStreamed:
		return e.Kind(), e.Node.ID(), e.Attr
	case *events.ColumnsPatched:
		return e.Kind(), e.Node.ID(), e.Attr
	case *events.RootAdded:
		return e.Kind(), e.Node.ID(), ""
	case *events.RootRemoved:
		return e.Kind(), e.Node.ID(), ""
	default:
		return ev.Kind(), "", ""
	}
}
