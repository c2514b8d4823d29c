package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/bokeh/bokeh-sub002/internal/document"
	"github.com/bokeh/bokeh-sub002/internal/model"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", i+1, ev.Kind)
			if ev.Node != "" {
				fmt.Fprintf(&buf, " %s", ev.Node)
			}
			if ev.Attr != "" {
				fmt.Fprintf(&buf, ".%s", ev.Attr)
			}
			if ev.Origin != "" {
				fmt.Fprintf(&buf, " (from %s)", ev.Origin)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// AssertionContext gives assertions access to the final document state.
type AssertionContext struct {
	Ctx     context.Context
	Harness *Harness
}

// EvaluateAssertions runs every assertion and returns the failure
// messages, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result.Trace, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertEventCount:
		return assertEventCount(trace, a)
	case AssertEventOrder:
		return assertEventOrder(trace, a)
	case AssertTraceContains:
		return assertTraceContains(trace, a, actx.Harness)
	case AssertFinalAttr:
		return assertFinalAttr(a, actx.Harness)
	case AssertRoots:
		return assertRoots(a, actx.Harness)
	case AssertTitle:
		if got := actx.Harness.doc.Title(); got != a.Expect {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%q", a.Expect), Actual: fmt.Sprintf("%q", got)}
		}
		return nil
	case AssertReplayConsistent:
		return assertReplayConsistent(actx)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// assertEventCount checks that exactly Count events of Kind were traced.
func assertEventCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Kind == a.Kind {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d %s events", a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertEventOrder checks that the kinds appear as a subsequence of the
// trace. Other events may come between them.
func assertEventOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next < len(a.Kinds) && ev.Kind == a.Kinds[next] {
			next++
		}
	}
	if next < len(a.Kinds) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("events in order: %v", a.Kinds),
			Actual:   fmt.Sprintf("missing %s after %v", a.Kinds[next], a.Kinds[:next]),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceContains looks for an event of Kind, optionally restricted to
// a node label and attribute.
func assertTraceContains(trace []TraceEvent, a Assertion, h *Harness) error {
	for _, ev := range trace {
		if ev.Kind != a.Kind {
			continue
		}
		if a.Node != "" && h.label(ev.Node) != a.Node {
			continue
		}
		if a.Attr != "" && ev.Attr != a.Attr {
			continue
		}
		return nil
	}
	target := a.Kind
	if a.Node != "" {
		target += " on " + a.Node
		if a.Attr != "" {
			target += "." + a.Attr
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: target,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertFinalAttr compares a node attribute with the expected value.
func assertFinalAttr(a Assertion, h *Harness) error {
	n, err := h.node(a.Node)
	if err != nil {
		return err
	}
	want, err := h.value(a.Expect)
	if err != nil {
		return fmt.Errorf("expect: %w", err)
	}
	got := n.Get(a.Attr)
	if !model.Equal(got, want) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s.%s = %v", a.Node, a.Attr, model.ToGo(want)),
			Actual:   fmt.Sprintf("%v", model.ToGo(got)),
		}
	}
	return nil
}

// assertRoots compares the root labels, in order.
func assertRoots(a Assertion, h *Harness) error {
	var got []string
	for _, r := range h.doc.Roots() {
		got = append(got, h.label(r.ID()))
	}
	if strings.Join(got, ",") != strings.Join(a.Roots, ",") {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%v", a.Roots),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

// assertReplayConsistent restores the document from the journal and
// compares it with the live one.
func assertReplayConsistent(actx *AssertionContext) error {
	h := actx.Harness
	restored, _, err := h.journal.Restore(actx.Ctx, h.doc.ID(), document.WithCatalog(h.doc.Catalog()))
	if err != nil {
		return fmt.Errorf("restore from journal: %w", err)
	}
	restored.Lock()
	got, err := restored.ToJSON()
	restored.Unlock()
	if err != nil {
		return err
	}
	want, err := h.doc.ToJSON()
	if err != nil {
		return err
	}
	wantC, err := CanonicalJSON(want)
	if err != nil {
		return err
	}
	gotC, err := CanonicalJSON(got)
	if err != nil {
		return err
	}
	if string(wantC) != string(gotC) {
		return &AssertionError{
			Type:     AssertReplayConsistent,
			Expected: string(wantC),
			Actual:   string(gotC),
		}
	}
	return nil
}
