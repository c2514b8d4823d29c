package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Kind: "RootAdded", Node: "n1"},
		{Seq: 2, Kind: "ModelChanged", Node: "n1", Attr: "width"},
		{Seq: 3, Kind: "ModelChanged", Node: "n2", Attr: "title", Origin: "peer"},
		{Seq: 4, Kind: "TitleChanged"},
	}
}

func labelled() *Harness {
	return &Harness{labels: map[string]string{"n1": "plot", "n2": "other"}}
}

func TestAssertEventCount(t *testing.T) {
	trace := sampleTrace()

	require.NoError(t, assertEventCount(trace, Assertion{Type: AssertEventCount, Kind: "ModelChanged", Count: 2}))
	require.NoError(t, assertEventCount(trace, Assertion{Type: AssertEventCount, Kind: "ColumnsStreamed", Count: 0}))

	err := assertEventCount(trace, Assertion{Type: AssertEventCount, Kind: "ModelChanged", Count: 3})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "3 ModelChanged events", ae.Expected)
	assert.Equal(t, "2", ae.Actual)
	assert.Len(t, ae.Trace, 4)
}

func TestAssertEventOrder(t *testing.T) {
	trace := sampleTrace()

	tests := []struct {
		name  string
		kinds []string
		ok    bool
	}{
		{"full order", []string{"RootAdded", "ModelChanged", "ModelChanged", "TitleChanged"}, true},
		{"subsequence", []string{"RootAdded", "TitleChanged"}, true},
		{"repeated kind", []string{"ModelChanged", "ModelChanged"}, true},
		{"wrong order", []string{"TitleChanged", "RootAdded"}, false},
		{"too many", []string{"ModelChanged", "ModelChanged", "ModelChanged"}, false},
		{"absent kind", []string{"RootRemoved"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertEventOrder(trace, Assertion{Type: AssertEventOrder, Kinds: tt.kinds})
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestAssertEventOrder_ReportsMissingKind(t *testing.T) {
	err := assertEventOrder(sampleTrace(), Assertion{Type: AssertEventOrder, Kinds: []string{"TitleChanged", "RootAdded"}})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "missing RootAdded after [TitleChanged]", ae.Actual)
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()
	h := labelled()

	tests := []struct {
		name string
		a    Assertion
		ok   bool
	}{
		{"kind only", Assertion{Kind: "TitleChanged"}, true},
		{"by label", Assertion{Kind: "ModelChanged", Node: "other"}, true},
		{"by label and attr", Assertion{Kind: "ModelChanged", Node: "plot", Attr: "width"}, true},
		{"attr mismatch", Assertion{Kind: "ModelChanged", Node: "plot", Attr: "title"}, false},
		{"raw id is not a label", Assertion{Kind: "ModelChanged", Node: "n1"}, false},
		{"absent kind", Assertion{Kind: "ColumnsPatched"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.a.Type = AssertTraceContains
			err := assertTraceContains(trace, tt.a, h)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestAssertTraceContains_Message(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{Type: AssertTraceContains, Kind: "ModelChanged", Node: "plot", Attr: "visible"}, labelled())
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "ModelChanged on plot.visible", ae.Expected)
	assert.Equal(t, "not found in trace", ae.Actual)
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertEventCount,
		Expected: "1 TitleChanged events",
		Actual:   "0",
		Trace:    sampleTrace()[1:3],
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: event_count")
	assert.Contains(t, msg, "Expected: 1 TitleChanged events")
	assert.Contains(t, msg, "Actual: 0")
	assert.Contains(t, msg, "[1] ModelChanged n1.width\n")
	assert.Contains(t, msg, "[2] ModelChanged n2.title (from peer)\n")
}

func TestAssertionError_NoTrace(t *testing.T) {
	err := &AssertionError{Type: AssertRoots, Expected: "[a]", Actual: "[]"}
	assert.NotContains(t, err.Error(), "Full trace")
}

// runFinalState runs a scenario whose steps all succeed and returns the
// assertion failures.
func runFinalState(t *testing.T, assertions ...Assertion) []string {
	t.Helper()
	s := &Scenario{
		Name:    "final_state",
		Catalog: testCatalog,
		Nodes: []NodeDef{
			{Label: "plot", Type: "Plot"},
			{Label: "tool", Type: "Tool"},
		},
		Roots: []string{"plot"},
		Steps: []Step{
			{Set: &SetOp{Node: "plot", Attr: "title", Value: "T"}},
			{AddRoot: "tool"},
			titleStep("Doc"),
		},
		Assertions: assertions,
	}
	result, err := Run(s)
	require.NoError(t, err)
	return result.Errors
}

func TestFinalStateAssertions_Pass(t *testing.T) {
	errs := runFinalState(t,
		Assertion{Type: AssertFinalAttr, Node: "plot", Attr: "title", Expect: "T"},
		Assertion{Type: AssertFinalAttr, Node: "plot", Attr: "width", Expect: 600},
		Assertion{Type: AssertFinalAttr, Node: "tool", Attr: "kind", Expect: "pan"},
		Assertion{Type: AssertRoots, Roots: []string{"plot", "tool"}},
		Assertion{Type: AssertTitle, Expect: "Doc"},
		Assertion{Type: AssertReplayConsistent},
	)
	assert.Empty(t, errs)
}

func TestFinalStateAssertions_Fail(t *testing.T) {
	errs := runFinalState(t,
		Assertion{Type: AssertFinalAttr, Node: "plot", Attr: "title", Expect: "other"},
		Assertion{Type: AssertRoots, Roots: []string{"tool", "plot"}},
		Assertion{Type: AssertTitle, Expect: "Untitled"},
		Assertion{Type: AssertFinalAttr, Node: "ghost", Attr: "x", Expect: 1},
	)
	require.Len(t, errs, 4)
	assert.Contains(t, errs[0], "assertions[0]:")
	assert.Contains(t, errs[0], "plot.title = other")
	assert.Contains(t, errs[1], "[plot tool]")
	assert.Contains(t, errs[2], `"Doc"`)
	assert.Contains(t, errs[3], `unknown node label "ghost"`)
}

func TestEvaluate_UnknownType(t *testing.T) {
	err := evaluate(nil, Assertion{Type: "bogus"}, &AssertionContext{Harness: labelled()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown assertion type: bogus")
}
