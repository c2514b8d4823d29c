// Package harness provides conformance testing for document synchronization.
//
// A scenario builds a document from a CUE catalog, drives a sequence of
// mutations against it, and checks the outbound patch trace and the final
// state.
//
// # Scenario Format
//
//	name: stream_then_patch
//	description: "Streaming and patching a source emits hinted events"
//	catalog: ../catalog
//	nodes:
//	  - label: src
//	    type: Source
//	    attrs: { data: { x: [1, 2] } }
//	  - label: plot
//	    type: Plot
//	    attrs: { renderers: [] }
//	roots: [plot, src]
//	steps:
//	  - stream: { node: src, data: { x: [3] }, rollover: 3 }
//	  - patch: { node: src, patches: { x: [{ index: 0, value: 10 }] } }
//	  - set: { node: plot, attr: bogus, value: 1 }
//	    expect_error: INVALID_VALUE
//	assertions:
//	  - type: event_order
//	    kinds: [ColumnsStreamed, ColumnsPatched]
//	  - type: final_attr
//	    node: src
//	    attr: data
//	    expect: { x: [10, 2, 3] }
//
// A string value "@label" refers to a declared node.
//
// # Assertion Types
//
//   - event_count: exactly N events of a kind were traced
//   - event_order: kinds appear in order, not necessarily adjacent
//   - trace_contains: an event of a kind touched a node (and attribute)
//   - final_attr: a node attribute equals the expected value
//   - roots: the document roots, by label, in order
//   - title: the final document title
//   - replay_consistent: restoring from the journal reproduces the document
//
// # Deterministic Testing
//
// The harness uses:
//   - Sequential node ids ("n1001", "n1002", ...)
//   - A step clock for trace and journal sequence numbers
//   - An in-memory SQLite journal, isolated per run
//
// Traces are therefore identical across runs and can be compared with
// golden files (see RunWithGolden).
package harness
