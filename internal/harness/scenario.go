package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a document conformance test: build a document, drive a
// sequence of mutations against it, and assert on the outbound patch trace
// and the final document state.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is the directory holding the CUE model definitions.
	// Relative paths are resolved against the scenario file.
	Catalog string `yaml:"catalog"`

	// Title is the initial document title. Default: document.DefaultTitle.
	Title string `yaml:"title,omitempty"`

	// Nodes are created before the steps run and are named by label.
	Nodes []NodeDef `yaml:"nodes,omitempty"`

	// Roots lists node labels added as roots before tracing starts.
	Roots []string `yaml:"roots,omitempty"`

	// Steps are the traced mutations, run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// NodeDef declares a node. Attribute values are plain YAML; a string of the
// form "@label" refers to another declared node.
type NodeDef struct {
	Label string         `yaml:"label"`
	Type  string         `yaml:"type"`
	Attrs map[string]any `yaml:"attrs,omitempty"`
}

// Step is a single mutation. Exactly one operation field must be set.
type Step struct {
	Set        *SetOp    `yaml:"set,omitempty"`
	Append     *SetOp    `yaml:"append,omitempty"`
	Update     *ColumnOp `yaml:"update,omitempty"`
	Stream     *ColumnOp `yaml:"stream,omitempty"`
	Patch      *PatchOp  `yaml:"patch,omitempty"`
	AddRoot    string    `yaml:"add_root,omitempty"`
	RemoveRoot string    `yaml:"remove_root,omitempty"`
	Title      *string   `yaml:"title,omitempty"`
	Hold       string    `yaml:"hold,omitempty"`
	Unhold     bool      `yaml:"unhold,omitempty"`

	// Apply is a JSON patch received from a peer.
	Apply string `yaml:"apply,omitempty"`

	// Origin tags the write. Default: local (empty) for mutations, "peer"
	// for apply.
	Origin string `yaml:"origin,omitempty"`

	// ExpectError is the error code the step must fail with. The document
	// must be unchanged by a failing step.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// SetOp assigns value to node.attr, or appends it to a list attribute.
type SetOp struct {
	Node  string `yaml:"node"`
	Attr  string `yaml:"attr"`
	Value any    `yaml:"value"`
}

// ColumnOp replaces or streams columns of a columnar attribute.
type ColumnOp struct {
	Node     string           `yaml:"node"`
	Attr     string           `yaml:"attr"`
	Data     map[string][]any `yaml:"data"`
	Rollover *int             `yaml:"rollover,omitempty"`
}

// PatchOp overwrites positions of columns.
type PatchOp struct {
	Node    string                  `yaml:"node"`
	Attr    string                  `yaml:"attr"`
	Patches map[string][]PatchEntry `yaml:"patches"`
}

// PatchEntry selects one position with Index, or [Start, Stop) with Span.
type PatchEntry struct {
	Index *int  `yaml:"index,omitempty"`
	Span  []int `yaml:"span,omitempty"`
	Value any   `yaml:"value"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type selects the check; see the Assert constants.
	Type string `yaml:"type"`

	// Kind is an event kind (event_count, trace_contains).
	Kind string `yaml:"kind,omitempty"`

	// Kinds is the expected kind order (event_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Count is the expected number of events of Kind (event_count).
	Count int `yaml:"count,omitempty"`

	// Node and Attr select an attribute (trace_contains, final_attr).
	Node string `yaml:"node,omitempty"`
	Attr string `yaml:"attr,omitempty"`

	// Expect is the expected attribute value or title.
	Expect any `yaml:"expect,omitempty"`

	// Roots is the expected root labels, in order (roots).
	Roots []string `yaml:"roots,omitempty"`
}

// Assertion type constants.
const (
	AssertEventCount       = "event_count"
	AssertEventOrder       = "event_order"
	AssertTraceContains    = "trace_contains"
	AssertFinalAttr        = "final_attr"
	AssertRoots            = "roots"
	AssertTitle            = "title"
	AssertReplayConsistent = "replay_consistent"
)

// LoadScenario reads and parses a scenario YAML file. The catalog path is
// resolved against the file's directory. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML, resolving a relative catalog path
// against basePath.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if s.Catalog != "" && !filepath.IsAbs(s.Catalog) && basePath != "" {
		s.Catalog = filepath.Join(basePath, s.Catalog)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Catalog == "" {
		return fmt.Errorf("catalog is required")
	}
	if _, err := os.Stat(s.Catalog); os.IsNotExist(err) {
		return fmt.Errorf("catalog not found: %s", s.Catalog)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	labels := make(map[string]bool, len(s.Nodes))
	for i, n := range s.Nodes {
		if n.Label == "" || n.Type == "" {
			return fmt.Errorf("nodes[%d]: label and type are required", i)
		}
		if strings.HasPrefix(n.Label, "@") {
			return fmt.Errorf("nodes[%d]: label %q must not start with @", i, n.Label)
		}
		if labels[n.Label] {
			return fmt.Errorf("nodes[%d]: duplicate label %q", i, n.Label)
		}
		labels[n.Label] = true
	}
	for _, r := range s.Roots {
		if !labels[r] {
			return fmt.Errorf("roots: unknown label %q", r)
		}
	}
	for i, step := range s.Steps {
		if n := step.ops(); n != 1 {
			return fmt.Errorf("steps[%d]: exactly one operation is required, found %d", i, n)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// ops counts the operation fields set on the step.
func (s Step) ops() int {
	n := 0
	for _, set := range []bool{
		s.Set != nil, s.Append != nil, s.Update != nil, s.Stream != nil,
		s.Patch != nil, s.AddRoot != "", s.RemoveRoot != "", s.Title != nil,
		s.Hold != "", s.Unhold, s.Apply != "",
	} {
		if set {
			n++
		}
	}
	return n
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertEventCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertEventOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for event_order", index)
		}
	case AssertTraceContains:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_contains", index)
		}
	case AssertFinalAttr:
		if a.Node == "" || a.Attr == "" {
			return fmt.Errorf("assertions[%d]: node and attr are required for final_attr", index)
		}
	case AssertTitle:
		if _, ok := a.Expect.(string); !ok {
			return fmt.Errorf("assertions[%d]: expect must be a string for title", index)
		}
	case AssertRoots, AssertReplayConsistent:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
