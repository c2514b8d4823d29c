package document

import (
	"fmt"
	"slices"

	"github.com/bokeh/bokeh-sub002/internal/model"
)

// Selector matches attached nodes. Empty fields match anything; Attrs
// entries must all be equal to the node's values.
type Selector struct {
	Type  string
	Name  string
	Attrs map[string]model.Value
}

func (s Selector) nameOnly() bool {
	return s.Name != "" && s.Type == "" && len(s.Attrs) == 0
}

// Match reports whether n satisfies every criterion of s.
func (s Selector) Match(n *model.Node) bool {
	if s.Type != "" && n.TypeName() != s.Type && n.Type().Subtype != s.Type {
		return false
	}
	if s.Name != "" && n.Name() != s.Name {
		return false
	}
	for attr, want := range s.Attrs {
		if !n.Has(attr) || !model.Equal(n.Get(attr), want) {
			return false
		}
	}
	return true
}

func (s Selector) String() string {
	return fmt.Sprintf("{type=%q name=%q attrs=%d}", s.Type, s.Name, len(s.Attrs))
}

// Select returns the attached nodes matching s, in traversal order.
func (d *Document) Select(s Selector) []*model.Node {
	if s.nameOnly() {
		return d.graph.ByName(s.Name)
	}
	var out []*model.Node
	for _, n := range d.graph.All() {
		if s.Match(n) {
			out = append(out, n)
		}
	}
	return out
}

// SelectOne returns the single node matching s, nil if none does, or an
// ambiguous-name error if several do.
func (d *Document) SelectOne(s Selector) (*model.Node, error) {
	found := d.Select(s)
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		return nil, &model.Error{
			Code:       model.ErrCodeAmbiguousName,
			Message:    fmt.Sprintf("found %d nodes matching %s", len(found), s),
			DocumentID: d.id,
		}
	}
}

// SetSelect assigns updates to every node matching s. Attributes are
// written in sorted order; the first failing write stops the update.
func (d *Document) SetSelect(s Selector, updates map[string]model.Value, opts ...model.SetOption) error {
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, n := range d.Select(s) {
		for _, k := range keys {
			if err := n.Set(k, updates[k], opts...); err != nil {
				return fmt.Errorf("set %s.%s: %w", n.ID(), k, err)
			}
		}
	}
	return nil
}
