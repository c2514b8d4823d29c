package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type change struct {
	node   *Node
	attr   string
	old    Value
	new    Value
	hint   Hint
	origin Origin
}

// recordingDoc is a Document that records every notification and can be
// told to reject changes.
type recordingDoc struct {
	id      string
	changes []change
	reject  error
}

func (d *recordingDoc) ID() string { return d.id }

func (d *recordingDoc) NotifyChange(n *Node, attr string, old, new Value, h Hint, origin Origin, invoke func()) error {
	if d.reject != nil {
		return d.reject
	}
	d.changes = append(d.changes, change{n, attr, old, new, h, origin})
	invoke()
	return nil
}

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := NewCatalog(WithIDGenerator(NewSequentialIDs("n", 1000)))
	require.NoError(t, c.Register(&Type{
		Name: "Plot",
		Defaults: map[string]Value{
			"title":     String(""),
			"renderers": Array{},
			"child":     Null{},
			"options":   Object{},
			"width":     Int(600),
		},
	}))
	require.NoError(t, c.Register(&Type{
		Name:     "Source",
		Defaults: map[string]Value{"selected": Null{}},
		Columnar: map[string]bool{"data": true},
	}))
	return c
}

func newNode(t *testing.T, c *Catalog, typ string) *Node {
	t.Helper()
	n, err := c.New(typ)
	require.NoError(t, err)
	return n
}
