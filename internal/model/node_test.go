package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_GetDefaults(t *testing.T) {
	c := testCatalog(t)
	n := newNode(t, c, "Plot")

	assert.Equal(t, Int(600), n.Get("width"))
	assert.Equal(t, Null{}, n.Get("name"))
	assert.Equal(t, "", n.Name())
	assert.Empty(t, n.Tags())
	assert.Equal(t, Null{}, n.Get("undeclared"))
	assert.Empty(t, n.NonDefaultAttrs())
}

func TestNode_DefaultContainersArePerNode(t *testing.T) {
	c := testCatalog(t)
	a := newNode(t, c, "Plot")
	b := newNode(t, c, "Plot")

	require.NoError(t, a.Get("renderers").(*List).Append(Int(1)))

	assert.True(t, Equal(Array{}, b.Get("renderers")))
	assert.True(t, Equal(Array{}, a.Type().Default("renderers")))
	assert.Equal(t, []string{"renderers"}, a.NonDefaultAttrs())
}

func TestNode_SetWrapsAggregates(t *testing.T) {
	c := testCatalog(t)
	n := newNode(t, c, "Plot")

	require.NoError(t, n.Set("renderers", Array{Int(1)}))
	require.NoError(t, n.Set("options", Object{"k": String("v")}))

	_, isList := n.Get("renderers").(*List)
	_, isDict := n.Get("options").(*Dict)
	assert.True(t, isList)
	assert.True(t, isDict)

	src := newNode(t, c, "Source")
	require.NoError(t, src.Set("data", Object{"x": Array{Int(1)}}))
	_, isCols := src.Get("data").(*ColumnData)
	assert.True(t, isCols)

	assert.Error(t, src.Set("data", Object{"x": Int(1)}), "columns must be sequences")
}

func TestNode_SetUnknownAttr(t *testing.T) {
	c := testCatalog(t)
	n := newNode(t, c, "Plot")
	err := n.Set("bogus", Int(1))
	assert.True(t, HasCode(err, ErrCodeInvalidValue))
}

func TestNode_SetNotifiesDocument(t *testing.T) {
	n, doc := attachedNode(t, "Plot")
	var seen []Value
	n.OnChange("title", func(attr string, old, new Value) {
		seen = append(seen, new)
	})

	require.NoError(t, n.Set("title", String("a"), WithOrigin("peer")))
	require.NoError(t, n.Set("title", String("a")))

	require.Len(t, doc.changes, 1, "equal assignment is a no-op")
	ch := doc.changes[0]
	assert.Equal(t, String(""), ch.old)
	assert.Equal(t, String("a"), ch.new)
	assert.Equal(t, Origin("peer"), ch.origin)
	assert.Equal(t, []Value{String("a")}, seen)
}

func TestNode_SetWithoutDocumentRunsCallbacks(t *testing.T) {
	c := testCatalog(t)
	n := newNode(t, c, "Plot")
	calls := 0
	n.OnChange("width", func(string, Value, Value) { calls++ })

	require.NoError(t, n.Set("width", Int(10)))
	assert.Equal(t, 1, calls)
}

func TestNode_SetRollsBackOnRejection(t *testing.T) {
	n, doc := attachedNode(t, "Plot")
	require.NoError(t, n.Set("renderers", Array{Int(1)}))
	before := n.Get("renderers").(*List)

	doc.reject = errors.New("nope")
	assert.Error(t, n.Set("renderers", Array{Int(2)}))
	assert.Same(t, before, n.Get("renderers"))
	assert.Equal(t, 1, before.Owned())
}

func TestNode_AttachDocumentOwnership(t *testing.T) {
	c := testCatalog(t)
	n := newNode(t, c, "Plot")
	d1 := &recordingDoc{id: "d1"}
	d2 := &recordingDoc{id: "d2"}

	require.NoError(t, n.AttachDocument(d1))
	require.NoError(t, n.AttachDocument(d1))

	err := n.AttachDocument(d2)
	require.Error(t, err)
	assert.True(t, IsOwnershipError(err))
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "d1", e.Details["owner"])
	assert.Equal(t, d1, n.Document())

	n.DetachDocument()
	assert.NoError(t, n.AttachDocument(d2))
}

func TestNode_SerializableValue(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(&Type{
		Name:     "Upper",
		Defaults: map[string]Value{"text": String("")},
		Serializers: map[string]Serializer{
			"text": func(_ *Node, v Value) Value { return Array{v, v} },
		},
	}))
	n, err := c.Instantiate("Upper", "u1")
	require.NoError(t, err)
	require.NoError(t, n.Set("text", String("hi")))

	assert.Equal(t, Array{String("hi"), String("hi")}, n.SerializableValue("text"))
	assert.Equal(t, String("hi"), n.Get("text"))
}
