package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bokeh/bokeh-sub002/internal/callbacks"
	"github.com/bokeh/bokeh-sub002/internal/events"
	"github.com/bokeh/bokeh-sub002/internal/model"
	"github.com/bokeh/bokeh-sub002/internal/testutil"
)

func newDoc(t *testing.T, opts ...Option) (*Document, *model.Catalog, *testutil.Recorder) {
	t.Helper()
	cat := testutil.Catalog()
	d, err := New(append([]Option{WithCatalog(cat)}, opts...)...)
	require.NoError(t, err)
	rec := &testutil.Recorder{}
	d.OnChange(rec.Listener())
	return d, cat, rec
}

func mustNode(t *testing.T, cat *model.Catalog, typ string) *model.Node {
	t.Helper()
	n, err := cat.New(typ)
	require.NoError(t, err)
	return n
}

// plotTree builds Plot -> Renderer -> (Source, Glyph), detached.
func plotTree(t *testing.T, cat *model.Catalog) (plot, renderer, source, glyph *model.Node) {
	t.Helper()
	plot = mustNode(t, cat, "Plot")
	renderer = mustNode(t, cat, "Renderer")
	source = mustNode(t, cat, "Source")
	glyph = mustNode(t, cat, "Glyph")
	require.NoError(t, renderer.Set("source", source))
	require.NoError(t, renderer.Set("glyph", glyph))
	require.NoError(t, plot.Set("renderers", model.Array{renderer}))
	return plot, renderer, source, glyph
}

func TestDocument_AddRootAttachesReachable(t *testing.T) {
	d, cat, rec := newDoc(t)
	plot, renderer, source, glyph := plotTree(t, cat)

	require.NoError(t, d.AddRoot(plot))

	for _, n := range []*model.Node{plot, renderer, source, glyph} {
		assert.Equal(t, model.Document(d), n.Document(), n.ID())
		got, ok := d.GetModelByID(n.ID())
		require.True(t, ok)
		assert.Same(t, n, got)
	}
	assert.Len(t, d.Models(), 4)
	assert.Equal(t, []events.Kind{events.KindRootAdded}, rec.Kinds())

	require.NoError(t, d.AddRoot(plot), "adding an existing root is a no-op")
	assert.Len(t, d.Roots(), 1)
	assert.Len(t, rec.Events(), 1)
}

func TestDocument_RemoveRootKeepsSharedNodes(t *testing.T) {
	d, cat, rec := newDoc(t)
	plot, _, source, _ := plotTree(t, cat)
	other := mustNode(t, cat, "Renderer")
	require.NoError(t, other.Set("source", source))

	require.NoError(t, d.AddRoot(plot))
	require.NoError(t, d.AddRoot(other))
	require.NoError(t, d.RemoveRoot(plot))

	assert.Nil(t, plot.Document())
	assert.Equal(t, model.Document(d), source.Document(), "still reachable from the other root")
	assert.Equal(t, []*model.Node{other}, d.Roots())
	assert.Equal(t, events.KindRootRemoved, rec.Kinds()[len(rec.Kinds())-1])

	require.NoError(t, d.RemoveRoot(plot), "removing a non-root is a no-op")
}

func TestDocument_AddRootOwnedElsewhere(t *testing.T) {
	d1, cat, _ := newDoc(t)
	d2, _, rec2 := newDoc(t)
	plot, _, source, _ := plotTree(t, cat)
	require.NoError(t, d1.AddRoot(plot))

	err := d2.AddRoot(plot)
	assert.True(t, model.IsOwnershipError(err))

	// A new root that reaches a node owned by d1 fails the same way and
	// leaves d2 untouched.
	r := mustNode(t, cat, "Renderer")
	require.NoError(t, r.Set("source", source))
	err = d2.AddRoot(r)
	assert.True(t, model.IsOwnershipError(err))

	assert.Empty(t, d2.Roots())
	assert.Empty(t, d2.Models())
	assert.Nil(t, r.Document())
	assert.Equal(t, model.Document(d1), source.Document())
	assert.Len(t, d1.Models(), 4)
	assert.Empty(t, rec2.Events())
}

func TestDocument_ID(t *testing.T) {
	d1, _, _ := newDoc(t)
	d2, _, _ := newDoc(t)
	assert.NotEmpty(t, d1.ID())
	assert.NotEqual(t, d1.ID(), d2.ID())

	d3, _, _ := newDoc(t, WithID("doc-1"))
	assert.Equal(t, "doc-1", d3.ID())
}

func TestDocument_SetTitle(t *testing.T) {
	d, _, rec := newDoc(t, WithTitle("first"))
	d.SetTitle("first")
	assert.Empty(t, rec.Events())

	d.SetTitle("second", model.WithOrigin("peer"))
	require.Len(t, rec.Events(), 1)
	ev := rec.Events()[0].(*events.TitleChanged)
	assert.Equal(t, "second", ev.Title)
	assert.Equal(t, model.Origin("peer"), ev.Source())
	assert.Equal(t, "second", d.Title())
}

func TestDocument_ReferenceWriteAttachesNewNodes(t *testing.T) {
	d, cat, rec := newDoc(t)
	plot := mustNode(t, cat, "Plot")
	require.NoError(t, d.AddRoot(plot))
	rec.Reset()

	tb := mustNode(t, cat, "Toolbar")
	require.NoError(t, plot.Set("toolbar", tb))

	assert.Equal(t, model.Document(d), tb.Document())
	require.Len(t, rec.Events(), 1)
	ev := rec.Events()[0].(*events.ModelChanged)
	assert.Equal(t, "toolbar", ev.Attr)
	assert.Equal(t, model.Null{}, ev.Old)
	assert.Same(t, tb, ev.New)
	assert.Same(t, tb, ev.SerializableNew)

	require.NoError(t, plot.Set("toolbar", model.Null{}))
	assert.Nil(t, tb.Document(), "dropped reference detaches")
}

func TestDocument_ContainerMutationAttachesNodes(t *testing.T) {
	d, cat, _ := newDoc(t)
	plot := mustNode(t, cat, "Plot")
	require.NoError(t, d.AddRoot(plot))

	r := mustNode(t, cat, "Renderer")
	list := plot.Get("renderers").(*model.List)
	require.NoError(t, list.Append(r))

	assert.Equal(t, model.Document(d), r.Document())
}

func TestDocument_OwnershipViolationRollsBackWrite(t *testing.T) {
	d1, cat, rec1 := newDoc(t)
	d2, _, _ := newDoc(t)
	plot := mustNode(t, cat, "Plot")
	foreign := mustNode(t, cat, "Toolbar")
	require.NoError(t, d1.AddRoot(plot))
	require.NoError(t, d2.AddRoot(foreign))
	rec1.Reset()

	err := plot.Set("toolbar", foreign)
	assert.True(t, model.IsOwnershipError(err))
	assert.Equal(t, model.Null{}, plot.Get("toolbar"))
	assert.Equal(t, model.Document(d2), foreign.Document())
	assert.Empty(t, rec1.Events(), "a rejected write emits nothing")
	assert.Len(t, d1.Models(), 1)
}

func TestDocument_NameIndex(t *testing.T) {
	d, cat, _ := newDoc(t)
	plot, renderer, _, _ := plotTree(t, cat)
	require.NoError(t, d.AddRoot(plot))

	require.NoError(t, renderer.Set("name", model.String("main")))
	got, err := d.GetModelByName("main")
	require.NoError(t, err)
	assert.Same(t, renderer, got)

	require.NoError(t, renderer.Set("name", model.String("renamed")))
	got, err = d.GetModelByName("main")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, plot.Set("name", model.String("renamed")))
	_, err = d.GetModelByName("renamed")
	assert.True(t, model.IsAmbiguousName(err))
}

func TestDocument_HoldCombineCoalescesWrites(t *testing.T) {
	d, cat, rec := newDoc(t)
	plot := mustNode(t, cat, "Plot")
	require.NoError(t, d.AddRoot(plot))
	require.NoError(t, plot.Set("width", model.Int(1)))
	rec.Reset()

	var seen []model.Value
	plot.OnChange("width", func(_ string, _, new model.Value) { seen = append(seen, new) })

	require.NoError(t, d.Hold(callbacks.HoldCombine))
	require.NoError(t, plot.Set("width", model.Int(2)))
	require.NoError(t, plot.Set("width", model.Int(3)))
	assert.Empty(t, rec.Events())
	assert.Empty(t, seen, "attribute callbacks are deferred too")

	d.Unhold()
	require.Len(t, rec.Events(), 1)
	ev := rec.Events()[0].(*events.ModelChanged)
	assert.Equal(t, model.Int(1), ev.Old)
	assert.Equal(t, model.Int(3), ev.New)
	assert.Equal(t, []model.Value{model.Int(3)}, seen)
}

func TestDocument_HoldCollectKeepsEveryEvent(t *testing.T) {
	d, cat, rec := newDoc(t)
	plot := mustNode(t, cat, "Plot")
	require.NoError(t, d.AddRoot(plot))
	rec.Reset()

	require.NoError(t, d.Hold(callbacks.HoldCollect))
	require.NoError(t, plot.Set("width", model.Int(2)))
	d.SetTitle("held")
	require.NoError(t, plot.Set("width", model.Int(3)))
	assert.Equal(t, callbacks.HoldCollect, d.HoldValue())
	d.Unhold()

	assert.Equal(t, []events.Kind{events.KindModelChanged, events.KindTitleChanged, events.KindModelChanged}, rec.Kinds())
}

func TestDocument_Clear(t *testing.T) {
	d, cat, rec := newDoc(t, WithTitle("kept"))
	require.NoError(t, d.AddRoot(mustNode(t, cat, "Plot")))
	require.NoError(t, d.AddRoot(mustNode(t, cat, "Plot")))
	rec.Reset()
	before := d.graph.Recomputes()

	require.NoError(t, d.Clear())

	assert.Empty(t, d.Roots())
	assert.Empty(t, d.Models())
	assert.Equal(t, before+1, d.graph.Recomputes(), "one recompute for the whole clear")
	assert.Equal(t, []events.Kind{events.KindRootRemoved, events.KindRootRemoved}, rec.Kinds())
	assert.Equal(t, "kept", d.Title())
}

func TestDocument_Validate(t *testing.T) {
	d, cat, _ := newDoc(t)
	plot, _, _, _ := plotTree(t, cat)
	require.NoError(t, d.AddRoot(plot))
	assert.NoError(t, d.Validate())

	// A second node reusing an id is an integrity failure.
	dup, err := cat.Instantiate("Toolbar", plot.ID())
	require.NoError(t, err)
	d.Lock()
	d.roots = append(d.roots, dup)
	d.Unlock()
	assert.True(t, model.HasCode(d.Validate(), model.ErrCodeDuplicateID))
}

func TestDocument_DestructivelyMove(t *testing.T) {
	src, cat, _ := newDoc(t, WithTitle("source"))
	dest, _, destRec := newDoc(t, WithTitle("dest"))
	plot, renderer, _, _ := plotTree(t, cat)
	require.NoError(t, src.AddRoot(plot))
	require.NoError(t, dest.AddRoot(mustNode(t, cat, "Plot")))
	destRec.Reset()

	require.NoError(t, src.DestructivelyMove(dest))

	assert.Empty(t, src.Roots())
	assert.Empty(t, src.Models())
	assert.Equal(t, []*model.Node{plot}, dest.Roots())
	assert.Equal(t, model.Document(dest), renderer.Document())
	assert.Equal(t, "source", dest.Title())
	assert.Equal(t,
		[]events.Kind{events.KindRootRemoved, events.KindRootAdded, events.KindTitleChanged},
		destRec.Kinds())

	assert.Error(t, dest.DestructivelyMove(dest))
}

type countingTheme struct{ applied, unapplied int }

func (c *countingTheme) Apply(*model.Node)   { c.applied++ }
func (c *countingTheme) Unapply(*model.Node) { c.unapplied++ }

func TestDocument_ThemeFollowsAttachment(t *testing.T) {
	first := &countingTheme{}
	d, cat, _ := newDoc(t, WithTheme(first))
	plot, _, _, _ := plotTree(t, cat)

	require.NoError(t, d.AddRoot(plot))
	assert.Equal(t, 4, first.applied)

	second := &countingTheme{}
	d.SetTheme(second)
	assert.Equal(t, 4, first.unapplied)
	assert.Equal(t, 4, second.applied)

	require.NoError(t, d.RemoveRoot(plot))
	assert.Equal(t, 4, second.unapplied)
	assert.Same(t, second, d.Theme())
}

func TestDocument_Destroy(t *testing.T) {
	d, cat, rec := newDoc(t)
	plot := mustNode(t, cat, "Plot")
	require.NoError(t, d.AddRoot(plot))
	destroyed := 0
	d.OnSessionDestroyed(func() { destroyed++ })
	_, err := d.AddPeriodicCallback(func(Handle) {}, 0)
	require.NoError(t, err)

	d.Destroy()
	d.Destroy()

	assert.Equal(t, 1, destroyed)
	assert.Empty(t, d.SessionCallbacks())
	assert.Nil(t, plot.Document())
	assert.Contains(t, rec.Kinds(), events.KindSessionCallbackRemoved)

	_, err = d.AddNextTickCallback(func(Handle) {})
	assert.True(t, model.HasCode(err, model.ErrCodeDestroyed))
}

func TestSelector(t *testing.T) {
	d, cat, _ := newDoc(t)
	plot, renderer, source, glyph := plotTree(t, cat)
	require.NoError(t, d.AddRoot(plot))
	require.NoError(t, glyph.Set("name", model.String("dots")))
	require.NoError(t, glyph.Set("color", model.String("red")))

	assert.Equal(t, []*model.Node{renderer}, d.Select(Selector{Type: "Renderer"}))
	assert.Equal(t, []*model.Node{plot}, d.Select(Selector{Type: "Figure"}), "subtype matches")
	assert.Equal(t, []*model.Node{glyph}, d.Select(Selector{Name: "dots"}))
	assert.Equal(t, []*model.Node{glyph}, d.Select(Selector{Attrs: map[string]model.Value{"color": model.String("red")}}))
	assert.Empty(t, d.Select(Selector{Type: "Source", Name: "dots"}))
	assert.Len(t, d.Select(Selector{}), 4)

	got, err := d.SelectOne(Selector{Type: "Source"})
	require.NoError(t, err)
	assert.Same(t, source, got)

	got, err = d.SelectOne(Selector{Type: "Tool"})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = d.SelectOne(Selector{})
	assert.True(t, model.IsAmbiguousName(err))

	require.NoError(t, d.SetSelect(Selector{Type: "Glyph"}, map[string]model.Value{"x": model.String("a"), "y": model.String("b")}))
	assert.Equal(t, model.String("a"), glyph.Get("x"))
	assert.Equal(t, model.String("b"), glyph.Get("y"))

	err = d.SetSelect(Selector{Type: "Glyph"}, map[string]model.Value{"bogus": model.Int(1)})
	assert.Error(t, err)
}

func TestDocument_SharedListAcrossDocumentsIsAllOrNothing(t *testing.T) {
	d1, cat, rec1 := newDoc(t)
	d2, _, rec2 := newDoc(t)
	a := mustNode(t, cat, "Plot")
	b := mustNode(t, cat, "Plot")
	require.NoError(t, d1.AddRoot(a))
	require.NoError(t, d2.AddRoot(b))

	shared := model.NewList(model.Int(1))
	require.NoError(t, a.Set("renderers", shared))
	require.NoError(t, b.Set("renderers", shared))
	rec1.Reset()
	rec2.Reset()

	tool := mustNode(t, cat, "Tool")
	err := shared.Append(tool)
	assert.True(t, model.IsOwnershipError(err))
	assert.Equal(t, 1, shared.Len())
	assert.Empty(t, rec1.Events())
	assert.Empty(t, rec2.Events())
	assert.Nil(t, tool.Document())
	_, ok := d1.GetModelByID(tool.ID())
	assert.False(t, ok)
}

func TestDocument_NodesInColumnsFollowReachability(t *testing.T) {
	d, cat, _ := newDoc(t)
	source := mustNode(t, cat, "Source")
	require.NoError(t, d.AddRoot(source))
	require.NoError(t, source.Set("data", model.Object{"x": model.Array{model.Int(1)}}))
	cd := source.Get("data").(*model.ColumnData)

	glyph := mustNode(t, cat, "Glyph")
	require.NoError(t, cd.Set("g", model.Array{glyph}))
	_, ok := d.GetModelByID(glyph.ID())
	assert.True(t, ok)
	assert.Equal(t, model.Document(d), glyph.Document())

	streamed := mustNode(t, cat, "Glyph")
	require.NoError(t, cd.Stream(map[string]model.Array{"x": {model.Int(2)}, "g": {streamed}}, nil, model.NoOrigin))
	_, ok = d.GetModelByID(streamed.ID())
	assert.True(t, ok)

	require.NoError(t, cd.Delete("g"))
	assert.Nil(t, glyph.Document())
	assert.Nil(t, streamed.Document())
	assert.Len(t, d.Models(), 1)
}

func TestDocument_ColumnNodeOwnedElsewhereIsRejected(t *testing.T) {
	d1, cat, rec1 := newDoc(t)
	d2, _, _ := newDoc(t)
	source := mustNode(t, cat, "Source")
	foreign := mustNode(t, cat, "Glyph")
	require.NoError(t, d1.AddRoot(source))
	require.NoError(t, d2.AddRoot(foreign))
	require.NoError(t, source.Set("data", model.Object{"x": model.Array{model.Int(1)}}))
	cd := source.Get("data").(*model.ColumnData)
	rec1.Reset()

	err := cd.Set("g", model.Array{foreign})
	assert.True(t, model.IsOwnershipError(err))
	assert.Equal(t, []string{"x"}, cd.Columns())
	assert.Empty(t, rec1.Events())
}

func TestDocument_AddRootUnderFreezeChecksDescendants(t *testing.T) {
	d1, cat, _ := newDoc(t)
	d2, _, _ := newDoc(t)
	plot, _, source, _ := plotTree(t, cat)
	require.NoError(t, d1.AddRoot(plot))

	r := mustNode(t, cat, "Renderer")
	require.NoError(t, r.Set("source", source))

	d2.graph.PushFreeze()
	err := d2.AddRoot(r)
	assert.True(t, model.IsOwnershipError(err))
	assert.Empty(t, d2.Roots())
	require.NoError(t, d2.graph.PopFreeze())

	require.NoError(t, d2.AddRoot(mustNode(t, cat, "Tool")), "the graph is still usable")
	assert.Len(t, d2.Models(), 1)
}
