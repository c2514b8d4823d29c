package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bokeh/bokeh-sub002/internal/document"
	"github.com/bokeh/bokeh-sub002/internal/model"
	"github.com/bokeh/bokeh-sub002/internal/testutil"
)

func openTestJournal(t *testing.T, opts ...Option) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j, path
}

// recordedDoc returns a locked document whose changes are journaled.
func recordedDoc(t *testing.T, j *Journal, skip ...model.Origin) (*document.Document, *model.Catalog, *Recorder) {
	t.Helper()
	cat := testutil.Catalog()
	d, err := document.New(document.WithCatalog(cat))
	require.NoError(t, err)
	d.Lock()
	t.Cleanup(d.Unlock)
	rec, err := j.Record(context.Background(), d, skip...)
	require.NoError(t, err)
	return d, cat, rec
}

func mustNode(t *testing.T, cat *model.Catalog, typ string) *model.Node {
	t.Helper()
	n, err := cat.New(typ)
	require.NoError(t, err)
	return n
}

func TestOpen_Pragmas(t *testing.T) {
	j, _ := openTestJournal(t)

	mode, err := j.pragma("journal_mode")
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)

	fk, err := j.pragma("foreign_keys")
	require.NoError(t, err)
	assert.Equal(t, "1", fk)

	version, err := j.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "1", version)
}

func TestOpen_Idempotent(t *testing.T) {
	j, path := openTestJournal(t)
	require.NoError(t, j.Close())

	again, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestRecorder_JournalsEachChange(t *testing.T) {
	ctx := context.Background()
	j, _ := openTestJournal(t, WithClock(testutil.NewStepClock(time.Second)))
	d, cat, rec := recordedDoc(t, j)

	plot := mustNode(t, cat, "Plot")
	src := mustNode(t, cat, "Source")
	require.NoError(t, d.AddRoot(plot))
	require.NoError(t, plot.Set("width", model.Int(700)))
	require.NoError(t, d.AddRoot(src))
	cd := src.Get("data").(*model.ColumnData)
	require.NoError(t, cd.Set("x", model.Array{model.Int(1)}))
	require.NoError(t, cd.Stream(map[string]model.Array{"x": {model.Int(2)}}, nil, model.NoOrigin))
	d.SetTitle("journaled")

	require.NoError(t, rec.Err())
	assert.Equal(t, 6, rec.Appended())

	entries, err := j.Entries(ctx, d.ID(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 6)
	for i, e := range entries {
		assert.Equal(t, int64(i+2), e.Seq, "seq 1 is the initial snapshot")
		assert.Equal(t, d.ID(), e.DocumentID)
		assert.Equal(t, model.NoOrigin, e.Origin)
		assert.Equal(t, 1, e.Events)
		assert.Len(t, e.Digest, 64)
	}
	assert.Contains(t, string(entries[0].Patch), `"kind":"RootAdded"`)
	assert.Contains(t, string(entries[4].Patch), `"kind":"ColumnsStreamed"`)
	assert.Contains(t, string(entries[5].Patch), `"kind":"TitleChanged"`)

	later, err := j.Entries(ctx, d.ID(), 5)
	require.NoError(t, err)
	assert.Len(t, later, 2)

	last, err := j.LastSeq(ctx, d.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(7), last)
}

func TestRecorder_SkipsOrigins(t *testing.T) {
	j, _ := openTestJournal(t)
	d, cat, rec := recordedDoc(t, j, "peer")

	plot := mustNode(t, cat, "Plot")
	require.NoError(t, d.AddRoot(plot, model.WithOrigin("peer")))
	require.NoError(t, plot.Set("width", model.Int(1), model.WithOrigin(ReplayOrigin)))
	assert.Zero(t, rec.Appended())

	require.NoError(t, plot.Set("width", model.Int(2)))
	assert.Equal(t, 1, rec.Appended())

	require.NoError(t, rec.Stop())
	require.NoError(t, plot.Set("width", model.Int(3)))
	assert.Equal(t, 1, rec.Appended())
}

func TestRecorder_IgnoresSessionEvents(t *testing.T) {
	j, _ := openTestJournal(t)
	d, _, rec := recordedDoc(t, j)

	cb, err := d.AddNextTickCallback(func(document.Handle) {})
	require.NoError(t, err)
	require.NoError(t, d.RemoveNextTickCallback(cb))
	assert.Zero(t, rec.Appended())
	assert.NoError(t, rec.Err())
}

func TestRestore_SnapshotPlusPatches(t *testing.T) {
	ctx := context.Background()
	j, _ := openTestJournal(t)
	d, cat, _ := recordedDoc(t, j)

	plot := mustNode(t, cat, "Plot")
	r := mustNode(t, cat, "Renderer")
	src := mustNode(t, cat, "Source")
	require.NoError(t, r.Set("source", src))
	require.NoError(t, d.AddRoot(plot))
	require.NoError(t, plot.Set("renderers", model.Array{r}))
	cd := src.Get("data").(*model.ColumnData)
	require.NoError(t, cd.Update(map[string]model.Array{"y": {model.Float(0.5), model.Float(1.5)}}))
	require.NoError(t, cd.Patch(model.Patches{"y": {{Index: model.At(0), Value: model.Float(9)}}}, model.NoOrigin))
	d.SetTitle("restored")

	back, last, err := j.Restore(ctx, d.ID(), document.WithCatalog(testutil.Catalog()))
	require.NoError(t, err)
	wantLast, err := j.LastSeq(ctx, d.ID())
	require.NoError(t, err)
	assert.Equal(t, wantLast, last)

	want, err := d.ToJSON()
	require.NoError(t, err)
	back.Lock()
	got, err := back.ToJSON()
	back.Unlock()
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
	assert.Equal(t, "restored", back.Title())
	assert.Equal(t, d.ID(), back.ID())
}

func TestRestore_FromLaterSnapshot(t *testing.T) {
	ctx := context.Background()
	j, _ := openTestJournal(t)
	d, cat, _ := recordedDoc(t, j)

	plot := mustNode(t, cat, "Plot")
	require.NoError(t, d.AddRoot(plot))
	require.NoError(t, plot.Set("width", model.Int(10)))

	_, err := j.Snapshot(ctx, d)
	require.NoError(t, err)
	removed, err := j.Compact(ctx, d.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	require.NoError(t, plot.Set("width", model.Int(20)))

	back, _, err := j.Restore(ctx, d.ID(), document.WithCatalog(testutil.Catalog()))
	require.NoError(t, err)
	back.Lock()
	defer back.Unlock()
	n, ok := back.GetModelByID(plot.ID())
	require.True(t, ok)
	assert.Equal(t, model.Int(20), n.Get("width"))
}

func TestRestore_Unknown(t *testing.T) {
	j, _ := openTestJournal(t)
	_, _, err := j.Restore(context.Background(), "missing", document.WithCatalog(testutil.Catalog()))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplay_CatchesUpPeer(t *testing.T) {
	ctx := context.Background()
	j, _ := openTestJournal(t)
	d, cat, _ := recordedDoc(t, j)

	plot := mustNode(t, cat, "Plot")
	require.NoError(t, d.AddRoot(plot))

	snap, err := d.ToJSON()
	require.NoError(t, err)
	seen, err := j.LastSeq(ctx, d.ID())
	require.NoError(t, err)

	require.NoError(t, plot.Set("title", model.String("late")))
	d.SetTitle("changed")

	peer, err := document.FromJSON(snap, document.WithCatalog(testutil.Catalog()))
	require.NoError(t, err)
	peer.Lock()
	defer peer.Unlock()
	peerRec := testutil.Recorder{}
	peer.OnChange(peerRec.Listener())

	last, err := j.Replay(ctx, d.ID(), peer, seen)
	require.NoError(t, err)
	assert.Equal(t, seen+2, last)
	assert.Equal(t, "changed", peer.Title())
	n, _ := peer.GetModelByID(plot.ID())
	assert.Equal(t, model.String("late"), n.Get("title"))
	for _, ev := range peerRec.Events() {
		assert.Equal(t, ReplayOrigin, ev.Source())
	}

	again, err := j.Replay(ctx, d.ID(), peer, last)
	require.NoError(t, err)
	assert.Equal(t, last, again, "nothing new")
}

func TestEntries_DigestMismatch(t *testing.T) {
	ctx := context.Background()
	j, _ := openTestJournal(t)
	d, _, _ := recordedDoc(t, j)
	d.SetTitle("x")

	_, err := j.db.Exec(`UPDATE patches SET digest = 'bogus'`)
	require.NoError(t, err)

	_, err = j.Entries(ctx, d.ID(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "digest mismatch")
}

func TestAppend_UnknownDocument(t *testing.T) {
	j, _ := openTestJournal(t)
	_, err := j.Append(context.Background(), "nope", model.NoOrigin, 1, []byte(`{}`))
	assert.Error(t, err)
}

func TestOpen_ResumesSequence(t *testing.T) {
	ctx := context.Background()
	j, path := openTestJournal(t)
	d, _, _ := recordedDoc(t, j)
	d.SetTitle("one")
	d.SetTitle("two")
	last, err := j.LastSeq(ctx, d.ID())
	require.NoError(t, err)
	require.NoError(t, j.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	e, err := reopened.Append(ctx, d.ID(), model.NoOrigin, 1, []byte(`{"events":[],"references":[]}`))
	require.NoError(t, err)
	assert.Equal(t, last+1, e.Seq)
}

func TestDocuments(t *testing.T) {
	j, _ := openTestJournal(t, WithClock(testutil.NewStepClock(time.Millisecond)))
	d, _, _ := recordedDoc(t, j)
	d.SetTitle("listed")

	docs, err := j.Documents(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, DocumentInfo{
		ID:          d.ID(),
		Title:       document.DefaultTitle,
		Version:     document.DefaultVersion,
		SnapshotSeq: 1,
		Patches:     1,
		LastSeq:     2,
	}, docs[0])
}
