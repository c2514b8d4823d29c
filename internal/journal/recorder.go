package journal

import (
	"context"
	"sync"

	"github.com/bokeh/bokeh-sub002/internal/callbacks"
	"github.com/bokeh/bokeh-sub002/internal/document"
	"github.com/bokeh/bokeh-sub002/internal/events"
	"github.com/bokeh/bokeh-sub002/internal/model"
)

// Recorder journals every patchable change of one document as its own
// patch. Events whose origin is skipped are not journaled; ReplayOrigin is
// always skipped.
//
// Thread-safety: the listener runs on the goroutine that mutates the
// document; Err and Appended may be called from any goroutine.
type Recorder struct {
	j    *Journal
	ctx  context.Context
	doc  *document.Document
	skip map[model.Origin]bool
	id   callbacks.ListenerID

	mu       sync.Mutex
	err      error
	appended int
}

// Record snapshots d and starts journaling its changes under d.ID().
// The caller must hold d's lock.
func (j *Journal) Record(ctx context.Context, d *document.Document, skip ...model.Origin) (*Recorder, error) {
	if _, err := j.Snapshot(ctx, d); err != nil {
		return nil, err
	}
	r := &Recorder{
		j:    j,
		ctx:  ctx,
		doc:  d,
		skip: map[model.Origin]bool{ReplayOrigin: true},
	}
	for _, o := range skip {
		r.skip[o] = true
	}
	r.id = d.OnChange(r.listen)
	return r, nil
}

func (r *Recorder) listen(ev events.Event) {
	if !ev.Patchable() || r.skip[ev.Source()] {
		return
	}
	data, err := r.doc.CreatePatchJSON([]events.Event{ev})
	if err == nil {
		_, err = r.j.Append(r.ctx, r.doc.ID(), ev.Source(), 1, data)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.j.logger.Error("journal append failed", "document", r.doc.ID(), "kind", ev.Kind(), "error", err)
		if r.err == nil {
			r.err = err
		}
		return
	}
	r.appended++
}

// Err returns the first append failure, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Appended returns the number of patches journaled so far.
func (r *Recorder) Appended() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appended
}

// Stop unregisters the listener. The caller must hold the document lock.
func (r *Recorder) Stop() error {
	return r.doc.RemoveOnChange(r.id)
}
