package journal

import (
	"context"
	"fmt"

	"github.com/bokeh/bokeh-sub002/internal/document"
	"github.com/bokeh/bokeh-sub002/internal/model"
)

// ReplayOrigin tags writes applied from the journal. Recorders never
// journal them again.
const ReplayOrigin model.Origin = "journal"

// Replay applies to d every patch journaled for docID after seq, in order,
// and returns the seq of the last one applied. A peer that has seen patches
// up to seq catches up this way.
//
// The caller must hold d's lock. Replay stops at the first patch that fails
// to apply; patches before it stay applied.
func (j *Journal) Replay(ctx context.Context, docID string, d *document.Document, after int64) (int64, error) {
	entries, err := j.Entries(ctx, docID, after)
	if err != nil {
		return after, err
	}
	last := after
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		if err := d.ApplyPatchJSON(e.Patch, ReplayOrigin); err != nil {
			return last, fmt.Errorf("replay %s: entry %d: %w", docID, e.Seq, err)
		}
		last = e.Seq
	}
	j.logger.Debug("replayed", "document", docID, "from", after, "to", last, "entries", len(entries))
	return last, nil
}

// Restore rebuilds a journaled document from its latest snapshot and the
// patches recorded after it. The restored document keeps docID as its id.
// opts configure the new document and must include a catalog that knows
// every journaled type.
func (j *Journal) Restore(ctx context.Context, docID string, opts ...document.Option) (*document.Document, int64, error) {
	data, seq, err := j.snapshot(ctx, docID)
	if err != nil {
		return nil, 0, err
	}
	d, err := document.FromJSON(data, append([]document.Option{document.WithID(docID)}, opts...)...)
	if err != nil {
		return nil, 0, fmt.Errorf("restore %s: %w", docID, err)
	}
	d.Lock()
	defer d.Unlock()
	last, err := j.Replay(ctx, docID, d, seq)
	if err != nil {
		return nil, 0, err
	}
	return d, last, nil
}
