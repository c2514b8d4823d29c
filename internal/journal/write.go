package journal

import (
	"context"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"

	"github.com/bokeh/bokeh-sub002/internal/document"
	"github.com/bokeh/bokeh-sub002/internal/model"
)

// Entry is one journaled patch.
type Entry struct {
	Seq        int64
	DocumentID string
	Origin     model.Origin
	Events     int
	Digest     string
	Patch      []byte
	RecordedAt int64
}

// digest is the hex BLAKE3-256 of an uncompressed payload.
func digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Snapshot stores the full document and marks every patch journaled so
// far as covered by it. Restore starts from the latest snapshot.
//
// The caller must hold the document lock.
func (j *Journal) Snapshot(ctx context.Context, d *document.Document) (int64, error) {
	data, err := d.ToJSON()
	if err != nil {
		return 0, fmt.Errorf("snapshot %s: %w", d.ID(), err)
	}
	seq := j.clock.Next()
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, version, snapshot, snapshot_seq, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			version = excluded.version,
			snapshot = excluded.snapshot,
			snapshot_seq = excluded.snapshot_seq,
			updated_at = excluded.updated_at
	`,
		d.ID(),
		d.Title(),
		d.Version(),
		j.compress(data),
		seq,
		j.clock.Now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("snapshot %s: %w", d.ID(), err)
	}
	j.logger.Debug("snapshot written", "document", d.ID(), "seq", seq, "bytes", len(data))
	return seq, nil
}

// Append journals an encoded patch for a document that has a snapshot.
// The payload is stored zstd-compressed; its digest is computed over the
// uncompressed bytes.
func (j *Journal) Append(ctx context.Context, docID string, origin model.Origin, events int, patch []byte) (Entry, error) {
	e := Entry{
		Seq:        j.clock.Next(),
		DocumentID: docID,
		Origin:     origin,
		Events:     events,
		Digest:     digest(patch),
		Patch:      patch,
		RecordedAt: j.clock.Now().UnixMilli(),
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO patches (seq, document_id, origin, events, digest, payload, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		e.Seq,
		e.DocumentID,
		string(e.Origin),
		e.Events,
		e.Digest,
		j.compress(patch),
		e.RecordedAt,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("append patch for %s: %w", docID, err)
	}
	return e, nil
}

// Compact drops every patch already covered by the document's snapshot.
// Returns the number of rows removed.
func (j *Journal) Compact(ctx context.Context, docID string) (int64, error) {
	res, err := j.db.ExecContext(ctx, `
		DELETE FROM patches
		WHERE document_id = ?
		AND seq <= (SELECT snapshot_seq FROM documents WHERE id = ?)
	`, docID, docID)
	if err != nil {
		return 0, fmt.Errorf("compact %s: %w", docID, err)
	}
	return res.RowsAffected()
}
