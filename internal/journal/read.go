package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bokeh/bokeh-sub002/internal/model"
)

// ErrNotFound is returned when a document has no journal row.
var ErrNotFound = errors.New("journal: document not found")

// DocumentInfo describes a journaled document.
type DocumentInfo struct {
	ID          string
	Title       string
	Version     string
	SnapshotSeq int64
	Patches     int
	LastSeq     int64
}

// Entries returns the patches journaled for docID with seq greater than
// after, in seq order. Each payload is checked against its digest.
func (j *Journal) Entries(ctx context.Context, docID string, after int64) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, document_id, origin, events, digest, payload, recorded_at
		FROM patches
		WHERE document_id = ? AND seq > ?
		ORDER BY seq
	`, docID, after)
	if err != nil {
		return nil, fmt.Errorf("read entries for %s: %w", docID, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			origin  string
			payload []byte
		)
		if err := rows.Scan(&e.Seq, &e.DocumentID, &origin, &e.Events, &e.Digest, &payload, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Origin = model.Origin(origin)
		e.Patch, err = j.decompress(payload)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", e.Seq, err)
		}
		if got := digest(e.Patch); got != e.Digest {
			return nil, fmt.Errorf("entry %d: digest mismatch: stored %s, computed %s", e.Seq, e.Digest, got)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read entries for %s: %w", docID, err)
	}
	return out, nil
}

// LastSeq returns the highest seq journaled for docID, or 0.
func (j *Journal) LastSeq(ctx context.Context, docID string) (int64, error) {
	return j.lastSeq(ctx, docID)
}

// lastSeq with an empty docID covers the whole journal, snapshots included.
func (j *Journal) lastSeq(ctx context.Context, docID string) (int64, error) {
	var (
		seq sql.NullInt64
		err error
	)
	if docID == "" {
		err = j.db.QueryRowContext(ctx, `
			SELECT MAX(s) FROM (
				SELECT MAX(seq) AS s FROM patches
				UNION ALL
				SELECT MAX(snapshot_seq) AS s FROM documents
			)
		`).Scan(&seq)
	} else {
		err = j.db.QueryRowContext(ctx, `
			SELECT MAX(seq) FROM patches WHERE document_id = ?
		`, docID).Scan(&seq)
	}
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq.Int64, nil
}

// Documents lists every journaled document ordered by id.
func (j *Journal) Documents(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT d.id, d.title, d.version, d.snapshot_seq,
		       COUNT(p.seq), COALESCE(MAX(p.seq), 0)
		FROM documents d
		LEFT JOIN patches p ON p.document_id = d.id
		GROUP BY d.id
		ORDER BY d.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentInfo
	for rows.Next() {
		var info DocumentInfo
		if err := rows.Scan(&info.ID, &info.Title, &info.Version, &info.SnapshotSeq, &info.Patches, &info.LastSeq); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// snapshot returns the decompressed full-document JSON and its seq.
func (j *Journal) snapshot(ctx context.Context, docID string) ([]byte, int64, error) {
	var (
		payload []byte
		seq     int64
	)
	err := j.db.QueryRowContext(ctx, `
		SELECT snapshot, snapshot_seq FROM documents WHERE id = ?
	`, docID).Scan(&payload, &seq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, docID)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read snapshot for %s: %w", docID, err)
	}
	data, err := j.decompress(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot for %s: %w", docID, err)
	}
	return data, seq, nil
}
