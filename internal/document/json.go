package document

import (
	"encoding/json"
	"fmt"

	"github.com/bokeh/bokeh-sub002/internal/model"
	"github.com/bokeh/bokeh-sub002/internal/wire"
)

// ToWire returns the full-document representation: the title, the root
// ids and the definition of every attached node.
func (d *Document) ToWire() (wire.Document, error) {
	out := wire.Document{
		Title:   d.title,
		Version: d.version,
		Roots: wire.Roots{
			RootIDs:    make([]string, 0, len(d.roots)),
			References: make([]wire.Node, 0, d.graph.Len()),
		},
	}
	for _, r := range d.roots {
		out.Roots.RootIDs = append(out.Roots.RootIDs, r.ID())
	}
	for _, n := range d.graph.All() {
		def, err := wire.EncodeNode(n)
		if err != nil {
			return wire.Document{}, fmt.Errorf("document %s: %w", d.id, err)
		}
		out.Roots.References = append(out.Roots.References, def)
	}
	return out, nil
}

// ToJSON encodes the full document.
func (d *Document) ToJSON() ([]byte, error) {
	wd, err := d.ToWire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(wd)
}

// FromWire builds a new document from its full representation. Node types
// are looked up in the catalog given by WithCatalog.
func FromWire(wd wire.Document, opts ...Option) (*Document, error) {
	d, err := New(opts...)
	if err != nil {
		return nil, err
	}
	a := newApplier(d, model.NoOrigin)
	if err := a.instantiate(wd.Roots.References); err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if err := a.decodeReferences(wd.Roots.References); err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	roots := make([]*model.Node, 0, len(wd.Roots.RootIDs))
	for _, id := range wd.Roots.RootIDs {
		n, ok := a.resolve(id)
		if !ok {
			return nil, fmt.Errorf("load document: %w", model.NewUnknownReferenceError(id, "root ids"))
		}
		roots = append(roots, n)
	}
	if err := a.commit(); err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	err = d.graph.Freeze(func() error {
		for _, r := range roots {
			if err := d.AddRoot(r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	d.title = wd.Title
	if wd.Version != "" && wd.Version != d.version {
		d.logger.Debug("loaded document from a different version", "version", wd.Version)
	}
	return d, nil
}

// FromJSON decodes a full document.
func FromJSON(data []byte, opts ...Option) (*Document, error) {
	var wd wire.Document
	if err := json.Unmarshal(data, &wd); err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	return FromWire(wd, opts...)
}

// ReplaceWithJSON overwrites d's roots and title with the document encoded
// in data. Listeners see the old roots removed and the new ones added.
func (d *Document) ReplaceWithJSON(data []byte) error {
	replacement, err := FromJSON(data, WithCatalog(d.catalog), WithVersion(d.version))
	if err != nil {
		return err
	}
	return replacement.DestructivelyMove(d)
}
