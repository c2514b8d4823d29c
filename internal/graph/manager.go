// Package graph maintains the set of nodes reachable from a document's roots.
//
// The Manager owns the reachable-set bookkeeping for one document: it
// attaches newly reachable nodes, detaches nodes that fell out of reach,
// and keeps the id and name indexes current.
//
// INVARIANTS:
//   - A recompute that fails validation changes nothing (no attach, no
//     detach, indexes untouched)
//   - While frozen, Invalidate is a no-op; the outermost PopFreeze
//     recomputes exactly once
//   - Traversal uses an explicit worklist (see model.CollectNodes)
package graph

import (
	"errors"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru"

	"github.com/bokeh/bokeh-sub002/internal/model"
)

// DefaultFormerIDCacheSize bounds how many detached node ids are remembered.
const DefaultFormerIDCacheSize = 10000

// ErrUnbalancedFreeze is returned by PopFreeze without a matching PushFreeze.
var ErrUnbalancedFreeze = errors.New("graph: PopFreeze without matching PushFreeze")

// Hook observes a node entering or leaving the document.
type Hook func(n *model.Node)

// Manager tracks the nodes reachable from a document's roots.
//
// Thread-safety: not safe for concurrent use. The owning document
// serializes access.
type Manager struct {
	doc    model.Document
	roots  func() []*model.Node
	logger *slog.Logger

	onAttach Hook
	onDetach Hook

	nodes  []*model.Node // traversal order
	byID   map[string]*model.Node
	byName map[string][]*model.Node
	former *lru.ARCCache

	freeze     int
	recomputes int
}

// Option configures a Manager.
type Option func(*managerConfig)

type managerConfig struct {
	logger     *slog.Logger
	onAttach   Hook
	onDetach   Hook
	formerSize int
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *managerConfig) {
		c.logger = l
	}
}

// WithAttachHook runs fn on every node as it becomes reachable.
func WithAttachHook(fn Hook) Option {
	return func(c *managerConfig) {
		c.onAttach = fn
	}
}

// WithDetachHook runs fn on every node as it stops being reachable.
func WithDetachHook(fn Hook) Option {
	return func(c *managerConfig) {
		c.onDetach = fn
	}
}

// WithFormerIDCacheSize bounds the former-id cache.
// Default: DefaultFormerIDCacheSize.
func WithFormerIDCacheSize(n int) Option {
	return func(c *managerConfig) {
		c.formerSize = n
	}
}

// New creates a Manager for doc. roots is consulted on every recompute and
// must return the document's current root list.
func New(doc model.Document, roots func() []*model.Node, opts ...Option) (*Manager, error) {
	cfg := managerConfig{
		logger:     slog.Default(),
		formerSize: DefaultFormerIDCacheSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	former, err := lru.NewARC(cfg.formerSize)
	if err != nil {
		return nil, fmt.Errorf("graph: former id cache: %w", err)
	}
	return &Manager{
		doc:      doc,
		roots:    roots,
		logger:   cfg.logger,
		onAttach: cfg.onAttach,
		onDetach: cfg.onDetach,
		byID:     make(map[string]*model.Node),
		byName:   make(map[string][]*model.Node),
		former:   former,
	}, nil
}

// Recompute rebuilds the reachable set from the current roots.
//
// Validation runs first: if any newly reachable node is owned by a
// different document the ownership error is returned and nothing changes.
// Otherwise unreachable nodes are detached (and remembered as former ids),
// new nodes are attached, and both indexes are rebuilt.
func (m *Manager) Recompute() error {
	roots := m.roots()
	vals := make([]model.Value, len(roots))
	for i, r := range roots {
		vals[i] = r
	}
	reachable := model.CollectNodes(vals...)

	next := make(map[string]*model.Node, len(reachable))
	var attached []*model.Node
	for _, n := range reachable {
		next[n.ID()] = n
		if _, known := m.byID[n.ID()]; known {
			continue
		}
		if owner := n.Document(); owner != nil && owner != m.doc {
			return model.NewOwnershipError(n.ID(), m.doc.ID(), owner.ID())
		}
		attached = append(attached, n)
	}

	var detached []*model.Node
	for _, n := range m.nodes {
		if next[n.ID()] != n {
			detached = append(detached, n)
		}
	}
	for _, n := range detached {
		if n.Document() == m.doc {
			n.DetachDocument()
		}
		m.former.Add(n.ID(), n.TypeName())
		if m.onDetach != nil {
			m.onDetach(n)
		}
	}
	for _, n := range attached {
		// Cannot fail: ownership was validated above.
		_ = n.AttachDocument(m.doc)
		m.former.Remove(n.ID())
		if m.onAttach != nil {
			m.onAttach(n)
		}
	}

	m.nodes = reachable
	m.byID = next
	m.byName = make(map[string][]*model.Node)
	for _, n := range reachable {
		if name := n.Name(); name != "" {
			m.byName[name] = append(m.byName[name], n)
		}
	}
	m.recomputes++

	m.logger.Debug("graph recomputed",
		"document", m.doc.ID(),
		"nodes", len(reachable),
		"attached", len(attached),
		"detached", len(detached))
	return nil
}

// PushFreeze suppresses recomputation until the matching PopFreeze.
func (m *Manager) PushFreeze() {
	m.freeze++
}

// PopFreeze ends one freeze level. Returning to zero recomputes once.
// A failing recompute leaves the index as it was; writes made while
// frozen are the caller's to undo, so callers validate ownership before
// changing roots under a freeze.
func (m *Manager) PopFreeze() error {
	if m.freeze == 0 {
		return ErrUnbalancedFreeze
	}
	m.freeze--
	if m.freeze == 0 {
		return m.Recompute()
	}
	return nil
}

// Frozen reports whether recomputation is currently suppressed.
func (m *Manager) Frozen() bool {
	return m.freeze > 0
}

// Freeze runs fn with recomputation suppressed and recomputes once after.
func (m *Manager) Freeze(fn func() error) error {
	m.PushFreeze()
	err := fn()
	if perr := m.PopFreeze(); perr != nil {
		return errors.Join(err, perr)
	}
	return err
}

// Invalidate recomputes unless frozen.
func (m *Manager) Invalidate() error {
	if m.freeze > 0 {
		return nil
	}
	return m.Recompute()
}

// Recomputes returns how many recomputations have run.
func (m *Manager) Recomputes() int {
	return m.recomputes
}

// ByID returns the reachable node with the given id.
func (m *Manager) ByID(id string) (*model.Node, bool) {
	n, ok := m.byID[id]
	return n, ok
}

// ByName returns every reachable node with the given name.
func (m *Manager) ByName(name string) []*model.Node {
	return append([]*model.Node(nil), m.byName[name]...)
}

// OneByName returns the single node with the given name, nil if there is
// none, or an ambiguous-name error if there are several.
func (m *Manager) OneByName(name string) (*model.Node, error) {
	found := m.byName[name]
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		return nil, &model.Error{
			Code:       model.ErrCodeAmbiguousName,
			Message:    fmt.Sprintf("found %d nodes named %q", len(found), name),
			DocumentID: m.doc.ID(),
		}
	}
}

// All returns the reachable nodes in traversal order.
func (m *Manager) All() []*model.Node {
	return append([]*model.Node(nil), m.nodes...)
}

// Len returns the number of reachable nodes.
func (m *Manager) Len() int {
	return len(m.nodes)
}

// Rename moves n within the name index without a recompute. Nodes that
// are not reachable are ignored.
func (m *Manager) Rename(n *model.Node, oldName, newName string) {
	if m.byID[n.ID()] != n {
		return
	}
	if oldName != "" {
		list := m.byName[oldName]
		for i, cand := range list {
			if cand == n {
				list = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(m.byName, oldName)
		} else {
			m.byName[oldName] = list
		}
	}
	if newName != "" {
		m.byName[newName] = append(m.byName[newName], n)
	}
}

// WasFormer reports whether id belonged to a node that was detached from
// this document and has not come back.
func (m *Manager) WasFormer(id string) bool {
	return m.former.Contains(id)
}
