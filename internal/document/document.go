// Package document ties the graph, event and callback layers together into
// a synchronizable document.
//
// A Document owns an ordered list of roots, a title and everything
// reachable from the roots. Every change to that state produces an event;
// events are delivered to listeners (subject to the hold policy) and can be
// encoded as a wire patch with CreatePatch. A peer's patch is applied with
// ApplyPatch, tagging every write with the peer's origin so the peer can
// recognize its own echo.
//
// INVARIANTS:
//   - Roots hold no duplicates; insertion order is preserved
//   - A node belongs to at most one document at a time
//   - ApplyPatch either applies the whole patch or changes nothing
//   - Session callbacks receive an explicit Handle; there is no ambient
//     "current document"
//
// Thread-safety: a Document is not safe for concurrent use. Callers hold
// Lock around every call, the way the session layer and the callback
// Scheduler do.
package document

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/bokeh/bokeh-sub002/internal/callbacks"
	"github.com/bokeh/bokeh-sub002/internal/events"
	"github.com/bokeh/bokeh-sub002/internal/graph"
	"github.com/bokeh/bokeh-sub002/internal/model"
)

const (
	// DefaultTitle is the title of a new document.
	DefaultTitle = "Untitled"
	// DefaultVersion is reported in the full-document representation.
	DefaultVersion = "0.1.0"
)

// Theme styles nodes as they enter and leave the document. Value
// application is up to the implementation.
type Theme interface {
	Apply(n *model.Node)
	Unapply(n *model.Node)
}

// Document is a synchronizable graph of nodes.
type Document struct {
	mu sync.Mutex

	id      string
	title   string
	version string
	roots   []*model.Node
	theme   Theme

	catalog   *model.Catalog
	logger    *slog.Logger
	graph     *graph.Manager
	callbacks *callbacks.Manager
	scheduler *callbacks.Scheduler
}

// Option configures a Document.
type Option func(*config)

type config struct {
	id         string
	title      string
	version    string
	catalog    *model.Catalog
	logger     *slog.Logger
	theme      Theme
	formerSize int
	scheduler  bool
}

// WithID sets the document id. Default: a new random UUID.
func WithID(id string) Option {
	return func(c *config) {
		c.id = id
	}
}

// WithTitle sets the initial title. Default: DefaultTitle.
func WithTitle(title string) Option {
	return func(c *config) {
		c.title = title
	}
}

// WithVersion sets the version string. Default: DefaultVersion.
func WithVersion(v string) Option {
	return func(c *config) {
		c.version = v
	}
}

// WithCatalog sets the type catalog used to instantiate nodes from patches
// and full-document JSON. Default: an empty catalog.
func WithCatalog(cat *model.Catalog) Option {
	return func(c *config) {
		c.catalog = cat
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithTheme sets the theme applied to attached nodes.
func WithTheme(t Theme) Option {
	return func(c *config) {
		c.theme = t
	}
}

// WithFormerIDCacheSize bounds how many detached node ids are remembered
// for diagnostics. Default: graph.DefaultFormerIDCacheSize.
func WithFormerIDCacheSize(n int) Option {
	return func(c *config) {
		c.formerSize = n
	}
}

// WithScheduler runs session callbacks on timers under the document lock.
// Without it, session callbacks only run when the session layer calls
// them. A scheduled document must be closed with Close.
func WithScheduler() Option {
	return func(c *config) {
		c.scheduler = true
	}
}

// New creates an empty document.
func New(opts ...Option) (*Document, error) {
	cfg := config{
		title:      DefaultTitle,
		version:    DefaultVersion,
		logger:     slog.Default(),
		formerSize: graph.DefaultFormerIDCacheSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.catalog == nil {
		cfg.catalog = model.NewCatalog()
	}
	if cfg.id == "" {
		cfg.id = uuid.NewString()
	}

	d := &Document{
		id:      cfg.id,
		title:   cfg.title,
		version: cfg.version,
		theme:   cfg.theme,
		catalog: cfg.catalog,
	}
	d.logger = cfg.logger.With("document", d.id)

	g, err := graph.New(d, d.Roots,
		graph.WithLogger(d.logger),
		graph.WithFormerIDCacheSize(cfg.formerSize),
		graph.WithAttachHook(d.attached),
		graph.WithDetachHook(d.detached),
	)
	if err != nil {
		return nil, fmt.Errorf("new document: %w", err)
	}
	d.graph = g
	d.callbacks = callbacks.New(d, callbacks.WithLogger(d.logger))
	if cfg.scheduler {
		d.scheduler = callbacks.NewScheduler(&d.mu, d.logger)
		d.callbacks.OnChangeDispatchTo(d.scheduler)
	}
	return d, nil
}

// ID returns the document id.
func (d *Document) ID() string {
	return d.id
}

// Lock acquires the document lock.
func (d *Document) Lock() {
	d.mu.Lock()
}

// Unlock releases the document lock.
func (d *Document) Unlock() {
	d.mu.Unlock()
}

// Close stops the callback scheduler, if any, and waits for running
// callbacks. It must not be called with the lock held.
func (d *Document) Close() {
	if d.scheduler != nil {
		d.scheduler.Close()
	}
}

// Catalog returns the type catalog.
func (d *Document) Catalog() *model.Catalog {
	return d.catalog
}

// Version returns the version string.
func (d *Document) Version() string {
	return d.version
}

// Title returns the title.
func (d *Document) Title() string {
	return d.title
}

// SetTitle changes the title and emits TitleChanged. Setting the current
// title again emits nothing.
func (d *Document) SetTitle(title string, opts ...model.SetOption) {
	if title == d.title {
		return
	}
	d.title = title
	d.callbacks.Trigger(&events.TitleChanged{
		Base:  events.Base{Document: d, Origin: model.OriginOf(opts...)},
		Title: title,
	})
}

// Roots returns the roots in insertion order.
func (d *Document) Roots() []*model.Node {
	return slices.Clone(d.roots)
}

// AddRoot appends n to the roots and emits RootAdded. Adding an existing
// root is a no-op. If n or anything it references belongs to another
// document the roots are left unchanged and the ownership error returned.
func (d *Document) AddRoot(n *model.Node, opts ...model.SetOption) error {
	if slices.Contains(d.roots, n) {
		return nil
	}
	// Checked up front so a frozen graph never holds a root it cannot attach.
	for _, ref := range n.References() {
		if owner := ref.Document(); owner != nil && owner != model.Document(d) {
			return model.NewOwnershipError(ref.ID(), d.id, owner.ID())
		}
	}
	d.roots = append(d.roots, n)
	if err := d.graph.Invalidate(); err != nil {
		d.roots = d.roots[:len(d.roots)-1]
		return fmt.Errorf("add root %s: %w", n.ID(), err)
	}
	d.callbacks.Trigger(&events.RootAdded{
		Base: events.Base{Document: d, Origin: model.OriginOf(opts...)},
		Node: n,
	})
	return nil
}

// RemoveRoot removes n from the roots and emits RootRemoved. Removing a
// node that is not a root is a no-op. Nodes still referenced from other
// roots stay attached.
func (d *Document) RemoveRoot(n *model.Node, opts ...model.SetOption) error {
	i := slices.Index(d.roots, n)
	if i < 0 {
		return nil
	}
	d.roots = slices.Delete(d.roots, i, i+1)
	if err := d.graph.Invalidate(); err != nil {
		d.roots = slices.Insert(d.roots, i, n)
		return fmt.Errorf("remove root %s: %w", n.ID(), err)
	}
	d.callbacks.Trigger(&events.RootRemoved{
		Base: events.Base{Document: d, Origin: model.OriginOf(opts...)},
		Node: n,
	})
	return nil
}

// Clear removes every root, recomputing the reachable set once. The title
// is kept.
func (d *Document) Clear() error {
	return d.graph.Freeze(func() error {
		for len(d.roots) > 0 {
			if err := d.RemoveRoot(d.roots[0]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Theme returns the current theme, or nil.
func (d *Document) Theme() Theme {
	return d.theme
}

// SetTheme replaces the theme, unapplying the old one and applying the new
// one to every attached node.
func (d *Document) SetTheme(t Theme) {
	if t == d.theme {
		return
	}
	nodes := d.graph.All()
	if d.theme != nil {
		for _, n := range nodes {
			d.theme.Unapply(n)
		}
	}
	d.theme = t
	if t != nil {
		for _, n := range nodes {
			t.Apply(n)
		}
	}
}

func (d *Document) attached(n *model.Node) {
	if d.theme != nil {
		d.theme.Apply(n)
	}
}

func (d *Document) detached(n *model.Node) {
	if d.theme != nil {
		d.theme.Unapply(n)
	}
}

// NotifyChange implements model.Document. Nodes call it after an
// attribute changed; the change is turned into a ModelChanged event.
//
// A write whose old or new value references nodes recomputes the reachable
// set (unless frozen). In-place container changes count as writes, so
// nodes streamed or patched into columns are attached immediately. If that recompute fails, for example because the
// new value holds a node owned by another document, the error is returned
// and the node rolls the write back.
func (d *Document) NotifyChange(n *model.Node, attr string, old, new model.Value, hint model.Hint, origin model.Origin, invoke func()) error {
	if model.HasReferences(old) || model.HasReferences(new) {
		if err := d.graph.Invalidate(); err != nil {
			return err
		}
	}
	if attr == "name" {
		d.graph.Rename(n, nameOf(old), nameOf(new))
	}

	ev := &events.ModelChanged{
		Base: events.Base{Document: d, Origin: origin, Invoker: invoke},
		Node: n,
		Attr: attr,
		Old:  old,
		New:  new,
		Hint: hint,
	}
	if hint == nil {
		ev.SerializableNew = n.SerializableValue(attr)
	}
	d.callbacks.Trigger(ev)
	return nil
}

func nameOf(v model.Value) string {
	if s, ok := v.(model.String); ok {
		return string(s)
	}
	return ""
}

// Hold starts buffering events. See callbacks.Manager.Hold.
func (d *Document) Hold(policy callbacks.HoldPolicy) error {
	return d.callbacks.Hold(policy)
}

// Unhold releases buffered events.
func (d *Document) Unhold() {
	d.callbacks.Unhold()
}

// HoldValue returns the active hold policy.
func (d *Document) HoldValue() callbacks.HoldPolicy {
	return d.callbacks.HoldValue()
}

// OnChange registers a listener for every delivered event.
func (d *Document) OnChange(fn callbacks.Listener) callbacks.ListenerID {
	return d.callbacks.OnChange(fn)
}

// OnChangeDispatchTo registers receiver for typed event delivery (see
// events.Dispatch).
func (d *Document) OnChangeDispatchTo(receiver any) callbacks.ListenerID {
	return d.callbacks.OnChangeDispatchTo(receiver)
}

// RemoveOnChange unregisters a listener.
func (d *Document) RemoveOnChange(id callbacks.ListenerID) error {
	return d.callbacks.RemoveOnChange(id)
}

// OnSessionDestroyed registers fn to run when the document is destroyed.
func (d *Document) OnSessionDestroyed(fn func()) {
	d.callbacks.OnSessionDestroyed(fn)
}

// Destroy revokes every session callback, runs the session-destroyed
// callbacks and detaches every node. The document cannot schedule
// callbacks afterwards.
//
// An active hold is released first so the removal events reach the
// scheduler and every other listener.
func (d *Document) Destroy() {
	if d.callbacks.Destroyed() {
		return
	}
	d.callbacks.Unhold()
	for _, cb := range d.callbacks.SessionCallbacks() {
		_ = d.callbacks.RemoveSessionCallback(cb)
	}
	d.callbacks.Destroy()
	d.roots = nil
	// Cannot fail: no node becomes reachable.
	_ = d.graph.Recompute()
	d.logger.Debug("document destroyed")
}

// GetModelByID returns the attached node with the given id.
func (d *Document) GetModelByID(id string) (*model.Node, bool) {
	return d.graph.ByID(id)
}

// GetModelByName returns the one attached node with the given name, nil if
// there is none, or an ambiguous-name error.
func (d *Document) GetModelByName(name string) (*model.Node, error) {
	return d.graph.OneByName(name)
}

// Models returns every attached node in traversal order.
func (d *Document) Models() []*model.Node {
	return d.graph.All()
}

// Validate checks the integrity of the reachable graph: every node is owned
// by this document and no two distinct nodes share an id.
func (d *Document) Validate() error {
	vals := make([]model.Value, len(d.roots))
	for i, r := range d.roots {
		vals[i] = r
	}
	seen := make(map[string]*model.Node)
	for _, n := range model.CollectNodes(vals...) {
		if prev, ok := seen[n.ID()]; ok && prev != n {
			return &model.Error{
				Code:       model.ErrCodeDuplicateID,
				Message:    "two distinct nodes share an id",
				NodeID:     n.ID(),
				DocumentID: d.id,
			}
		}
		seen[n.ID()] = n
		if owner := n.Document(); owner != model.Document(d) {
			ownerID := ""
			if owner != nil {
				ownerID = owner.ID()
			}
			return model.NewOwnershipError(n.ID(), d.id, ownerID)
		}
	}
	return nil
}

// DestructivelyMove moves every root and the title into dest, leaving d
// empty. dest is cleared first.
func (d *Document) DestructivelyMove(dest *Document) error {
	if dest == d {
		return fmt.Errorf("attempted to overwrite a document with itself")
	}
	if err := dest.Clear(); err != nil {
		return err
	}
	// Remove every root before adding any, so a node shared by two roots
	// is never attached to both documents at once.
	roots := d.Roots()
	if err := d.Clear(); err != nil {
		return err
	}
	for _, r := range roots {
		if r.Document() != nil {
			return fmt.Errorf("root %s was not detached", r.ID())
		}
	}
	if d.graph.Len() != 0 {
		return fmt.Errorf("%d nodes still attached after removing every root", d.graph.Len())
	}
	err := dest.graph.Freeze(func() error {
		for _, r := range roots {
			if err := dest.AddRoot(r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	dest.SetTitle(d.title)
	return nil
}
