// Package callbacks routes document change events to listeners.
//
// The Manager holds three pieces of state for one document: the hold
// policy with its buffer of deferred events, the ordered change listeners,
// and the table of session callbacks (periodic, timeout, next-tick).
//
// Thread-safety: a Manager is not safe for concurrent use. The owning
// document serializes access with its lock. The Scheduler is the only
// type here that runs goroutines; it takes the document lock before
// touching the Manager.
package callbacks

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/bokeh/bokeh-sub002/internal/events"
	"github.com/bokeh/bokeh-sub002/internal/model"
)

// HoldPolicy controls how events are delivered.
type HoldPolicy int

const (
	// HoldNone delivers every event immediately.
	HoldNone HoldPolicy = iota
	// HoldCollect buffers events verbatim until Unhold.
	HoldCollect
	// HoldCombine buffers events, coalescing where events.Combine allows.
	HoldCombine
)

func (p HoldPolicy) String() string {
	switch p {
	case HoldNone:
		return "none"
	case HoldCollect:
		return "collect"
	case HoldCombine:
		return "combine"
	default:
		return fmt.Sprintf("HoldPolicy(%d)", int(p))
	}
}

// ParseHoldPolicy parses "collect" or "combine".
func ParseHoldPolicy(s string) (HoldPolicy, error) {
	switch s {
	case "collect":
		return HoldCollect, nil
	case "combine":
		return HoldCombine, nil
	default:
		return HoldNone, fmt.Errorf("unknown hold policy %q", s)
	}
}

// Listener observes every delivered event.
type Listener func(ev events.Event)

// ListenerID identifies a registered listener for RemoveOnChange.
type ListenerID uint64

type listenerEntry struct {
	id ListenerID
	fn Listener
}

// Manager delivers events for one document.
type Manager struct {
	doc    model.Document
	logger *slog.Logger

	hold HoldPolicy
	held []events.Event

	listeners    []listenerEntry
	nextListener ListenerID

	session   map[string]*SessionCallback
	order     []string // session callback ids in insertion order
	destroyed []func()
	dead      bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// New creates a Manager for doc.
func New(doc model.Document, opts ...Option) *Manager {
	m := &Manager{
		doc:     doc,
		logger:  slog.Default(),
		session: make(map[string]*SessionCallback),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Hold starts buffering events under policy. Asking for a different policy
// while already holding logs a warning and keeps the current policy.
func (m *Manager) Hold(policy HoldPolicy) error {
	if m.hold != HoldNone && m.hold != policy {
		m.logger.Warn("hold already active, ignoring new policy",
			"document", m.doc.ID(),
			"current", m.hold.String(),
			"requested", policy.String())
		return nil
	}
	if policy != HoldCollect && policy != HoldCombine {
		return fmt.Errorf("unknown hold policy %s", policy)
	}
	m.hold = policy
	m.logger.Debug("hold", "document", m.doc.ID(), "policy", policy.String())
	return nil
}

// HoldValue returns the active policy.
func (m *Manager) HoldValue() HoldPolicy {
	return m.hold
}

// Held returns the number of buffered events.
func (m *Manager) Held() int {
	return len(m.held)
}

// Trigger delivers ev according to the hold policy. When delivered
// immediately, the event's deferred invocation runs first, then every
// listener in registration order.
func (m *Manager) Trigger(ev events.Event) {
	switch m.hold {
	case HoldCollect:
		m.held = append(m.held, ev)
		return
	case HoldCombine:
		m.held = events.CombineInto(m.held, ev)
		return
	}

	ev.Invoke()
	for _, l := range slices.Clone(m.listeners) {
		l.fn(ev)
	}
}

// Unhold stops holding and replays buffered events in production order.
// It is a no-op when not holding.
func (m *Manager) Unhold() {
	if m.hold == HoldNone {
		return
	}
	m.hold = HoldNone
	held := m.held
	m.held = nil
	m.logger.Debug("unhold", "document", m.doc.ID(), "events", len(held))
	for _, ev := range held {
		m.Trigger(ev)
	}
}

// OnChange registers fn to observe every delivered event.
func (m *Manager) OnChange(fn Listener) ListenerID {
	m.nextListener++
	m.listeners = append(m.listeners, listenerEntry{id: m.nextListener, fn: fn})
	return m.nextListener
}

// OnChangeDispatchTo registers receiver for events.Dispatch delivery.
func (m *Manager) OnChangeDispatchTo(receiver any) ListenerID {
	return m.OnChange(func(ev events.Event) {
		events.Dispatch(ev, receiver)
	})
}

// RemoveOnChange unregisters a listener. Removing an unknown or already
// removed listener is an error.
func (m *Manager) RemoveOnChange(id ListenerID) error {
	for i, l := range m.listeners {
		if l.id == id {
			m.listeners = slices.Delete(m.listeners, i, i+1)
			return nil
		}
	}
	return &model.Error{
		Code:       model.ErrCodeUnknownCallback,
		Message:    fmt.Sprintf("change listener %d was never added or was already removed", id),
		DocumentID: m.doc.ID(),
	}
}

// Listeners returns the number of registered listeners.
func (m *Manager) Listeners() int {
	return len(m.listeners)
}

// OnSessionDestroyed registers fn to run once when the document is destroyed.
func (m *Manager) OnSessionDestroyed(fn func()) {
	m.destroyed = append(m.destroyed, fn)
}

// Destroy releases any hold, runs the session-destroyed callbacks and
// drops every listener and session callback. Buffered events are
// delivered before the listeners go away. A destroyed Manager accepts no
// new session callbacks.
func (m *Manager) Destroy() {
	if m.dead {
		return
	}
	m.Unhold()
	m.dead = true
	for _, fn := range m.destroyed {
		fn()
	}
	m.destroyed = nil
	m.listeners = nil
	clear(m.session)
	m.order = nil
}

// Destroyed reports whether Destroy has run.
func (m *Manager) Destroyed() bool {
	return m.dead
}
