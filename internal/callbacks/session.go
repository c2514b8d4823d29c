package callbacks

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/bokeh/bokeh-sub002/internal/events"
	"github.com/bokeh/bokeh-sub002/internal/model"
)

// CallbackKind is the scheduling mode of a session callback.
type CallbackKind int

const (
	// Periodic runs every Period until removed.
	Periodic CallbackKind = iota
	// Timeout runs once after Timeout.
	Timeout
	// NextTick runs once as soon as possible.
	NextTick
)

func (k CallbackKind) String() string {
	switch k {
	case Periodic:
		return "periodic"
	case Timeout:
		return "timeout"
	case NextTick:
		return "next_tick"
	default:
		return fmt.Sprintf("CallbackKind(%d)", int(k))
	}
}

// SessionCallback is a function scheduled against a document by the
// session layer. Its identity is the ID, assigned at construction.
type SessionCallback struct {
	ID      string
	Kind    CallbackKind
	Period  time.Duration
	Timeout time.Duration
	// Unlocked callbacks run without the document lock held.
	Unlocked bool

	fn     func()
	before func()
}

// NewPeriodic creates a callback that runs fn every period.
func NewPeriodic(fn func(), period time.Duration) *SessionCallback {
	return &SessionCallback{ID: uuid.NewString(), Kind: Periodic, Period: period, fn: fn}
}

// NewTimeout creates a callback that runs fn once after timeout.
func NewTimeout(fn func(), timeout time.Duration) *SessionCallback {
	return &SessionCallback{ID: uuid.NewString(), Kind: Timeout, Timeout: timeout, fn: fn}
}

// NewNextTick creates a callback that runs fn once, as soon as possible.
func NewNextTick(fn func()) *SessionCallback {
	return &SessionCallback{ID: uuid.NewString(), Kind: NextTick, fn: fn}
}

// CallbackID implements events.Callback.
func (c *SessionCallback) CallbackID() string {
	return c.ID
}

// Delay returns how long to wait before the first run.
func (c *SessionCallback) Delay() time.Duration {
	switch c.Kind {
	case Periodic:
		return c.Period
	case Timeout:
		return c.Timeout
	default:
		return 0
	}
}

// Prepare performs the bookkeeping that must happen under the document
// lock before the function runs (one-shot removal).
func (c *SessionCallback) Prepare() {
	if c.before != nil {
		c.before()
	}
}

// Invoke runs the function without any bookkeeping.
func (c *SessionCallback) Invoke() {
	if c.fn != nil {
		c.fn()
	}
}

// Run is Prepare followed by Invoke.
func (c *SessionCallback) Run() {
	c.Prepare()
	c.Invoke()
}

// AddSessionCallback registers cb and emits SessionCallbackAdded. A
// one-shot callback removes itself (emitting SessionCallbackRemoved) just
// before its function runs.
func (m *Manager) AddSessionCallback(cb *SessionCallback, oneShot bool) error {
	if m.dead {
		return &model.Error{
			Code:       model.ErrCodeDestroyed,
			Message:    "cannot add a session callback to a destroyed document",
			DocumentID: m.doc.ID(),
		}
	}
	if _, exists := m.session[cb.ID]; exists {
		return fmt.Errorf("session callback %s already added", cb.ID)
	}
	if oneShot {
		cb.before = func() {
			if _, ok := m.session[cb.ID]; ok {
				_ = m.RemoveSessionCallback(cb)
			}
		}
	}
	m.session[cb.ID] = cb
	m.order = append(m.order, cb.ID)
	m.Trigger(&events.SessionCallbackAdded{
		Base:     events.Base{Document: m.doc},
		Callback: cb,
	})
	return nil
}

// RemoveSessionCallback unregisters cb and emits SessionCallbackRemoved.
// Removing a callback that already ran (one-shot) or was already removed
// is an error.
func (m *Manager) RemoveSessionCallback(cb *SessionCallback) error {
	if _, ok := m.session[cb.ID]; !ok {
		return &model.Error{
			Code:       model.ErrCodeUnknownCallback,
			Message:    "callback already ran or was already removed, cannot be removed again",
			DocumentID: m.doc.ID(),
			Details:    map[string]string{"callback": cb.ID},
		}
	}
	delete(m.session, cb.ID)
	m.order = slices.DeleteFunc(m.order, func(id string) bool { return id == cb.ID })
	m.Trigger(&events.SessionCallbackRemoved{
		Base:     events.Base{Document: m.doc},
		Callback: cb,
	})
	return nil
}

// SessionCallbacks returns the registered callbacks in insertion order.
func (m *Manager) SessionCallbacks() []*SessionCallback {
	out := make([]*SessionCallback, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.session[id])
	}
	return out
}
