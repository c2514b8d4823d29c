package document

import (
	"time"

	"github.com/bokeh/bokeh-sub002/internal/callbacks"
	"github.com/bokeh/bokeh-sub002/internal/model"
)

// Handle is what a session callback receives in place of an ambient
// current document: the Document itself for callbacks that run under the
// lock, or an UnlockedDocument for callbacks that do not.
type Handle interface {
	// Document returns the full document, or a restricted-handle error.
	Document() (*Document, error)
	AddNextTickCallback(fn Callback, opts ...CallbackOption) (*callbacks.SessionCallback, error)
	RemoveNextTickCallback(cb *callbacks.SessionCallback) error
}

// Callback is the function run by a session callback.
type Callback func(h Handle)

// CallbackOption configures a session callback.
type CallbackOption func(*callbackConfig)

type callbackConfig struct {
	unlocked bool
}

// Unlocked runs the callback without the document lock. It receives an
// UnlockedDocument and may only schedule or cancel next-tick callbacks.
func Unlocked() CallbackOption {
	return func(c *callbackConfig) {
		c.unlocked = true
	}
}

var _ Handle = (*Document)(nil)
var _ Handle = (*UnlockedDocument)(nil)

// Document implements Handle.
func (d *Document) Document() (*Document, error) {
	return d, nil
}

// AddNextTickCallback runs fn once, as soon as possible.
func (d *Document) AddNextTickCallback(fn Callback, opts ...CallbackOption) (*callbacks.SessionCallback, error) {
	return d.addSessionCallback(callbacks.NewNextTick, fn, true, opts)
}

// AddTimeoutCallback runs fn once after timeout.
func (d *Document) AddTimeoutCallback(fn Callback, timeout time.Duration, opts ...CallbackOption) (*callbacks.SessionCallback, error) {
	mk := func(f func()) *callbacks.SessionCallback { return callbacks.NewTimeout(f, timeout) }
	return d.addSessionCallback(mk, fn, true, opts)
}

// AddPeriodicCallback runs fn every period until removed.
func (d *Document) AddPeriodicCallback(fn Callback, period time.Duration, opts ...CallbackOption) (*callbacks.SessionCallback, error) {
	mk := func(f func()) *callbacks.SessionCallback { return callbacks.NewPeriodic(f, period) }
	return d.addSessionCallback(mk, fn, false, opts)
}

func (d *Document) addSessionCallback(mk func(func()) *callbacks.SessionCallback, fn Callback, oneShot bool, opts []CallbackOption) (*callbacks.SessionCallback, error) {
	cfg := callbackConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	var h Handle = d
	if cfg.unlocked {
		h = &UnlockedDocument{doc: d}
	}
	cb := mk(func() { fn(h) })
	cb.Unlocked = cfg.unlocked
	if err := d.callbacks.AddSessionCallback(cb, oneShot); err != nil {
		return nil, err
	}
	return cb, nil
}

// RemoveNextTickCallback cancels a callback added with AddNextTickCallback.
// Cancelling a callback that already ran or was already cancelled is an
// error.
func (d *Document) RemoveNextTickCallback(cb *callbacks.SessionCallback) error {
	return d.removeSessionCallback(cb, callbacks.NextTick)
}

// RemoveTimeoutCallback cancels a callback added with AddTimeoutCallback.
func (d *Document) RemoveTimeoutCallback(cb *callbacks.SessionCallback) error {
	return d.removeSessionCallback(cb, callbacks.Timeout)
}

// RemovePeriodicCallback cancels a callback added with AddPeriodicCallback.
func (d *Document) RemovePeriodicCallback(cb *callbacks.SessionCallback) error {
	return d.removeSessionCallback(cb, callbacks.Periodic)
}

func (d *Document) removeSessionCallback(cb *callbacks.SessionCallback, kind callbacks.CallbackKind) error {
	if cb == nil || cb.Kind != kind {
		return &model.Error{
			Code:       model.ErrCodeUnknownCallback,
			Message:    "callback was never added as a " + kind.String() + " callback",
			DocumentID: d.id,
		}
	}
	return d.callbacks.RemoveSessionCallback(cb)
}

// SessionCallbacks returns the scheduled session callbacks in insertion
// order.
func (d *Document) SessionCallbacks() []*callbacks.SessionCallback {
	return d.callbacks.SessionCallbacks()
}

// UnlockedDocument is the restricted handle given to callbacks that run
// without the document lock. Only next-tick scheduling is allowed; those
// methods take the lock themselves.
type UnlockedDocument struct {
	doc *Document
}

// Document always fails: the full document must not be touched without
// the lock.
func (u *UnlockedDocument) Document() (*Document, error) {
	return nil, &model.Error{
		Code:       model.ErrCodeRestricted,
		Message:    "only AddNextTickCallback and RemoveNextTickCallback may be used without the document lock",
		DocumentID: u.doc.id,
	}
}

// AddNextTickCallback schedules fn under the document lock.
func (u *UnlockedDocument) AddNextTickCallback(fn Callback, opts ...CallbackOption) (*callbacks.SessionCallback, error) {
	u.doc.Lock()
	defer u.doc.Unlock()
	return u.doc.AddNextTickCallback(fn, opts...)
}

// RemoveNextTickCallback cancels a next-tick callback under the document
// lock.
func (u *UnlockedDocument) RemoveNextTickCallback(cb *callbacks.SessionCallback) error {
	u.doc.Lock()
	defer u.doc.Unlock()
	return u.doc.RemoveNextTickCallback(cb)
}
