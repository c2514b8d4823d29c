package callbacks

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bokeh/bokeh-sub002/internal/events"
	"github.com/bokeh/bokeh-sub002/internal/model"
)

type stubDoc struct{ id string }

func (d *stubDoc) ID() string { return d.id }

func (d *stubDoc) NotifyChange(*model.Node, string, model.Value, model.Value, model.Hint, model.Origin, func()) error {
	return nil
}

func newManager(t *testing.T) (*Manager, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(&stubDoc{id: "doc"}, WithLogger(logger)), &buf
}

func title(m *Manager, s string) *events.TitleChanged {
	return &events.TitleChanged{Base: events.Base{Document: m.doc}, Title: s}
}

func TestParseHoldPolicy(t *testing.T) {
	p, err := ParseHoldPolicy("collect")
	require.NoError(t, err)
	assert.Equal(t, HoldCollect, p)

	p, err = ParseHoldPolicy("combine")
	require.NoError(t, err)
	assert.Equal(t, HoldCombine, p)

	_, err = ParseHoldPolicy("bogus")
	assert.Error(t, err)
}

func TestManager_TriggerInvokesBeforeListeners(t *testing.T) {
	m, _ := newManager(t)
	var order []string
	m.OnChange(func(events.Event) { order = append(order, "l1") })
	m.OnChange(func(events.Event) { order = append(order, "l2") })

	ev := title(m, "x")
	ev.Invoker = func() { order = append(order, "invoke") }
	m.Trigger(ev)

	assert.Equal(t, []string{"invoke", "l1", "l2"}, order)
}

func TestManager_HoldCollect(t *testing.T) {
	m, _ := newManager(t)
	var got []string
	m.OnChange(func(ev events.Event) { got = append(got, ev.(*events.TitleChanged).Title) })

	require.NoError(t, m.Hold(HoldCollect))
	m.Trigger(title(m, "a"))
	m.Trigger(title(m, "b"))
	assert.Empty(t, got)
	assert.Equal(t, 2, m.Held())

	m.Unhold()
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 0, m.Held())
	assert.Equal(t, HoldNone, m.HoldValue())
}

func TestManager_HoldCombine(t *testing.T) {
	m, _ := newManager(t)
	var got []string
	m.OnChange(func(ev events.Event) { got = append(got, ev.(*events.TitleChanged).Title) })

	require.NoError(t, m.Hold(HoldCombine))
	m.Trigger(title(m, "a"))
	m.Trigger(title(m, "b"))
	m.Trigger(title(m, "c"))
	m.Unhold()

	assert.Equal(t, []string{"c"}, got)
}

func TestManager_HoldPolicyConflictWarns(t *testing.T) {
	m, logs := newManager(t)
	require.NoError(t, m.Hold(HoldCollect))
	require.NoError(t, m.Hold(HoldCombine))

	assert.Equal(t, HoldCollect, m.HoldValue())
	assert.Contains(t, logs.String(), "hold already active")

	require.NoError(t, m.Hold(HoldCollect), "same policy is fine")
}

func TestManager_HoldUnknownPolicy(t *testing.T) {
	m, _ := newManager(t)
	assert.Error(t, m.Hold(HoldPolicy(42)))
	assert.Error(t, m.Hold(HoldNone))
	assert.Equal(t, HoldNone, m.HoldValue())
}

func TestManager_UnholdWithoutHoldIsNoop(t *testing.T) {
	m, _ := newManager(t)
	m.Unhold()
	assert.Equal(t, HoldNone, m.HoldValue())
}

func TestManager_RemoveOnChange(t *testing.T) {
	m, _ := newManager(t)
	calls := 0
	id := m.OnChange(func(events.Event) { calls++ })

	require.NoError(t, m.RemoveOnChange(id))
	m.Trigger(title(m, "x"))
	assert.Equal(t, 0, calls)

	err := m.RemoveOnChange(id)
	assert.True(t, model.IsUnknownCallback(err))
}

type streamReceiver struct{ n int }

func (r *streamReceiver) DocumentPatched(events.Event) { r.n++ }

func TestManager_OnChangeDispatchTo(t *testing.T) {
	m, _ := newManager(t)
	r := &streamReceiver{}
	m.OnChangeDispatchTo(r)

	m.Trigger(title(m, "x"))
	assert.Equal(t, 1, r.n)
}

func TestManager_SessionCallbacks(t *testing.T) {
	m, _ := newManager(t)
	var kinds []events.Kind
	m.OnChange(func(ev events.Event) { kinds = append(kinds, ev.Kind()) })

	ran := 0
	cb := NewNextTick(func() { ran++ })
	require.NoError(t, m.AddSessionCallback(cb, true))
	assert.Equal(t, []*SessionCallback{cb}, m.SessionCallbacks())

	cb.Run()
	assert.Equal(t, 1, ran)
	assert.Empty(t, m.SessionCallbacks(), "one-shot removes itself")
	assert.Equal(t, []events.Kind{events.KindSessionCallbackAdded, events.KindSessionCallbackRemoved}, kinds)

	err := m.RemoveSessionCallback(cb)
	assert.True(t, model.IsUnknownCallback(err), "removing twice is an error")
}

func TestManager_PeriodicIsNotOneShot(t *testing.T) {
	m, _ := newManager(t)
	cb := NewPeriodic(func() {}, 0)
	require.NoError(t, m.AddSessionCallback(cb, false))

	cb.Run()
	cb.Run()
	assert.Len(t, m.SessionCallbacks(), 1)
	require.NoError(t, m.RemoveSessionCallback(cb))
}

func TestManager_Destroy(t *testing.T) {
	m, _ := newManager(t)
	destroyed := 0
	m.OnSessionDestroyed(func() { destroyed++ })
	m.OnChange(func(events.Event) {})

	m.Destroy()
	m.Destroy()
	assert.Equal(t, 1, destroyed)
	assert.Equal(t, 0, m.Listeners())
	assert.True(t, m.Destroyed())

	err := m.AddSessionCallback(NewNextTick(func() {}), true)
	assert.True(t, model.HasCode(err, model.ErrCodeDestroyed))
}

func TestManager_DestroyDeliversHeldEvents(t *testing.T) {
	m, _ := newManager(t)
	var got []events.Kind
	m.OnChange(func(ev events.Event) { got = append(got, ev.Kind()) })

	require.NoError(t, m.Hold(HoldCollect))
	m.Trigger(title(m, "a"))
	m.Destroy()

	assert.Equal(t, []events.Kind{events.KindTitleChanged}, got)
	assert.Equal(t, HoldNone, m.HoldValue())
	assert.Zero(t, m.Held())
}
