package events

// Receivers opt in to the notifications they care about by implementing
// any subset of the interfaces below. Dispatch calls every one that
// applies, from the most general to the most specific.

type DocumentChangedReceiver interface {
	DocumentChanged(ev Event)
}

type DocumentPatchedReceiver interface {
	DocumentPatched(ev Event)
}

type ModelChangedReceiver interface {
	ModelChanged(ev *ModelChanged)
}

type ColumnDataChangedReceiver interface {
	ColumnDataChanged(ev *ColumnDataChanged)
}

type ColumnsStreamedReceiver interface {
	ColumnsStreamed(ev *ColumnsStreamed)
}

type ColumnsPatchedReceiver interface {
	ColumnsPatched(ev *ColumnsPatched)
}

type SessionCallbackAddedReceiver interface {
	SessionCallbackAdded(ev *SessionCallbackAdded)
}

type SessionCallbackRemovedReceiver interface {
	SessionCallbackRemoved(ev *SessionCallbackRemoved)
}

// Dispatch delivers ev to receiver. A ModelChanged with a hint is also
// delivered as its hinted event.
func Dispatch(ev Event, receiver any) {
	if r, ok := receiver.(DocumentChangedReceiver); ok {
		r.DocumentChanged(ev)
	}
	if ev.Patchable() {
		if r, ok := receiver.(DocumentPatchedReceiver); ok {
			r.DocumentPatched(ev)
		}
	}

	switch e := ev.(type) {
	case *ModelChanged:
		if r, ok := receiver.(ModelChangedReceiver); ok {
			r.ModelChanged(e)
		}
		if hinted := HintEvent(e); hinted != nil {
			dispatchSpecific(hinted, receiver)
		}
	default:
		dispatchSpecific(ev, receiver)
	}
}

func dispatchSpecific(ev Event, receiver any) {
	switch e := ev.(type) {
	case *ColumnDataChanged:
		if r, ok := receiver.(ColumnDataChangedReceiver); ok {
			r.ColumnDataChanged(e)
		}
	case *ColumnsStreamed:
		if r, ok := receiver.(ColumnsStreamedReceiver); ok {
			r.ColumnsStreamed(e)
		}
	case *ColumnsPatched:
		if r, ok := receiver.(ColumnsPatchedReceiver); ok {
			r.ColumnsPatched(e)
		}
	case *SessionCallbackAdded:
		if r, ok := receiver.(SessionCallbackAddedReceiver); ok {
			r.SessionCallbackAdded(e)
		}
	case *SessionCallbackRemoved:
		if r, ok := receiver.(SessionCallbackRemovedReceiver); ok {
			r.SessionCallbackRemoved(e)
		}
	}
}
