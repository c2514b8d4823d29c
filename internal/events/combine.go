package events

// Combine absorbs a later write to the same node attribute. Both events
// must belong to the same document, carry the same origin and have no
// hint. The combined event keeps its own Old and takes next's New,
// SerializableNew and Invoker.
func (e *ModelChanged) Combine(next Event) bool {
	other, ok := next.(*ModelChanged)
	if !ok {
		return false
	}
	if e.Document != other.Document || e.Origin != other.Origin {
		return false
	}
	if e.Hint != nil || other.Hint != nil {
		return false
	}
	if e.Node != other.Node || e.Attr != other.Attr {
		return false
	}
	e.New = other.New
	e.SerializableNew = other.SerializableNew
	e.Invoker = other.Invoker
	return true
}

// Combine absorbs a later title change on the same document and origin.
func (e *TitleChanged) Combine(next Event) bool {
	other, ok := next.(*TitleChanged)
	if !ok {
		return false
	}
	if e.Document != other.Document || e.Origin != other.Origin {
		return false
	}
	e.Title = other.Title
	e.Invoker = other.Invoker
	return true
}

// CombineInto adds ev to buffer. Buffered events are tried from the most
// recent backward; the first one that absorbs ev ends the scan. If none
// does, ev is appended.
func CombineInto(buffer []Event, ev Event) []Event {
	for i := len(buffer) - 1; i >= 0; i-- {
		if buffer[i].Combine(ev) {
			return buffer
		}
	}
	return append(buffer, ev)
}
