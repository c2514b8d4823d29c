// Package testutil provides shared fixtures for tests across packages.
package testutil

import (
	"sync"
	"time"

	"github.com/bokeh/bokeh-sub002/internal/callbacks"
	"github.com/bokeh/bokeh-sub002/internal/events"
	"github.com/bokeh/bokeh-sub002/internal/model"
)

// Catalog returns a small plotting catalog with sequential ids ("n1001",
// "n1002", ...), so encoded output is stable across runs.
//
// Types: Plot (subtype Figure), Renderer, Source (columnar "data"),
// Glyph, Toolbar, Tool.
func Catalog() *model.Catalog {
	c := model.NewCatalog(model.WithIDGenerator(model.NewSequentialIDs("n", 1000)))
	c.MustRegister(&model.Type{
		Name:    "Plot",
		Subtype: "Figure",
		Defaults: map[string]model.Value{
			"title":     model.String(""),
			"width":     model.Int(600),
			"renderers": model.Array{},
			"toolbar":   model.Null{},
		},
	})
	c.MustRegister(&model.Type{
		Name: "Renderer",
		Defaults: map[string]model.Value{
			"source":  model.Null{},
			"glyph":   model.Null{},
			"visible": model.Bool(true),
		},
	})
	c.MustRegister(&model.Type{
		Name: "Source",
		Defaults: map[string]model.Value{
			"selected": model.Array{},
		},
		Columnar: map[string]bool{"data": true},
	})
	c.MustRegister(&model.Type{
		Name: "Glyph",
		Defaults: map[string]model.Value{
			"x":     model.String("x"),
			"y":     model.String("y"),
			"color": model.String("blue"),
		},
	})
	c.MustRegister(&model.Type{
		Name: "Toolbar",
		Defaults: map[string]model.Value{
			"tools":  model.Array{},
			"active": model.Null{},
		},
	})
	c.MustRegister(&model.Type{
		Name: "Tool",
		Defaults: map[string]model.Value{
			"kind": model.String("pan"),
		},
	})
	return c
}

// Recorder is a change listener that keeps every event it sees.
//
// Thread-safety: safe for concurrent use, so tests may read it while a
// scheduler delivers events.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
}

// Listener returns the function to register with OnChange.
func (r *Recorder) Listener() callbacks.Listener {
	return func(ev events.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
	}
}

// Events returns the recorded events in delivery order.
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// Kinds returns the kind of every recorded event.
func (r *Recorder) Kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind()
	}
	return out
}

// Patchable returns the recorded events that have a wire representation.
func (r *Recorder) Patchable() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Patchable() {
			out = append(out, ev)
		}
	}
	return out
}

// Reset forgets every recorded event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// epoch is the first instant reported by a StepClock.
var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
