package model

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Serializer produces the wire representation of an attribute value.
type Serializer func(n *Node, v Value) Value

// Type describes a node type: its attributes with their defaults, which
// attributes hold columnar tables, and optional per-attribute serializers.
// Every type implicitly declares "name" (default Null) and "tags"
// (default empty Array).
type Type struct {
	Name        string
	Subtype     string
	Defaults    map[string]Value
	Columnar    map[string]bool
	Serializers map[string]Serializer
}

// Has reports whether attr is declared.
func (t *Type) Has(attr string) bool {
	_, ok := t.Defaults[attr]
	return ok
}

// Default returns the declared default for attr, or Null.
func (t *Type) Default(attr string) Value {
	if v, ok := t.Defaults[attr]; ok && v != nil {
		return v
	}
	return Null{}
}

// IsColumnar reports whether attr holds a ColumnData table.
func (t *Type) IsColumnar(attr string) bool {
	return t.Columnar[attr]
}

// Attrs returns the declared attribute names in sorted order.
func (t *Type) Attrs() []string {
	return slices.Sorted(maps.Keys(t.Defaults))
}

// Catalog maps type names to type descriptors. It is the constructor lookup
// used when a patch introduces nodes of a type not yet seen.
//
// Thread-safety: Register and the lookup methods are safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	types map[string]*Type
	ids   IDGenerator
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithIDGenerator sets the generator used by Catalog.New.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) CatalogOption {
	return func(c *Catalog) {
		c.ids = g
	}
}

// NewCatalog creates an empty catalog.
func NewCatalog(opts ...CatalogOption) *Catalog {
	c := &Catalog{
		types: make(map[string]*Type),
		ids:   defaultIDs,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds t. Registering a name twice is an error.
func (c *Catalog) Register(t *Type) error {
	if t.Name == "" {
		return fmt.Errorf("catalog: type name is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.types[t.Name]; exists {
		return fmt.Errorf("catalog: type %q already registered", t.Name)
	}
	reg := *t
	reg.Defaults = maps.Clone(t.Defaults)
	if reg.Defaults == nil {
		reg.Defaults = make(map[string]Value)
	}
	if _, ok := reg.Defaults["name"]; !ok {
		reg.Defaults["name"] = Null{}
	}
	if _, ok := reg.Defaults["tags"]; !ok {
		reg.Defaults["tags"] = Array{}
	}
	for attr := range reg.Columnar {
		if _, ok := reg.Defaults[attr]; !ok {
			reg.Defaults[attr] = Object{}
		}
	}
	c.types[t.Name] = &reg
	return nil
}

// MustRegister is Register for package-level fixtures; it panics on error.
func (c *Catalog) MustRegister(t *Type) *Catalog {
	if err := c.Register(t); err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the type registered under name.
func (c *Catalog) Lookup(name string) (*Type, error) {
	c.mu.RLock()
	t, ok := c.types[name]
	c.mu.RUnlock()
	if !ok {
		return nil, &Error{
			Code:    ErrCodeUnknownType,
			Message: fmt.Sprintf("unknown node type %q", name),
		}
	}
	return t, nil
}

// New creates a detached node of the named type with a fresh id.
func (c *Catalog) New(name string) (*Node, error) {
	return c.Instantiate(name, c.ids.NewID())
}

// Instantiate creates a detached node of the named type with the given id.
func (c *Catalog) Instantiate(name, id string) (*Node, error) {
	t, err := c.Lookup(name)
	if err != nil {
		return nil, err
	}
	return NewNode(t, id), nil
}

// Types returns the registered type names in sorted order.
func (c *Catalog) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.types))
}
