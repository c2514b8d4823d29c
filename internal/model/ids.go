package model

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator produces process-unique node ids.
// Implemented by UUIDv7Generator (production) and SequentialIDs (tests).
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewID creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequentialIDs hands out ids from a monotonic counter, e.g. "p1001".
// Ids are never reused for the lifetime of the generator.
//
// Thread-safety: safe for concurrent use (atomic counter).
type SequentialIDs struct {
	prefix string
	seq    atomic.Int64
}

// NewSequentialIDs creates a generator whose first id is prefix + (start+1).
func NewSequentialIDs(prefix string, start int64) *SequentialIDs {
	g := &SequentialIDs{prefix: prefix}
	g.seq.Store(start)
	return g
}

// NewID returns the next id.
func (g *SequentialIDs) NewID() string {
	return fmt.Sprintf("%s%d", g.prefix, g.seq.Add(1))
}

var defaultIDs IDGenerator = UUIDv7Generator{}
