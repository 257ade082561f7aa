// Package ids generates identifiers for stored documents and firings.
package ids

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator interface {
	Generate() string
}

// UUIDv7 generates time-sortable UUIDv7 identifiers, so that document ids
// sort by upload time.
//
// Safe for concurrent use.
type UUIDv7 struct{}

// Generate returns a new hyphenated UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Sequence returns prefix-1, prefix-2, ... for deterministic tests and
// golden output.
//
// Safe for concurrent use.
type Sequence struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequence creates a sequence generator.
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// Generate returns the next identifier in the sequence.
func (g *Sequence) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
