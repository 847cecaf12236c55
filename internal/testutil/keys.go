package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDGenerator yields identifiers with a fixed prefix and an
// incrementing counter ("txn-000001", "txn-000002", ...).
//
// It implements loyalty.IDGenerator so tests and scenario runs produce
// the same transaction and grant IDs on every run, keeping golden
// traces and final-state assertions stable.
//
// Safe for concurrent use: concurrent callers receive distinct IDs,
// though the assignment order between goroutines is unspecified.
type SequenceIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int64
}

// NewSequenceIDGenerator creates a generator with the given prefix.
// An empty prefix defaults to "id".
func NewSequenceIDGenerator(prefix string) *SequenceIDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &SequenceIDGenerator{prefix: prefix}
}

// NewID returns the next identifier in the sequence.
func (g *SequenceIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%06d", g.prefix, g.n)
}

// Reset rewinds the sequence so the next ID is <prefix>-000001 again.
func (g *SequenceIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
