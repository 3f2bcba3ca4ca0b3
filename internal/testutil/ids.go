package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates request ids "<prefix>-0001", "<prefix>-0002", ...
//
// This keeps request ids stable across runs so recorded traffic can be
// compared byte for byte.
//
// Thread-safety: SequenceIDs is safe for concurrent use.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator. An empty prefix becomes "req".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "req"
	}
	return &SequenceIDs{prefix: prefix}
}

// Next returns the next id. Its signature matches backend.WithRequestIDs.
func (g *SequenceIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
