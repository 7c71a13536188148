package testutil

import (
	"sync"

	"github.com/hupe1980/agentgate/core"
)

// ChunkCollector is a thread-safe sink recording every delivered chunk in
// arrival order.
type ChunkCollector struct {
	mu     sync.Mutex
	chunks []core.Chunk
}

// NewChunkCollector creates an empty collector.
func NewChunkCollector() *ChunkCollector { return &ChunkCollector{} }

// Sink is the function to register on an orchestrator.
func (c *ChunkCollector) Sink(chunk core.Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, chunk)
}

// Chunks returns a snapshot of everything collected so far.
func (c *ChunkCollector) Chunks() []core.Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Chunk, len(c.chunks))
	copy(out, c.chunks)
	return out
}

// OfType filters the snapshot by a predicate, preserving order.
func (c *ChunkCollector) OfType(keep func(core.Chunk) bool) []core.Chunk {
	var out []core.Chunk
	for _, ch := range c.Chunks() {
		if keep(ch) {
			out = append(out, ch)
		}
	}
	return out
}
