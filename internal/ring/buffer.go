// Package ring provides the bounded retention buffer that sits between
// the capture loop and the view layer. It is the only piece of shared
// mutable state in the pipeline: one writer (the capture loop) and any
// number of snapshot readers may use it concurrently.
package ring

import (
	"sync"

	"packetscope/internal/models"
)

// DefaultCapacity is the retention window used when no capacity is
// configured.
const DefaultCapacity = 1000

// Buffer retains the most recent records up to a fixed capacity,
// evicting the oldest on overflow. Push is O(1); Snapshot copies out
// under a read lock so readers can never starve the writer for longer
// than one copy.
type Buffer struct {
	mu      sync.RWMutex
	records []models.PacketRecord // ring storage
	next    int                   // index the next push writes to
	size    int
}

// New creates a buffer retaining at most capacity records. A
// non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{records: make([]models.PacketRecord, capacity)}
}

// Push appends a record, evicting the oldest one if the buffer is full.
func (b *Buffer) Push(r models.PacketRecord) {
	b.mu.Lock()
	b.records[b.next] = r
	b.next = (b.next + 1) % len(b.records)
	if b.size < len(b.records) {
		b.size++
	}
	b.mu.Unlock()
}

// Snapshot returns a newest-first copy of the retained records. The
// returned slice is owned by the caller and never mutated by the
// buffer.
func (b *Buffer) Snapshot() []models.PacketRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.PacketRecord, b.size)
	idx := b.next
	for i := 0; i < b.size; i++ {
		idx--
		if idx < 0 {
			idx = len(b.records) - 1
		}
		out[i] = b.records[idx]
	}
	return out
}

// Clear empties the buffer. Retained records become unreachable but
// snapshots taken before the call stay valid.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.next = 0
	b.size = 0
	b.mu.Unlock()
}

// Len reports the number of retained records.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap reports the retention capacity.
func (b *Buffer) Cap() int {
	return len(b.records)
}
