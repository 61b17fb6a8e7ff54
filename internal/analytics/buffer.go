package analytics

import "sync"

// DefaultBufferSize is how many recent events the Buffer keeps.
const DefaultBufferSize = 500

// Buffer is a fixed-size ring of the most recent events.
type Buffer struct {
	mu    sync.RWMutex
	items []Event
	next  int
	full  bool
}

// NewBuffer creates a buffer holding up to size events.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffer{items: make([]Event, size)}
}

// Add appends e, evicting the oldest event when full.
func (b *Buffer) Add(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.next] = e
	b.next = (b.next + 1) % len(b.items)
	if b.next == 0 {
		b.full = true
	}
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lenLocked()
}

func (b *Buffer) lenLocked() int {
	if b.full {
		return len(b.items)
	}
	return b.next
}

// Recent returns up to limit events, newest first. A non-positive limit
// returns everything buffered.
func (b *Buffer) Recent(limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := b.lenLocked()
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Event, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (b.next - i + len(b.items)) % len(b.items)
		out = append(out, b.items[idx])
	}
	return out
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = make([]Event, len(b.items))
	b.next = 0
	b.full = false
}
