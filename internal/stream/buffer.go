package stream

import "sync"

// RingBuffer is a byte-budgeted FIFO of output chunks. It exists purely so
// a late-joining observer can see recent history; once the budget forces a
// chunk out it is unrecoverable.
type RingBuffer struct {
	mu       sync.Mutex
	chunks   [][]byte
	total    int
	maxBytes int
}

// NewRingBuffer creates a buffer that retains at most maxBytes of chunks.
func NewRingBuffer(maxBytes int) *RingBuffer {
	if maxBytes < 1 {
		maxBytes = 1
	}
	return &RingBuffer{maxBytes: maxBytes}
}

// Append stores a copy of chunk, then evicts oldest chunks until the total
// is back within budget. A chunk larger than the whole budget is dropped.
func (b *RingBuffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	c := make([]byte, len(chunk))
	copy(c, chunk)
	b.chunks = append(b.chunks, c)
	b.total += len(c)

	for b.total > b.maxBytes && len(b.chunks) > 0 {
		b.total -= len(b.chunks[0])
		b.chunks[0] = nil
		b.chunks = b.chunks[1:]
	}
}

// Snapshot concatenates all retained chunks in arrival order.
func (b *RingBuffer) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]byte, 0, b.total)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

// Bytes returns the current total of retained bytes.
func (b *RingBuffer) Bytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Len returns the number of retained chunks.
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Reset discards all retained chunks.
func (b *RingBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = nil
	b.total = 0
}
