package router

import (
	"sync"
)

// growThreshold is the fill percentage at which a GrowableBuffer doubles.
const growThreshold = 70

// GrowableBuffer is an unbounded FIFO that never blocks senders. It doubles
// its ring when it reaches 70% full, so a slow consumer costs memory rather
// than stalling the Router.
type GrowableBuffer[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int // read position
	count  int
	closed bool

	// Stats
	totalReceived int64
	totalSent     int64
	resizeCount   int
	highWater     int
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Count         int
	Capacity      int
	TotalReceived int64
	TotalSent     int64
	ResizeCount   int
	HighWater     int
}

// NewGrowableBuffer creates a new buffer with the given initial capacity.
func NewGrowableBuffer[T any](initialCapacity int) *GrowableBuffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &GrowableBuffer[T]{ring: make([]T, initialCapacity)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send appends an item. Returns false if the buffer is closed.
func (b *GrowableBuffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := len(b.ring) * growThreshold / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.growLocked()
	}

	b.ring[(b.head+b.count)%len(b.ring)] = item
	b.count++
	b.totalReceived++
	if b.count > b.highWater {
		b.highWater = b.count
	}

	b.cond.Signal()
	return true
}

// Receive blocks until an item is available or the buffer is closed and
// empty, in which case it returns false.
func (b *GrowableBuffer[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.popLocked(), true
}

// TryReceive returns the next item without blocking.
func (b *GrowableBuffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.popLocked(), true
}

// DrainTo removes up to max items (all when max <= 0) without blocking.
func (b *GrowableBuffer[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.drainLocked(max)
}

// ReceiveBatch blocks until at least one item is available, then removes up
// to max items. It returns nil once the buffer is closed and empty.
func (b *GrowableBuffer[T]) ReceiveBatch(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	return b.drainLocked(max)
}

// Close stops further sends. Receivers get the remaining items first.
func (b *GrowableBuffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Len returns the current number of items in the buffer.
func (b *GrowableBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current capacity of the buffer.
func (b *GrowableBuffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ring)
}

// Stats returns buffer statistics.
func (b *GrowableBuffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:         b.count,
		Capacity:      len(b.ring),
		TotalReceived: b.totalReceived,
		TotalSent:     b.totalSent,
		ResizeCount:   b.resizeCount,
		HighWater:     b.highWater,
	}
}

func (b *GrowableBuffer[T]) popLocked() T {
	var zero T
	item := b.ring[b.head]
	b.ring[b.head] = zero // release for GC
	b.head = (b.head + 1) % len(b.ring)
	b.count--
	b.totalSent++
	return item
}

func (b *GrowableBuffer[T]) drainLocked(max int) []T {
	if b.count == 0 {
		return nil
	}
	n := b.count
	if max > 0 && max < n {
		n = max
	}
	out := make([]T, n)
	for i := range out {
		out[i] = b.popLocked()
	}
	return out
}

// growLocked doubles the ring and unwraps it so head is 0.
func (b *GrowableBuffer[T]) growLocked() {
	next := make([]T, len(b.ring)*2)
	n := copy(next, b.ring[b.head:])
	if n < b.count {
		copy(next[n:], b.ring[:b.count-n])
	}

	b.ring = next
	b.head = 0
	b.resizeCount++
}
