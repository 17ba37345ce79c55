package buffer

import (
	"sync"
)

// Entry is a buffered value tagged with its arrival order.
type Entry[T any] struct {
	Seq      uint64 // Arrival sequence, unique and increasing per buffer
	Attempts int    // Failed write attempts so far
	Value    T
}

// Buffer is a thread-safe, unbounded, append-only holding area drained wholesale.
type Buffer[T any] struct {
	mu      sync.Mutex
	entries []Entry[T]
	nextSeq uint64

	// Stats
	totalAppended int64
	totalDrained  int64
	totalRequeued int64
	drains        int64
	highWater     int
}

// New creates an empty buffer with the given initial capacity.
func New[T any](initialCapacity int) *Buffer[T] {
	if initialCapacity < 0 {
		initialCapacity = 0
	}
	return &Buffer[T]{
		entries: make([]Entry[T], 0, initialCapacity),
	}
}

// Append adds one value at the tail. Never fails.
func (b *Buffer[T]) Append(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	b.entries = append(b.entries, Entry[T]{Seq: b.nextSeq, Value: v})
	b.totalAppended++
	b.trackHighWater()
}

// AppendAll adds values in order under a single lock acquisition.
func (b *Buffer[T]) AppendAll(vs []T) {
	if len(vs) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, v := range vs {
		b.nextSeq++
		b.entries = append(b.entries, Entry[T]{Seq: b.nextSeq, Value: v})
	}
	b.totalAppended += int64(len(vs))
	b.trackHighWater()
}

// DrainAll atomically removes and returns every held entry in buffer order.
// Returns nil if the buffer is empty.
func (b *Buffer[T]) DrainAll() []Entry[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) == 0 {
		return nil
	}

	drained := b.entries
	b.entries = make([]Entry[T], 0, cap(drained))
	b.totalDrained += int64(len(drained))
	b.drains++
	return drained
}

// Requeue puts entries back at the tail, keeping their arrival sequence and
// attempt count so ordering by Seq still reflects original arrival.
func (b *Buffer[T]) Requeue(entries []Entry[T]) {
	if len(entries) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, entries...)
	b.totalRequeued += int64(len(entries))
	b.trackHighWater()
}

// PeekEmpty reports whether the buffer looked empty at the time of the call.
// It is a hint: callers must still handle an empty DrainAll.
func (b *Buffer[T]) PeekEmpty() bool {
	return b.Len() == 0
}

// Len returns the current number of entries.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Stats returns buffer statistics.
func (b *Buffer[T]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Count:         len(b.entries),
		TotalAppended: b.totalAppended,
		TotalDrained:  b.totalDrained,
		TotalRequeued: b.totalRequeued,
		Drains:        b.drains,
		HighWater:     b.highWater,
	}
}

// Stats contains buffer statistics.
type Stats struct {
	Count         int   `json:"count"`
	TotalAppended int64 `json:"total_appended"`
	TotalDrained  int64 `json:"total_drained"`
	TotalRequeued int64 `json:"total_requeued"`
	Drains        int64 `json:"drains"`
	HighWater     int   `json:"high_water"`
}

// trackHighWater must be called with lock held.
func (b *Buffer[T]) trackHighWater() {
	if len(b.entries) > b.highWater {
		b.highWater = len(b.entries)
	}
}
