// Package recap keeps a bounded trailing window of events per entity so that
// a terminal event (a death, a match end) can be explained by what led up to
// it without retaining the whole stream.
package recap

import (
	"time"
)

// Entry is one buffered event.
type Entry[T any] struct {
	Time  time.Time
	Value T
}

// Snapshotted is one event in a snapshot, timed relative to the terminal
// event. Offsets are non-positive: an event 3.2s before the terminal has
// OffsetMS -3200.
type Snapshotted[T any] struct {
	OffsetMS int64 `json:"offsetMs"`
	Value    T     `json:"value"`
}

// Buffer holds, per entity key, the events inside a trailing time window.
// Pushing evicts from the front until the span from oldest to newest fits
// the window again.
type Buffer[T any] struct {
	window  time.Duration
	entries map[string][]Entry[T]
}

// NewBuffer creates a buffer with the given trailing window.
func NewBuffer[T any](window time.Duration) *Buffer[T] {
	return &Buffer[T]{
		window:  window,
		entries: make(map[string][]Entry[T]),
	}
}

// Push appends an event for the entity and evicts entries that fell out of
// the window. Events are expected in non-decreasing time order per entity.
func (b *Buffer[T]) Push(key string, tm time.Time, value T) {
	es := append(b.entries[key], Entry[T]{Time: tm, Value: value})

	drop := 0
	for drop < len(es)-1 && es[len(es)-1].Time.Sub(es[drop].Time) > b.window {
		drop++
	}
	if drop > 0 {
		es = append(es[:0], es[drop:]...)
	}
	b.entries[key] = es
}

// Snapshot returns the entity's buffered events with millisecond offsets
// relative to the terminal time, then clears the entity's buffer. Events
// outside the window ending at the terminal are dropped even if still
// buffered.
func (b *Buffer[T]) Snapshot(key string, terminal time.Time) []Snapshotted[T] {
	es := b.entries[key]
	delete(b.entries, key)

	var out []Snapshotted[T]
	for _, e := range es {
		if terminal.Sub(e.Time) > b.window {
			continue
		}
		out = append(out, Snapshotted[T]{
			OffsetMS: e.Time.Sub(terminal).Milliseconds(),
			Value:    e.Value,
		})
	}
	return out
}

// Len reports how many events are buffered for the entity.
func (b *Buffer[T]) Len(key string) int {
	return len(b.entries[key])
}
