// Package aggregation turns per-event samples into time-bucketed statistics.
// The sliding window keeps one open bucket at a time; buckets are aligned to
// whole multiples of the bucket span from a shared reference start, so the
// timelines of independently fed windows line up, and sparse input produces
// sparse, aligned buckets.
package aggregation

import (
	"time"
)

// Function selects how a bucket's samples reduce to its value.
type Function uint8

const (
	FuncSum Function = iota
	FuncAvg
	FuncMin
	FuncMax

	// FuncPerUnitTime divides the bucket sum by the number of rate units the
	// bucket spans, e.g. a 5 second bucket with a 1 second unit yields a
	// per-second rate.
	FuncPerUnitTime
)

// Bucket is one closed window span.
type Bucket struct {
	Start time.Time
	Value float64
}

// SlidingWindow accumulates samples into the current bucket and emits the
// previous bucket whenever a sample lands past its end. Samples must arrive
// in non-decreasing time order; an earlier sample is folded into the current
// bucket rather than reopening a closed one.
type SlidingWindow struct {
	fn        Function
	reference time.Time
	window    time.Duration
	unit      time.Duration

	started bool
	start   time.Time
	field   *AggregatedField
}

// NewSlidingWindow creates a window of the given span. Buckets start at whole
// multiples of the span from reference, no matter when the first sample
// arrives.
func NewSlidingWindow(fn Function, reference time.Time, window time.Duration) *SlidingWindow {
	return &SlidingWindow{fn: fn, reference: reference, window: window, unit: time.Second}
}

// NewPerUnitTimeWindow creates a rate window: each bucket's value is its sum
// divided by window/unit.
func NewPerUnitTimeWindow(reference time.Time, window, unit time.Duration) *SlidingWindow {
	return &SlidingWindow{fn: FuncPerUnitTime, reference: reference, window: window, unit: unit}
}

// Ingest adds one sample. When the sample falls past the current bucket's
// end, that bucket closes and is returned, and the window advances by however
// many whole spans it takes to contain the sample.
func (w *SlidingWindow) Ingest(tm time.Time, value float64) (Bucket, bool) {
	if !w.started {
		w.started = true
		w.start = w.alignedStart(tm)
		w.field = NewAggregatedField(value)
		return Bucket{}, false
	}

	elapsed := tm.Sub(w.start)
	if elapsed < w.window {
		w.field.AddValue(value)
		return Bucket{}, false
	}

	closed := w.close()

	steps := elapsed / w.window
	w.start = w.start.Add(steps * w.window)
	w.field = NewAggregatedField(value)
	return closed, true
}

// Flush closes and returns the open bucket, if any. The window is reset.
func (w *SlidingWindow) Flush() (Bucket, bool) {
	if !w.started {
		return Bucket{}, false
	}
	closed := w.close()
	w.started = false
	w.field = nil
	return closed, true
}

// alignedStart floors tm onto the bucket grid anchored at the reference
// start. A sample at or before the reference lands in the first bucket.
func (w *SlidingWindow) alignedStart(tm time.Time) time.Time {
	if !tm.After(w.reference) {
		return w.reference
	}
	steps := tm.Sub(w.reference) / w.window
	return w.reference.Add(steps * w.window)
}

func (w *SlidingWindow) close() Bucket {
	b := Bucket{Start: w.start}
	switch w.fn {
	case FuncSum:
		b.Value = w.field.Sum
	case FuncAvg:
		b.Value = w.field.Avg
	case FuncMin:
		b.Value = w.field.Min
	case FuncMax:
		b.Value = w.field.Max
	case FuncPerUnitTime:
		units := float64(w.window) / float64(w.unit)
		if units > 0 {
			b.Value = w.field.Sum / units
		}
	}
	return b
}
