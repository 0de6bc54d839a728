package aggregation

import (
	"testing"
	"time"
)

func at(sec int64) time.Time {
	return time.Unix(1700000000+sec, 0).UTC()
}

func TestSlidingWindowAlignedBuckets(t *testing.T) {
	w := NewSlidingWindow(FuncSum, at(0), 5*time.Second)

	type sample struct {
		sec   int64
		value float64
	}
	samples := []sample{{0, 1}, {1, 2}, {2, 3}, {6, 10}, {11, 20}}

	var buckets []Bucket
	for _, s := range samples {
		if b, ok := w.Ingest(at(s.sec), s.value); ok {
			buckets = append(buckets, b)
		}
	}
	if b, ok := w.Flush(); ok {
		buckets = append(buckets, b)
	}

	want := []Bucket{
		{Start: at(0), Value: 6},
		{Start: at(5), Value: 10},
		{Start: at(10), Value: 20},
	}
	if len(buckets) != len(want) {
		t.Fatalf("got %d buckets, want %d: %+v", len(buckets), len(want), buckets)
	}
	for i, b := range buckets {
		if !b.Start.Equal(want[i].Start) {
			t.Errorf("bucket %d start = %v, want %v", i, b.Start, want[i].Start)
		}
		if b.Value != want[i].Value {
			t.Errorf("bucket %d value = %v, want %v", i, b.Value, want[i].Value)
		}
	}
}

func TestSlidingWindowAlignsToReferenceStart(t *testing.T) {
	w := NewSlidingWindow(FuncSum, at(0), 5*time.Second)

	// First sample lands mid-bucket: it belongs to [0,5), not to a bucket
	// starting at its own timestamp.
	if _, ok := w.Ingest(at(3), 3); ok {
		t.Fatalf("Ingest(t=3) closed a bucket before the span ended")
	}

	b, ok := w.Ingest(at(5), 5)
	if !ok {
		t.Fatalf("Ingest(t=5) did not close the [0,5) bucket")
	}
	if !b.Start.Equal(at(0)) || b.Value != 3 {
		t.Errorf("closed bucket = %+v, want start %v value 3", b, at(0))
	}

	last, ok := w.Flush()
	if !ok {
		t.Fatalf("Flush() returned no bucket")
	}
	if !last.Start.Equal(at(5)) || last.Value != 5 {
		t.Errorf("final bucket = %+v, want start %v value 5", last, at(5))
	}
}

func TestSlidingWindowSkipsEmptySpans(t *testing.T) {
	w := NewSlidingWindow(FuncSum, at(0), 5*time.Second)

	w.Ingest(at(0), 7)
	b, ok := w.Ingest(at(12), 9)
	if !ok {
		t.Fatalf("Ingest() past two spans did not close a bucket")
	}
	if !b.Start.Equal(at(0)) || b.Value != 7 {
		t.Errorf("closed bucket = %+v, want start %v value 7", b, at(0))
	}

	// The window must land on the span containing t=12, not the empty one.
	last, ok := w.Flush()
	if !ok {
		t.Fatalf("Flush() returned no bucket")
	}
	if !last.Start.Equal(at(10)) {
		t.Errorf("final bucket start = %v, want %v", last.Start, at(10))
	}
}

func TestSlidingWindowFunctions(t *testing.T) {
	tests := []struct {
		name   string
		window *SlidingWindow
		want   float64
	}{
		{"sum", NewSlidingWindow(FuncSum, at(0), 5*time.Second), 60},
		{"avg", NewSlidingWindow(FuncAvg, at(0), 5*time.Second), 20},
		{"min", NewSlidingWindow(FuncMin, at(0), 5*time.Second), 10},
		{"max", NewSlidingWindow(FuncMax, at(0), 5*time.Second), 30},
		{"perUnitTime", NewPerUnitTimeWindow(at(0), 5*time.Second, time.Second), 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.window.Ingest(at(0), 10)
			tt.window.Ingest(at(1), 20)
			tt.window.Ingest(at(2), 30)

			b, ok := tt.window.Flush()
			if !ok {
				t.Fatalf("Flush() returned no bucket")
			}
			if b.Value != tt.want {
				t.Errorf("Flush() value = %v, want %v", b.Value, tt.want)
			}
		})
	}
}

func TestSlidingWindowEmptyFlush(t *testing.T) {
	w := NewSlidingWindow(FuncSum, at(0), 5*time.Second)
	if _, ok := w.Flush(); ok {
		t.Errorf("Flush() on empty window returned a bucket")
	}
}

func TestAggregatedFieldStats(t *testing.T) {
	af := NewAggregatedField(10)
	af.AddValue(20)
	af.AddValue(30)

	if af.Count != 3 || af.Sum != 60 || af.Avg != 20 || af.Min != 10 || af.Max != 30 {
		t.Errorf("field = %+v, want count 3 sum 60 avg 20 min 10 max 30", af)
	}

	other := NewAggregatedField(50)
	af.Merge(other)
	if af.Count != 4 || af.Max != 50 || af.Avg != 27.5 {
		t.Errorf("merged field = %+v, want count 4 max 50 avg 27.5", af)
	}
}
