package recap

import (
	"testing"
	"time"
)

func at(sec int64) time.Time {
	return time.Unix(1700000000+sec, 0).UTC()
}

func TestBufferEvictsOutsideWindow(t *testing.T) {
	b := NewBuffer[int](5 * time.Second)

	b.Push("guid-1", at(0), 1)
	b.Push("guid-1", at(2), 2)
	b.Push("guid-1", at(4), 3)
	if got := b.Len("guid-1"); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}

	// t=8 puts t=0 and t=2 outside the 5s trailing window.
	b.Push("guid-1", at(8), 4)
	if got := b.Len("guid-1"); got != 2 {
		t.Errorf("Len() after eviction = %d, want 2", got)
	}
}

func TestBufferSnapshotOffsets(t *testing.T) {
	b := NewBuffer[string](5 * time.Second)

	b.Push("guid-1", at(6), "damage-a")
	b.Push("guid-1", at(8), "damage-b")
	b.Push("guid-1", at(10), "killing-blow")

	snap := b.Snapshot("guid-1", at(10))
	if len(snap) != 3 {
		t.Fatalf("Snapshot() returned %d events, want 3", len(snap))
	}

	wantOffsets := []int64{-4000, -2000, 0}
	for i, s := range snap {
		if s.OffsetMS != wantOffsets[i] {
			t.Errorf("event %d offset = %d, want %d", i, s.OffsetMS, wantOffsets[i])
		}
	}
	if snap[2].Value != "killing-blow" {
		t.Errorf("last event = %q, want killing-blow", snap[2].Value)
	}
}

func TestBufferSnapshotClearsEntity(t *testing.T) {
	b := NewBuffer[int](5 * time.Second)

	b.Push("guid-1", at(0), 1)
	b.Push("guid-2", at(0), 2)

	b.Snapshot("guid-1", at(1))
	if got := b.Len("guid-1"); got != 0 {
		t.Errorf("Len() after snapshot = %d, want 0", got)
	}
	if got := b.Len("guid-2"); got != 1 {
		t.Errorf("Len() of untouched entity = %d, want 1", got)
	}
}

func TestBufferSnapshotTrimsToTerminalWindow(t *testing.T) {
	b := NewBuffer[int](5 * time.Second)

	// Both fit while buffering, but the first is older than 5s relative to
	// the terminal event.
	b.Push("guid-1", at(0), 1)
	b.Push("guid-1", at(4), 2)

	snap := b.Snapshot("guid-1", at(7))
	if len(snap) != 1 {
		t.Fatalf("Snapshot() returned %d events, want 1", len(snap))
	}
	if snap[0].OffsetMS != -3000 {
		t.Errorf("offset = %d, want -3000", snap[0].OffsetMS)
	}
}

func TestBufferSnapshotEmpty(t *testing.T) {
	b := NewBuffer[int](5 * time.Second)
	if snap := b.Snapshot("nobody", at(0)); len(snap) != 0 {
		t.Errorf("Snapshot() of unknown entity = %v, want empty", snap)
	}
}
