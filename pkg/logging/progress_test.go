package logging

import (
	"sync"
	"testing"
	"time"
)

func TestProgressTracker_BasicOperations(t *testing.T) {
	pt := NewProgressTracker("seal", 10)

	pt.RecordCompletion(100 * time.Millisecond)
	pt.RecordCompletion(150 * time.Millisecond)

	completed, total := pt.Progress()
	if completed != 2 {
		t.Errorf("expected completed=2, got %d", completed)
	}
	if total != 10 {
		t.Errorf("expected total=10, got %d", total)
	}
	if pt.Phase() != "seal" {
		t.Errorf("Phase() = %q, want seal", pt.Phase())
	}
}

func TestProgressTracker_ETA(t *testing.T) {
	pt := NewProgressTracker("seal", 10)

	pt.RecordCompletion(100 * time.Millisecond)
	pt.RecordCompletion(100 * time.Millisecond)

	// 8 remaining at 100ms each
	if eta := pt.ETA(); eta != 800*time.Millisecond {
		t.Errorf("expected ETA 800ms, got %v", eta)
	}
}

func TestProgressTracker_MovingWindow(t *testing.T) {
	pt := NewProgressTracker("seal", 100)
	for range recentWindow {
		pt.RecordCompletion(time.Second)
	}
	for range recentWindow {
		pt.RecordCompletion(10 * time.Millisecond)
	}

	// only the last window counts: 80 remaining at 10ms
	if eta := pt.ETA(); eta != 800*time.Millisecond {
		t.Errorf("expected ETA 800ms, got %v", eta)
	}
}

func TestProgressTracker_ZeroTotal(t *testing.T) {
	pt := NewProgressTracker("seal", 0)
	if eta := pt.ETA(); eta != 0 {
		t.Errorf("expected 0 ETA for zero total, got %v", eta)
	}
}

func TestProgressTracker_Concurrent(t *testing.T) {
	pt := NewProgressTracker("decode", 64)

	var wg sync.WaitGroup
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pt.RecordCompletion(time.Millisecond)
		}()
	}
	wg.Wait()

	if completed, _ := pt.Progress(); completed != 64 {
		t.Errorf("expected 64 completed, got %d", completed)
	}
	if eta := pt.ETA(); eta != 0 {
		t.Errorf("expected 0 ETA when done, got %v", eta)
	}
}
