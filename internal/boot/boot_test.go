package boot

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWaitBootBlocksUntilReleased(t *testing.T) {
	s := New()
	var observed atomic.Bool
	done := make(chan struct{})
	go func() {
		s.WaitBoot(1)
		observed.Store(true)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	if observed.Load() {
		t.Fatalf("secondary hart proceeded before boot was released")
	}
	s.ReleaseBoot()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("WaitBoot did not return after ReleaseBoot")
	}
}

func TestHartReadyLatchesOnceAndNeverClears(t *testing.T) {
	s := New()
	if s.HartReady(2) {
		t.Fatalf("expected hart 2 not ready initially")
	}
	s.MarkHartReady(2)
	if !s.HartReady(2) {
		t.Fatalf("expected hart 2 ready after marking")
	}
	s.MarkHartReady(2) // idempotent, must not panic or clear
	if !s.HartReady(2) {
		t.Fatalf("expected hart 2 to remain ready")
	}
}

func TestDTBRecordedOnHart0IsVisibleEverywhere(t *testing.T) {
	s := New()
	s.RecordDTB(0xdeadbeef)
	if s.DTBAddress() != 0xdeadbeef {
		t.Fatalf("got %x", s.DTBAddress())
	}
}

func TestOutOfRangeHartIDsAreNoops(t *testing.T) {
	s := New()
	s.MarkHartReady(-1)
	s.MarkHartReady(99999)
	if s.HartReady(-1) || s.HartReady(99999) {
		t.Fatalf("expected out-of-range hart ids to report not ready")
	}
}
