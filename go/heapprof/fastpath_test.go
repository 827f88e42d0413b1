package heapprof

import (
	"testing"
	"time"
	"unsafe"
)

// An allocation that does not cross the sampling threshold must never touch
// the collector lock, so it can proceed while a snapshot or metrics read
// holds it.
func TestUnsampledAllocationSkipsCollectorLock(t *testing.T) {
	s := Start(1 << 30)
	defer s.Stop()

	profiler.mu.Lock()
	defer profiler.mu.Unlock()

	done := make(chan unsafe.Pointer, 1)
	go func() {
		done <- Malloc(16)
	}()

	select {
	case p := <-done:
		Free(p)
	case <-time.After(5 * time.Second):
		t.Fatal("unsampled allocation blocked on the collector lock")
	}
}

// The threshold is claimed by compare-and-swap; a loser must re-check the
// advanced value rather than drop its crossing, so with period 1 every
// allocation still produces a sample.
func TestThresholdAdvance(t *testing.T) {
	s := Start(1)
	defer s.Stop()

	state := profiler.state.Load()
	for i := 0; i < 5; i++ {
		Free(Malloc(16))
	}
	if got := state.collector.samples; got != 5 {
		t.Fatalf("expected 5 samples, got %d", got)
	}
}
