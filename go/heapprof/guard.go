package heapprof

import (
	"sync/atomic"

	"github.com/petermattis/goid"
)

// The re-entrancy guard keeps the profiler's own allocations from recursing
// back into trackAllocated. Go has no thread-local storage, so the guard is a
// small table of slots claimed by goroutine id: a goroutine that is already
// inside the profiler finds its own id in the slot and backs off. A slot held
// by a different goroutine (a collision) is treated the same way and the
// sample is dropped, which the failure semantics of the hot path allow.
const guardSlots = 512

var guardTable [guardSlots]atomic.Int64

func guardEnter() bool {
	id := goid.Get()
	return guardTable[uint64(id)%guardSlots].CompareAndSwap(0, id)
}

func guardExit() {
	id := goid.Get()
	guardTable[uint64(id)%guardSlots].CompareAndSwap(id, 0)
}
