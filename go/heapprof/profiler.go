package heapprof

import (
	"sync"
	"sync/atomic"
)

// enabled gates the hooks' fast path. It is the only profiler state touched
// by a disabled allocation.
var enabled atomic.Bool

// profiler holds the process-wide state. The state pointer is swapped
// atomically by Start; the mutex guards only the collector, so an unsampled
// allocation updates the atomic counters and never blocks. It is constructed
// once and never torn down.
var profiler struct {
	mu    sync.RWMutex
	state atomic.Pointer[profilerState]
}

func init() {
	profiler.state.Store(newProfilerState(1, false))
}

type profilerState struct {
	collector        *collector
	period           int64
	allocatedBytes   atomic.Int64
	allocatedObjects atomic.Int64
	// take a sample when allocatedBytes crosses this threshold.
	nextSample  atomic.Int64
	measureFree bool
}

func newProfilerState(period int64, measureFree bool) *profilerState {
	s := &profilerState{
		collector:   newCollector(),
		period:      period,
		measureFree: measureFree,
	}
	s.nextSample.Store(period)
	return s
}

// A Session is the handle to a running profiler. Stopping it (directly or by
// consuming it with Report) flips the global enabled flag; the state itself
// stays allocated until the next Start replaces it.
type Session struct {
	period int64
}

// Option configures a profiling session.
type Option func(*profilerState)

// WithFreeTracking makes the profiler record a negative sample when a block
// whose allocation was sampled is freed, attributed to the allocation site.
// Off by default, matching the policy of Go's own memory profiler.
func WithFreeTracking() Option {
	return func(s *profilerState) {
		s.measureFree = true
	}
}

// Start installs a fresh profiler state sampling every period allocated
// bytes (period 1 samples every allocation) and enables the hooks' sampling
// path. Calling Start while a session is running replaces the state and
// resets all counters.
func Start(period int, opts ...Option) *Session {
	if period < 1 {
		period = 1
	}
	state := newProfilerState(int64(period), false)
	for _, opt := range opts {
		opt(state)
	}

	profiler.state.Store(state)
	enabled.Store(true)
	return &Session{period: int64(period)}
}

// Stop disables sampling. Samples already inside the critical section
// complete; no new ones are taken after Stop returns.
func (s *Session) Stop() {
	enabled.Store(false)
}

// Report stops the session and snapshots the collector.
func (s *Session) Report() *Report {
	s.Stop()
	return snapshot()
}

// trackAllocated is the hooks' only inward call. delta is positive for an
// allocation of that many bytes, negative for a free; zero is ignored. The
// unsampled path is two atomic adds and a load; the collector lock is taken
// only when a sample fires. It never fails observably: capture or aggregation
// failures cost a sample, not the allocation.
func trackAllocated(delta int64, b *block, sys Allocator) {
	if !guardEnter() {
		return
	}
	defer guardExit()

	if !enabled.Load() || delta == 0 {
		return
	}
	state := profiler.state.Load()

	if delta > 0 {
		total := state.allocatedBytes.Add(delta)
		state.allocatedObjects.Add(1)

		// claim the threshold crossing; a CAS loss means another
		// goroutine advanced it, so re-check against the new value
		for {
			next := state.nextSample.Load()
			if total < next {
				return
			}
			if state.nextSample.CompareAndSwap(next, total+state.period) {
				break
			}
		}

		var stack stackRecord
		if b != nil {
			stack = b.attachStack(sys, true)
		} else {
			stack.capture(2)
		}
		profiler.mu.Lock()
		state.collector.record(&stack, delta)
		profiler.mu.Unlock()
		return
	}

	// Frees are attributed to the allocation site stored in the block
	// header. A block without one was never sampled and is not recorded,
	// which keeps per-entry free counters below their alloc counters.
	if !state.measureFree || b == nil {
		return
	}
	stack := b.attachStack(sys, false)
	if stack.n == 0 {
		return
	}
	profiler.mu.Lock()
	state.collector.record(&stack, delta)
	profiler.mu.Unlock()
}
