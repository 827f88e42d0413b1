package heapprof

// profileRecord aggregates the samples recorded against one stack. All four
// counters are monotonic; the in-use numbers are derived.
type profileRecord struct {
	allocBytes   int64
	allocObjects int64
	freeBytes    int64
	freeObjects  int64
}

func (r *profileRecord) inUseBytes() int64 {
	return r.allocBytes - r.freeBytes
}

func (r *profileRecord) inUseObjects() int64 {
	return r.allocObjects - r.freeObjects
}

type collectorEntry struct {
	stack stackRecord
	rec   profileRecord
}

// collector maps stacks to their aggregated records. Buckets are keyed by
// the stack fingerprint and chained on full equality, so fingerprint
// collisions never merge distinct stacks. The caller holds the profiler
// write lock for record and at least the read lock for forEach.
type collector struct {
	buckets map[uint64][]*collectorEntry
	samples int64
}

func newCollector() *collector {
	return &collector{buckets: make(map[uint64][]*collectorEntry)}
}

func (c *collector) lookup(stack *stackRecord) *collectorEntry {
	fp := stack.fingerprint()
	for _, e := range c.buckets[fp] {
		if e.stack.equal(stack) {
			return e
		}
	}
	e := &collectorEntry{stack: *stack}
	c.buckets[fp] = append(c.buckets[fp], e)
	return e
}

// record applies one signed sample to the entry for stack. Positive deltas
// are allocations, negative deltas are frees, zero is ignored.
func (c *collector) record(stack *stackRecord, bytes int64) {
	switch {
	case bytes > 0:
		e := c.lookup(stack)
		e.rec.allocBytes += bytes
		e.rec.allocObjects++
		c.samples++
	case bytes < 0:
		e := c.lookup(stack)
		e.rec.freeBytes += -bytes
		e.rec.freeObjects++
	}
}

func (c *collector) forEach(fn func(*stackRecord, *profileRecord)) {
	for _, chain := range c.buckets {
		for _, e := range chain {
			fn(&e.stack, &e.rec)
		}
	}
}
