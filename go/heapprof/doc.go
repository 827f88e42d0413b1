// Package heapprof is a sampling profiler for C-heap allocations. It wraps
// the standard allocation interface (Malloc, Calloc, Realloc, Free,
// PosixMemalign, AlignedAlloc, MallocUsableSize) around an underlying
// allocator, carves a small header out of every block so the requested size
// and the sampled call stack survive until the free, and aggregates samples
// by call stack. A session snapshot renders as a flamegraph SVG or a pprof
// profile.
//
//	session := heapprof.Start(1024 * 1024)
//	defer session.Stop()
//	...
//	report := session.Report()
//	report.Flamegraph(svgFile)
//
// The allocation path never surfaces errors and takes no lock unless a
// sample actually fires. The profiler's own allocations are kept out of the
// numbers by a per-goroutine re-entrancy guard.
package heapprof
