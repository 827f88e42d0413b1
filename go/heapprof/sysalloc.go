package heapprof

import "unsafe"

// Allocator is the narrow interface to the underlying C allocator. It is the
// only path by which the profiler obtains or returns raw memory. Every method
// is a direct, thin delegation with the semantics of the ISO C90 / POSIX
// function it mirrors; no accounting or header manipulation happens here.
//
// The default implementation delegates to libc through cgo. A pure Go
// fallback is substituted when cgo is disabled at compile time.
type Allocator interface {
	// Alloc returns a block of at least size bytes, or nil.
	Alloc(size uintptr) unsafe.Pointer
	// Calloc returns a zeroed block of count*size bytes, or nil.
	Calloc(count, size uintptr) unsafe.Pointer
	// Free releases a block previously returned by this allocator.
	// Passing nil is a no-op.
	Free(ptr unsafe.Pointer)
	// Realloc resizes a block, possibly moving it. Realloc(nil, n)
	// behaves like Alloc(n).
	Realloc(ptr unsafe.Pointer, size uintptr) unsafe.Pointer
	// UsableSize reports the number of usable bytes in the block.
	UsableSize(ptr unsafe.Pointer) uintptr
	// PosixMemalign returns a block of size bytes aligned to align,
	// or a non-zero errno-style code on failure.
	PosixMemalign(align, size uintptr) (unsafe.Pointer, int)
	// AlignedAlloc returns a block of size bytes aligned to align, or nil.
	AlignedAlloc(align, size uintptr) unsafe.Pointer
}
