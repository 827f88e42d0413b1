package heapprof

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"unsafe"
)

// DebugAllocator wraps another Allocator and tracks each individual block so
// tests can detect leaks, double frees and frees of foreign pointers. The
// lock is used to prevent concurrent access to the tracking table.
type DebugAllocator struct {
	Upstream Allocator

	lock      sync.Mutex
	allocated map[uintptr]*allocation
}

// allocation records where a block was allocated and, once released, where it
// was freed, so that both ends of a double free can be reported.
type allocation struct {
	alloc []uintptr
	free  []uintptr
}

// stack renders the given stack trace to a string.
func (a *allocation) stack(ptr []uintptr) string {
	var stack = runtime.CallersFrames(ptr)
	var buf strings.Builder
	for frame, more := stack.Next(); more; frame, more = stack.Next() {
		fmt.Fprintf(&buf, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
	}
	return buf.String()
}

// AllocStack renders the allocation stack trace.
func (a *allocation) AllocStack() string {
	return a.stack(a.alloc)
}

// FreeStack renders the stack trace for the free.
// Empty if the block wasn't freed yet.
func (a *allocation) FreeStack() string {
	return a.stack(a.free)
}

func (d *DebugAllocator) track(ptr unsafe.Pointer) unsafe.Pointer {
	if ptr == nil {
		return nil
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.allocated == nil {
		d.allocated = make(map[uintptr]*allocation)
	}

	var stack [8]uintptr
	var stacklen = runtime.Callers(2, stack[:])

	d.allocated[uintptr(ptr)] = &allocation{
		alloc: stack[:stacklen],
		free:  nil,
	}
	return ptr
}

func (d *DebugAllocator) untrack(ptr unsafe.Pointer) {
	d.lock.Lock()
	defer d.lock.Unlock()

	alloc, ok := d.allocated[uintptr(ptr)]
	if !ok {
		panic(fmt.Errorf("trying to free non-allocated pointer %p", ptr))
	}
	if alloc.free != nil {
		panic(fmt.Errorf("trying to double-free pointer %p\nALLOC: %s\nFREE: %s", ptr, alloc.AllocStack(), alloc.FreeStack()))
	}

	var stack [8]uintptr
	var stacklen = runtime.Callers(2, stack[:])
	alloc.free = stack[:stacklen]
}

func (d *DebugAllocator) Alloc(size uintptr) unsafe.Pointer {
	return d.track(d.Upstream.Alloc(size))
}

func (d *DebugAllocator) Calloc(count, size uintptr) unsafe.Pointer {
	return d.track(d.Upstream.Calloc(count, size))
}

func (d *DebugAllocator) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	d.untrack(ptr)
	d.Upstream.Free(ptr)
}

func (d *DebugAllocator) Realloc(ptr unsafe.Pointer, size uintptr) unsafe.Pointer {
	if ptr == nil {
		return d.Alloc(size)
	}
	d.untrack(ptr)
	return d.track(d.Upstream.Realloc(ptr, size))
}

func (d *DebugAllocator) UsableSize(ptr unsafe.Pointer) uintptr {
	return d.Upstream.UsableSize(ptr)
}

func (d *DebugAllocator) PosixMemalign(align, size uintptr) (unsafe.Pointer, int) {
	ptr, rc := d.Upstream.PosixMemalign(align, size)
	if rc != 0 {
		return nil, rc
	}
	return d.track(ptr), 0
}

func (d *DebugAllocator) AlignedAlloc(align, size uintptr) unsafe.Pointer {
	return d.track(d.Upstream.AlignedAlloc(align, size))
}

// EnsureNoLeaks can be used in tests to validate no memory has leaked.
func (d *DebugAllocator) EnsureNoLeaks() {
	d.lock.Lock()
	defer d.lock.Unlock()

	for ptr, alloc := range d.allocated {
		if alloc.free == nil {
			panic(fmt.Errorf("did not free pointer %#x\nALLOC: %s", ptr, alloc.AllocStack()))
		}
	}
}

// IsAllocated checks if a pointer is currently allocated.
func (d *DebugAllocator) IsAllocated(ptr unsafe.Pointer) bool {
	d.lock.Lock()
	defer d.lock.Unlock()

	alloc, ok := d.allocated[uintptr(ptr)]
	return ok && alloc.free == nil
}
