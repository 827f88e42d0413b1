//go:build cgo

package heapprof

/*
#include <stdlib.h>

#if defined(__linux__)
#include <malloc.h>
static size_t heapprof_usable_size(void *p) { return malloc_usable_size(p); }
#elif defined(__APPLE__)
#include <malloc/malloc.h>
static size_t heapprof_usable_size(void *p) { return malloc_size(p); }
#else
static size_t heapprof_usable_size(void *p) { (void)p; return 0; }
#endif

static int heapprof_posix_memalign(void **out, size_t align, size_t size) {
	return posix_memalign(out, align, size);
}

static void *heapprof_aligned_alloc(size_t align, size_t size) {
	// C11 requires size to be a multiple of align; round up so callers
	// do not have to care.
	if (align > 0 && size % align != 0) {
		size += align - size % align;
	}
#if defined(__APPLE__)
	void *p = NULL;
	if (posix_memalign(&p, align, size) != 0) {
		return NULL;
	}
	return p;
#else
	return aligned_alloc(align, size);
#endif
}
*/
import "C"
import "unsafe"

// DefaultAllocator is the allocator used by the hooks unless the caller
// swaps in a different one.
var DefaultAllocator Allocator = cmalloc{}

// cmalloc delegates straight to the libc heap.
type cmalloc struct{}

func (cmalloc) Alloc(size uintptr) unsafe.Pointer {
	return C.malloc(C.size_t(size))
}

func (cmalloc) Calloc(count, size uintptr) unsafe.Pointer {
	return C.calloc(C.size_t(count), C.size_t(size))
}

func (cmalloc) Free(ptr unsafe.Pointer) {
	C.free(ptr)
}

func (cmalloc) Realloc(ptr unsafe.Pointer, size uintptr) unsafe.Pointer {
	return C.realloc(ptr, C.size_t(size))
}

func (cmalloc) UsableSize(ptr unsafe.Pointer) uintptr {
	return uintptr(C.heapprof_usable_size(ptr))
}

func (cmalloc) PosixMemalign(align, size uintptr) (unsafe.Pointer, int) {
	var out unsafe.Pointer
	rc := C.heapprof_posix_memalign(&out, C.size_t(align), C.size_t(size))
	if rc != 0 {
		return nil, int(rc)
	}
	return out, 0
}

func (cmalloc) AlignedAlloc(align, size uintptr) unsafe.Pointer {
	return C.heapprof_aligned_alloc(C.size_t(align), C.size_t(size))
}
