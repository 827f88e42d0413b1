//go:build !cgo

package heapprof

import (
	"sync"
	"unsafe"

	"github.com/planetscale/heapprof/go/log"
)

// DefaultAllocator is the allocator used by the hooks unless the caller
// swaps in a different one.
var DefaultAllocator Allocator = &gomalloc{}

// gomalloc is a fallback allocator for builds with cgo disabled. Blocks are
// backed by Go slices pinned in a registry so the garbage collector does not
// reclaim them while the application still holds the raw pointer. It should
// never be used in production builds: profiling the Go heap with itself
// defeats the purpose of the C-heap hooks.
type gomalloc struct {
	mu     sync.Mutex
	warn   sync.Once
	blocks map[uintptr][]byte
}

func (m *gomalloc) retain(buf []byte) unsafe.Pointer {
	ptr := unsafe.Pointer(&buf[0])
	m.mu.Lock()
	if m.blocks == nil {
		m.blocks = make(map[uintptr][]byte)
	}
	m.blocks[uintptr(ptr)] = buf
	m.mu.Unlock()
	return ptr
}

func (m *gomalloc) Alloc(size uintptr) unsafe.Pointer {
	m.warn.Do(func() {
		log.Warning("cgo disabled, backing the C heap with gomalloc")
	})
	if size == 0 {
		size = 1
	}
	return m.retain(make([]byte, size))
}

func (m *gomalloc) Calloc(count, size uintptr) unsafe.Pointer {
	if size != 0 && count > ^uintptr(0)/size {
		return nil
	}
	return m.Alloc(count * size)
}

func (m *gomalloc) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	m.mu.Lock()
	delete(m.blocks, uintptr(ptr))
	m.mu.Unlock()
}

func (m *gomalloc) Realloc(ptr unsafe.Pointer, size uintptr) unsafe.Pointer {
	if ptr == nil {
		return m.Alloc(size)
	}
	m.mu.Lock()
	old := m.blocks[uintptr(ptr)]
	m.mu.Unlock()

	next := m.Alloc(size)
	if next != nil && old != nil {
		n := uintptr(len(old))
		if size < n {
			n = size
		}
		copy(unsafe.Slice((*byte)(next), n), old[:n])
	}
	m.Free(ptr)
	return next
}

func (m *gomalloc) UsableSize(ptr unsafe.Pointer) uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uintptr(len(m.blocks[uintptr(ptr)]))
}

func (m *gomalloc) PosixMemalign(align, size uintptr) (unsafe.Pointer, int) {
	const einval = 22
	if align == 0 || align&(align-1) != 0 || align < unsafe.Sizeof(uintptr(0)) {
		return nil, einval
	}
	ptr := m.AlignedAlloc(align, size)
	if ptr == nil {
		const enomem = 12
		return nil, enomem
	}
	return ptr, 0
}

func (m *gomalloc) AlignedAlloc(align, size uintptr) unsafe.Pointer {
	if size == 0 {
		size = 1
	}
	buf := make([]byte, size+align)
	base := uintptr(unsafe.Pointer(&buf[0]))
	off := (align - base%align) % align
	ptr := unsafe.Pointer(&buf[off])
	m.mu.Lock()
	if m.blocks == nil {
		m.blocks = make(map[uintptr][]byte)
	}
	m.blocks[uintptr(ptr)] = buf[off : off+size]
	m.mu.Unlock()
	return ptr
}
