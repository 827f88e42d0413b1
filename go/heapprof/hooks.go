package heapprof

import "unsafe"

// The hooks mirror the standard C allocation interface over the underlying
// Allocator, bit for bit: profiling is additive and observable only through
// the report. Each allocating entry point asks for blockHeaderSize extra
// bytes, stamps a header at the base and hands the payload to the caller;
// free and realloc adopt the header back by subtracting the same offset.

// maxAllocSize is the largest request the hooks can serve: anything bigger
// would wrap when the header is added and hand out a block far smaller than
// the caller asked for.
const maxAllocSize = ^uintptr(0) - blockHeaderSize

const enomem = 12

// Malloc allocates size bytes and returns the payload pointer, or nil.
func Malloc(size uintptr) unsafe.Pointer {
	if size > maxAllocSize {
		return nil
	}
	sys := DefaultAllocator
	base := sys.Alloc(size + blockHeaderSize)
	if base == nil {
		return nil
	}
	b := newBlock(base)
	b.setSize(size)
	trackAllocated(int64(size), &b, sys)
	return b.payload()
}

// Calloc allocates a zeroed array of count elements of size bytes each. The
// header is carved by asking the underlying calloc for enough extra elements
// to cover it, so every user-visible byte is still zeroed by the allocator.
// A count*size product that would overflow is rejected rather than wrapped.
func Calloc(count, size uintptr) unsafe.Pointer {
	if count == 0 || size == 0 {
		return Malloc(0)
	}
	if count > maxAllocSize/size {
		return nil
	}

	extra := blockHeaderSize / size
	if (count+extra)*size < count*size+blockHeaderSize {
		extra++
	}

	sys := DefaultAllocator
	base := sys.Calloc(count+extra, size)
	if base == nil {
		return nil
	}
	b := newBlock(base)
	effective := count * size
	b.setSize(effective)
	trackAllocated(int64(effective), &b, sys)
	return b.payload()
}

// Free releases a payload pointer. Free(nil) is a no-op; a pointer that did
// not come from our hooks is delegated untouched to the underlying free.
func Free(payload unsafe.Pointer) {
	if payload == nil {
		return
	}
	sys := DefaultAllocator
	b := adoptBlock(payload)
	if !b.check() {
		sys.Free(payload)
		return
	}
	trackAllocated(-int64(b.size()), &b, sys)
	b.drop(sys)
	sys.Free(b.base)
}

// Realloc resizes a payload in place or by moving it. Realloc(nil, n)
// behaves like Malloc(n); a foreign pointer is delegated untouched.
func Realloc(payload unsafe.Pointer, size uintptr) unsafe.Pointer {
	if payload == nil {
		return Malloc(size)
	}
	sys := DefaultAllocator
	b := adoptBlock(payload)
	if !b.check() {
		return sys.Realloc(payload, size)
	}
	if size > maxAllocSize {
		return nil
	}

	old := b.setSize(size)
	base := sys.Realloc(b.base, size+blockHeaderSize)
	if base == nil {
		b.setSize(old)
		return nil
	}
	b.rebase(base)
	trackAllocated(int64(size)-int64(old), &b, sys)
	return b.payload()
}

// PosixMemalign allocates size bytes aligned to align. The payload keeps the
// requested alignment for any align up to blockHeaderSize; it returns the
// payload and an errno-style code, zero on success.
func PosixMemalign(align, size uintptr) (unsafe.Pointer, int) {
	if size > maxAllocSize {
		return nil, enomem
	}
	sys := DefaultAllocator
	base, rc := sys.PosixMemalign(align, size+blockHeaderSize)
	if rc != 0 {
		return nil, rc
	}
	b := newBlock(base)
	b.setSize(size)
	trackAllocated(int64(size), &b, sys)
	return b.payload(), 0
}

// AlignedAlloc allocates size bytes aligned to align, or nil.
func AlignedAlloc(align, size uintptr) unsafe.Pointer {
	if size > maxAllocSize {
		return nil
	}
	sys := DefaultAllocator
	base := sys.AlignedAlloc(align, size+blockHeaderSize)
	if base == nil {
		return nil
	}
	b := newBlock(base)
	b.setSize(size)
	trackAllocated(int64(size), &b, sys)
	return b.payload()
}

// MallocUsableSize reports the usable size for a payload pointer. Pure
// delegation; the header is not consulted.
func MallocUsableSize(payload unsafe.Pointer) uintptr {
	return DefaultAllocator.UsableSize(payload)
}
