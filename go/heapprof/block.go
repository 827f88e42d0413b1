package heapprof

import "unsafe"

// blockMagic marks blocks that were carved by our hooks. A pointer whose
// header does not carry it is foreign and is passed straight through to the
// underlying allocator.
const blockMagic = 0xFEEDDEADBEEFF00D

// blockHeader sits at the base of every block handed out by the hooks; the
// user payload starts blockHeaderSize bytes later.
//
// frames points at a stackRecord in raw memory owned by the block, or is zero
// when the allocation was never sampled. It is kept as a uintptr because the
// header itself lives outside the Go heap.
type blockHeader struct {
	size   uintptr
	frames uintptr
	magic  uint64
}

// blockHeaderSize is the offset from a block base to its payload. It must be
// a multiple of the strongest alignment callers may demand from the aligned
// entry points, so that carving the header preserves their contract.
const blockHeaderSize = 64

// The header must fit in the carved prefix.
const _ = uint64(blockHeaderSize - unsafe.Sizeof(blockHeader{}))

// block is a handle over a raw allocation. It is only ever stack-allocated
// by the hooks; the header it manipulates lives in the raw block itself.
type block struct {
	base unsafe.Pointer
}

// newBlock stamps a fresh header at base.
func newBlock(base unsafe.Pointer) block {
	hdr := (*blockHeader)(base)
	hdr.size = 0
	hdr.frames = 0
	hdr.magic = blockMagic
	return block{base: base}
}

// adoptBlock recovers the handle for a payload pointer previously returned
// by the hooks.
func adoptBlock(payload unsafe.Pointer) block {
	return block{base: unsafe.Add(payload, -blockHeaderSize)}
}

func (b *block) header() *blockHeader {
	return (*blockHeader)(b.base)
}

// setSize stores the user-visible size and returns the previous one, which
// realloc needs to compute its signed delta.
func (b *block) setSize(size uintptr) uintptr {
	hdr := b.header()
	old := hdr.size
	hdr.size = size
	return old
}

func (b *block) size() uintptr {
	return b.header().size
}

func (b *block) payload() unsafe.Pointer {
	return unsafe.Add(b.base, blockHeaderSize)
}

// rebase points the handle at the block's new base after the underlying
// allocator moved it. The header contents moved with the block.
func (b *block) rebase(base unsafe.Pointer) {
	b.base = base
}

// check reports whether the header was stamped by our hooks.
func (b *block) check() bool {
	return b.header().magic == blockMagic
}

// attachStack returns the stack associated with this block. If the header
// has none and captureIfMissing is set, the current stack is captured and a
// copy is stored in raw memory owned by the block, so that the eventual free
// can be attributed to the allocation site. Called from inside the
// re-entrancy guard; it must not allocate through the hooks.
func (b *block) attachStack(sys Allocator, captureIfMissing bool) stackRecord {
	hdr := b.header()
	if hdr.frames == 0 {
		if !captureIfMissing {
			return stackRecord{}
		}
		var rec stackRecord
		rec.capture(3)
		if p := sys.Alloc(unsafe.Sizeof(stackRecord{})); p != nil {
			*(*stackRecord)(p) = rec
			hdr.frames = uintptr(p)
		}
		return rec
	}
	return *(*stackRecord)(unsafe.Pointer(hdr.frames))
}

// drop releases the header's owned stack record. Must be called before the
// raw base is handed back to the allocator.
func (b *block) drop(sys Allocator) {
	hdr := b.header()
	if hdr.frames != 0 {
		sys.Free(unsafe.Pointer(hdr.frames))
		hdr.frames = 0
	}
}
