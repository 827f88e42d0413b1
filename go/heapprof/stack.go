package heapprof

import (
	"encoding/binary"
	"runtime"

	"github.com/cespare/xxhash/v2"
)

// maxStackDepth bounds the number of frames kept per sampled allocation.
const maxStackDepth = 32

// stackRecord is a fixed-capacity backtrace. It is a plain value with inline
// arrays so it can be captured without touching the heap and copied into raw
// memory inside a block header.
//
// pcs holds the raw program counters for lazy symbolisation at report time.
// entries holds the start address of the function containing each pc; two
// capture sites inside the same function compare equal, so equality and the
// fingerprint are defined over entries, never over pc identity.
type stackRecord struct {
	pcs     [maxStackDepth]uintptr
	entries [maxStackDepth]uintptr
	n       int
}

// capture walks the current goroutine stack. skip counts the frames between
// the caller of capture and the frame the record should start at.
func (r *stackRecord) capture(skip int) {
	r.n = runtime.Callers(skip+2, r.pcs[:])
	for i := 0; i < r.n; i++ {
		if fn := runtime.FuncForPC(r.pcs[i]); fn != nil {
			r.entries[i] = fn.Entry()
		} else {
			r.entries[i] = r.pcs[i]
		}
	}
}

func (r *stackRecord) equal(other *stackRecord) bool {
	if r.n != other.n {
		return false
	}
	for i := 0; i < r.n; i++ {
		if r.entries[i] != other.entries[i] {
			return false
		}
	}
	return true
}

// fingerprint hashes the symbol address sequence.
func (r *stackRecord) fingerprint() uint64 {
	var buf [8]byte
	var d xxhash.Digest
	d.Reset()
	for i := 0; i < r.n; i++ {
		binary.LittleEndian.PutUint64(buf[:], uint64(r.entries[i]))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}
