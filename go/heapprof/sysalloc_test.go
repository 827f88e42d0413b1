package heapprof

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestDebugAllocatorPanics(t *testing.T) {
	tests := []struct {
		name string
		op   func(m *DebugAllocator)
	}{
		{
			name: "leak",
			op: func(m *DebugAllocator) {
				m.Alloc(8)
			},
		},
		{
			name: "free unallocated",
			op: func(m *DebugAllocator) {
				var i int
				m.Free(unsafe.Pointer(&i))
			},
		},
		{
			name: "double free",
			op: func(m *DebugAllocator) {
				p := m.Alloc(8)
				m.Free(p)
				m.Free(p)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				if r == nil {
					t.Fatal("expected panic, but none occurred")
				}

				t.Logf("panic: %v", r)
			}()

			m := &DebugAllocator{Upstream: DefaultAllocator}
			tt.op(m)
			m.EnsureNoLeaks()
		})
	}
}

func TestDebugAllocatorTracksLifecycle(t *testing.T) {
	m := &DebugAllocator{Upstream: DefaultAllocator}

	p := m.Alloc(16)
	require.NotNil(t, p)
	require.True(t, m.IsAllocated(p))

	p = m.Realloc(p, 64)
	require.NotNil(t, p)
	require.True(t, m.IsAllocated(p))

	m.Free(p)
	require.False(t, m.IsAllocated(p))
	m.EnsureNoLeaks()
}

func TestAllocatorCallocZeroes(t *testing.T) {
	sys := DefaultAllocator

	const n = 64
	p := sys.Calloc(n, 1)
	require.NotNil(t, p)
	defer sys.Free(p)

	buf := unsafe.Slice((*byte)(p), n)
	for _, b := range buf {
		require.Zero(t, b)
	}
}

func TestAllocatorAlignment(t *testing.T) {
	sys := DefaultAllocator

	for _, align := range []uintptr{16, 32, 64, 128} {
		p, rc := sys.PosixMemalign(align, 100)
		require.Zero(t, rc)
		require.NotNil(t, p)
		require.Zero(t, uintptr(p)%align)
		sys.Free(p)

		p = sys.AlignedAlloc(align, align*2)
		require.NotNil(t, p)
		require.Zero(t, uintptr(p)%align)
		sys.Free(p)
	}
}

func TestAllocatorReallocPreservesData(t *testing.T) {
	sys := DefaultAllocator

	p := sys.Alloc(8)
	require.NotNil(t, p)
	copy(unsafe.Slice((*byte)(p), 8), "heapprof")

	p = sys.Realloc(p, 4096)
	require.NotNil(t, p)
	defer sys.Free(p)
	require.Equal(t, "heapprof", string(unsafe.Slice((*byte)(p), 8)))
}
