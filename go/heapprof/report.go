package heapprof

import (
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/google/pprof/profile"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// internalFramePrefixes matches the profiler's own plumbing in symbolised
// stacks. The profiler allocates too (stack storage, map growth, report
// generation), so its frames show up in captures and are filtered out of
// every report.
var internalFramePrefixes = []string{
	"github.com/planetscale/heapprof/go/heapprof.",
	"runtime.mallocgc",
	"runtime.makeslice",
	"runtime.growslice",
}

func isInternalFrame(function string) bool {
	for _, prefix := range internalFramePrefixes {
		if strings.HasPrefix(function, prefix) {
			return true
		}
	}
	return false
}

// dropFramesRE is carried in the pprof output so downstream viewers hide the
// recording frame even when it survives the prefix filter.
const dropFramesRE = `github\.com/planetscale/heapprof/.*\.trackAllocated`

// Frame is one resolved stack frame in a report entry.
type Frame struct {
	Function string
	File     string
	Line     int
	PC       uintptr
}

// Entry is the aggregate for one resolved stack, leaf first.
type Entry struct {
	Frames       []Frame
	AllocBytes   int64
	AllocObjects int64
	FreeBytes    int64
	FreeObjects  int64
}

// InUseBytes returns the bytes allocated against this stack and not yet
// freed. Only meaningful when the session ran with free tracking.
func (e *Entry) InUseBytes() int64 {
	return e.AllocBytes - e.FreeBytes
}

// InUseObjects is the object counterpart of InUseBytes.
func (e *Entry) InUseObjects() int64 {
	return e.AllocObjects - e.FreeObjects
}

// Report is an immutable snapshot of the collector with all frames
// symbolised and internal frames removed. Stacks that become identical after
// filtering are merged.
type Report struct {
	Entries []*Entry

	period           int64
	allocatedBytes   int64
	allocatedObjects int64
}

// AllocatedBytes returns the total bytes allocated during the session,
// sampled or not.
func (r *Report) AllocatedBytes() int64 { return r.allocatedBytes }

// AllocatedObjects is the object counterpart of AllocatedBytes.
func (r *Report) AllocatedObjects() int64 { return r.allocatedObjects }

// snapshot reads the profiler state under the read lock and resolves it.
func snapshot() *Report {
	state := profiler.state.Load()
	profiler.mu.RLock()
	defer profiler.mu.RUnlock()

	r := &Report{
		period:           state.period,
		allocatedBytes:   state.allocatedBytes.Load(),
		allocatedObjects: state.allocatedObjects.Load(),
	}

	merged := make(map[string]*Entry)
	state.collector.forEach(func(stack *stackRecord, rec *profileRecord) {
		frames := resolveFrames(stack)
		key := entryKey(frames)
		e, ok := merged[key]
		if !ok {
			e = &Entry{Frames: frames}
			merged[key] = e
			r.Entries = append(r.Entries, e)
		}
		e.AllocBytes += rec.allocBytes
		e.AllocObjects += rec.allocObjects
		e.FreeBytes += rec.freeBytes
		e.FreeObjects += rec.freeObjects
	})
	return r
}

// resolveFrames symbolises a raw stack, expanding inlined calls and dropping
// internal frames. A stack that resolves to nothing (a capture failure) is
// reported as an empty frame list.
func resolveFrames(stack *stackRecord) []Frame {
	if stack.n == 0 {
		return nil
	}
	var out []Frame
	iter := runtime.CallersFrames(stack.pcs[:stack.n])
	for {
		frame, more := iter.Next()
		if frame.Function != "" && !isInternalFrame(frame.Function) {
			out = append(out, Frame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
				PC:       frame.PC,
			})
		}
		if !more {
			break
		}
	}
	return out
}

// entryKey keys merged entries by the function name sequence alone, so two
// stacks through the same functions merge even when their lines differ; the
// file and line of the first entry seen win.
func entryKey(frames []Frame) string {
	var b strings.Builder
	for _, f := range frames {
		b.WriteString(f.Function)
		b.WriteByte(0)
	}
	return b.String()
}

// Pprof renders the report as a pprof profile with a single alloc_space
// sample type, ready for go tool pprof and compatible viewers.
func (r *Report) Pprof() (*profile.Profile, error) {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "alloc_space", Unit: "bytes"},
		},
		PeriodType: &profile.ValueType{Type: "space", Unit: "bytes"},
		Period:     r.period,
		DropFrames: dropFramesRE,
		TimeNanos:  time.Now().UnixNano(),
	}

	type locKey struct {
		pc       uintptr
		function string
	}
	funcs := make(map[string]*profile.Function)
	locs := make(map[locKey]*profile.Location)

	// inline-expanded frames share a pc, so locations are keyed by pc and
	// function
	locationFor := func(f Frame) *profile.Location {
		key := locKey{pc: f.PC, function: f.Function}
		if loc, ok := locs[key]; ok {
			return loc
		}
		fn, ok := funcs[f.Function]
		if !ok {
			fn = &profile.Function{
				ID:         uint64(len(funcs) + 1),
				Name:       f.Function,
				SystemName: f.Function,
				Filename:   f.File,
			}
			funcs[f.Function] = fn
			p.Function = append(p.Function, fn)
		}
		loc := &profile.Location{
			ID:      uint64(len(locs) + 1),
			Address: uint64(f.PC),
			Line: []profile.Line{
				{Function: fn, Line: int64(f.Line)},
			},
		}
		locs[key] = loc
		p.Location = append(p.Location, loc)
		return loc
	}

	for _, e := range r.Entries {
		if e.AllocBytes == 0 {
			continue
		}
		sample := &profile.Sample{
			Value: []int64{e.AllocBytes},
		}
		for _, f := range e.Frames {
			sample.Location = append(sample.Location, locationFor(f))
		}
		p.Sample = append(p.Sample, sample)
	}

	if err := p.CheckValid(); err != nil {
		return nil, errors.Wrap(err, "building pprof profile")
	}
	return p, nil
}

// WritePprof writes the gzip-compressed serialised profile to w.
func (r *Report) WritePprof(w io.Writer) error {
	p, err := r.Pprof()
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(w)
	if err := p.WriteUncompressed(zw); err != nil {
		return errors.Wrap(err, "encoding pprof profile")
	}
	return errors.Wrap(zw.Close(), "flushing pprof profile")
}
