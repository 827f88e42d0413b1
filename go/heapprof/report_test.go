package heapprof_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/require"

	"github.com/planetscale/heapprof/go/heapprof"
)

//go:noinline
func allocateForReport(n uintptr) {
	heapprof.Free(heapprof.Malloc(n))
}

func TestPprofProfileShape(t *testing.T) {
	session := heapprof.Start(2048)

	for i := 0; i < 100; i++ {
		allocateForReport(64)
	}

	report := session.Report()
	p, err := report.Pprof()
	require.NoError(t, err)

	require.Len(t, p.SampleType, 1)
	require.Equal(t, "alloc_space", p.SampleType[0].Type)
	require.Equal(t, "bytes", p.SampleType[0].Unit)
	require.Equal(t, "space", p.PeriodType.Type)
	require.Equal(t, "bytes", p.PeriodType.Unit)
	require.EqualValues(t, 2048, p.Period)
	require.Contains(t, p.DropFrames, "trackAllocated")
	require.NotEmpty(t, p.Sample)
}

func TestPprofRoundTrip(t *testing.T) {
	session := heapprof.Start(1)

	allocateForReport(512)

	report := session.Report()

	var buf bytes.Buffer
	require.NoError(t, report.WritePprof(&buf))

	parsed, err := profile.Parse(&buf)
	require.NoError(t, err)
	require.NoError(t, parsed.CheckValid())
	require.Len(t, parsed.SampleType, 1)

	var total int64
	for _, s := range parsed.Sample {
		total += s.Value[0]
	}
	require.EqualValues(t, 512, total)
}

func TestReportFiltersInternalFrames(t *testing.T) {
	session := heapprof.Start(1)

	allocateForReport(128)

	report := session.Report()
	require.NotEmpty(t, report.Entries)

	var found bool
	for _, e := range report.Entries {
		for _, f := range e.Frames {
			require.False(t, strings.HasPrefix(f.Function, "github.com/planetscale/heapprof/go/heapprof."),
				"internal frame %q leaked into the report", f.Function)
			if strings.Contains(f.Function, "allocateForReport") {
				found = true
			}
		}
	}
	require.True(t, found, "allocation site missing from the report")
}

func TestEmptyReport(t *testing.T) {
	session := heapprof.Start(1)
	report := session.Report()
	require.Empty(t, report.Entries)

	p, err := report.Pprof()
	require.NoError(t, err)
	require.Empty(t, p.Sample)

	var buf bytes.Buffer
	require.NoError(t, report.Flamegraph(&buf))
	require.Contains(t, buf.String(), "<svg")
}
