package heapprof_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/planetscale/heapprof/go/heapprof"
)

func TestSamplingPeriod(t *testing.T) {
	session := heapprof.Start(1000)
	defer session.Stop()

	held := make([]unsafe.Pointer, 0, 1000)
	for i := 0; i < 1000; i++ {
		held = append(held, heapprof.Malloc(1))
	}

	stats := heapprof.ReadStats()
	require.EqualValues(t, 1000, stats.AllocBytes)
	require.EqualValues(t, 1000, stats.AllocObjects)
	require.EqualValues(t, 1, stats.Samples)

	for _, p := range held {
		heapprof.Free(p)
	}
}

func TestPeriodOneSamplesEveryAllocation(t *testing.T) {
	session := heapprof.Start(1)
	defer session.Stop()

	for i := 0; i < 10; i++ {
		heapprof.Free(heapprof.Malloc(16))
	}

	require.EqualValues(t, 10, heapprof.ReadStats().Samples)
}

func TestStopHaltsSampling(t *testing.T) {
	session := heapprof.Start(1)
	session.Stop()

	heapprof.Free(heapprof.Malloc(64))

	stats := heapprof.ReadStats()
	require.Zero(t, stats.Samples)
	require.Zero(t, stats.AllocBytes)
}

func TestRestartResetsState(t *testing.T) {
	session := heapprof.Start(1)
	heapprof.Free(heapprof.Malloc(64))
	require.NotZero(t, heapprof.ReadStats().AllocBytes)
	session.Stop()

	session = heapprof.Start(1)
	defer session.Stop()

	stats := heapprof.ReadStats()
	require.Zero(t, stats.AllocBytes)
	require.Zero(t, stats.AllocObjects)
	require.Zero(t, stats.Samples)
}

// With period 1 every tracked allocation is sampled, so the bytes recorded
// across all entries must equal the running total at snapshot time, and no
// entry can have freed more than it allocated.
func TestConservation(t *testing.T) {
	session := heapprof.Start(1, heapprof.WithFreeTracking())

	g := new(errgroup.Group)
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 500; i++ {
				heapprof.Free(heapprof.Malloc(16))
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	report := session.Report()

	var allocBytes, freeBytes int64
	for _, e := range report.Entries {
		require.GreaterOrEqual(t, e.AllocBytes, e.FreeBytes)
		allocBytes += e.AllocBytes
		freeBytes += e.FreeBytes
	}
	stats := heapprof.ReadStats()
	require.Equal(t, stats.AllocBytes, allocBytes)
	require.LessOrEqual(t, freeBytes, allocBytes)
	require.NotZero(t, allocBytes)
}

func TestFreeTrackingDisabledByDefault(t *testing.T) {
	session := heapprof.Start(1)
	defer session.Stop()

	heapprof.Free(heapprof.Malloc(100))

	report := session.Report()
	require.Len(t, report.Entries, 1)
	require.EqualValues(t, 100, report.Entries[0].AllocBytes)
	require.Zero(t, report.Entries[0].FreeBytes)
}
