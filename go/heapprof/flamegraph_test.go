package heapprof_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planetscale/heapprof/go/heapprof"
)

//go:noinline
func flameLeafAlloc() {
	heapprof.Free(heapprof.Malloc(4096))
}

//go:noinline
func flameMidAlloc() {
	flameLeafAlloc()
}

func TestFlamegraphSVG(t *testing.T) {
	session := heapprof.Start(1)
	defer session.Stop()

	for i := 0; i < 10; i++ {
		flameMidAlloc()
	}

	report := session.Report()

	var buf bytes.Buffer
	require.NoError(t, report.Flamegraph(&buf))

	svg := buf.String()
	require.True(t, strings.HasPrefix(svg, `<?xml`))
	require.Contains(t, svg, "<svg")
	require.Contains(t, svg, "</svg>")
	require.Contains(t, svg, "flameLeafAlloc")
	require.Contains(t, svg, "flameMidAlloc")
	require.Contains(t, svg, "bytes")
	require.Contains(t, svg, "Heap Allocation Flame Graph")
}

func TestFlamegraphOptions(t *testing.T) {
	session := heapprof.Start(1)
	defer session.Stop()
	flameMidAlloc()
	report := session.Report()

	var buf bytes.Buffer
	err := report.Flamegraph(&buf,
		heapprof.WithTitle("Demo Heap"),
		heapprof.WithCountLabel("octets"),
		heapprof.WithWidth(800))
	require.NoError(t, err)

	svg := buf.String()
	require.Contains(t, svg, "Demo Heap")
	require.Contains(t, svg, "octets")
	require.Contains(t, svg, `width="800"`)
}
