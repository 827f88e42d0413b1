// heapprof-demo runs a synthetic allocation workload under the heap profiler
// and writes the resulting flamegraph and pprof profile to disk.
package main

import (
	"os"

	"github.com/planetscale/heapprof/go/cmd/heapprof-demo/cli"
)

func main() {
	if err := cli.Main.Execute(); err != nil {
		os.Exit(1)
	}
}
