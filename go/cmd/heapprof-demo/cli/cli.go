package cli

import (
	"os"
	"unsafe"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/planetscale/heapprof/go/heapprof"
)

var (
	period     int
	workers    int
	iterations int
	trackFree  bool
	svgPath    string
	pprofPath  string

	log *zap.Logger

	Main = &cobra.Command{
		Use:   "heapprof-demo",
		Short: "Run a synthetic C-heap workload under the heap profiler",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) (err error) {
			log, err = zap.NewProduction()
			return err
		},
		RunE: run,
		PostRun: func(cmd *cobra.Command, args []string) {
			_ = log.Sync()
		},
	}
)

func init() {
	Main.Flags().IntVar(&period, "period", 1, "bytes between samples; 1 samples every allocation")
	Main.Flags().IntVar(&workers, "workers", 4, "concurrent allocation workers")
	Main.Flags().IntVar(&iterations, "iterations", 10000, "allocations per worker")
	Main.Flags().BoolVar(&trackFree, "track-free", false, "record frees against their allocation sites")
	Main.Flags().StringVar(&svgPath, "flamegraph", "flamegraph.svg", "output path for the SVG flamegraph")
	Main.Flags().StringVar(&pprofPath, "pprof", "heap.pb.gz", "output path for the pprof profile")
}

func run(cmd *cobra.Command, args []string) error {
	var opts []heapprof.Option
	if trackFree {
		opts = append(opts, heapprof.WithFreeTracking())
	}
	session := heapprof.Start(period, opts...)

	g := new(errgroup.Group)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			churn(iterations)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	stats := heapprof.ReadStats()
	log.Info("workload done",
		zap.Int64("alloc_bytes", stats.AllocBytes),
		zap.Int64("alloc_objects", stats.AllocObjects),
		zap.Int64("samples", stats.Samples))

	report := session.Report()

	svg, err := os.Create(svgPath)
	if err != nil {
		return err
	}
	defer svg.Close()
	if err := report.Flamegraph(svg); err != nil {
		return err
	}

	pb, err := os.Create(pprofPath)
	if err != nil {
		return err
	}
	defer pb.Close()
	if err := report.WritePprof(pb); err != nil {
		return err
	}

	log.Info("profile written",
		zap.String("flamegraph", svgPath),
		zap.String("pprof", pprofPath))
	return nil
}

// churn exercises every allocating entry point so the flamegraph has some
// shape to it.
func churn(n int) {
	held := make([]unsafe.Pointer, 0, 64)
	for i := 0; i < n; i++ {
		switch i % 4 {
		case 0:
			held = append(held, smallAlloc())
		case 1:
			held = append(held, zeroedAlloc())
		case 2:
			held = append(held, growingAlloc())
		case 3:
			p, rc := heapprof.PosixMemalign(64, 256)
			if rc == 0 {
				held = append(held, p)
			}
		}
		if len(held) == cap(held) {
			for _, p := range held {
				heapprof.Free(p)
			}
			held = held[:0]
		}
	}
	for _, p := range held {
		heapprof.Free(p)
	}
}

func smallAlloc() unsafe.Pointer {
	return heapprof.Malloc(128)
}

func zeroedAlloc() unsafe.Pointer {
	return heapprof.Calloc(16, 32)
}

func growingAlloc() unsafe.Pointer {
	p := heapprof.Malloc(64)
	return heapprof.Realloc(p, 1024)
}
