package cli

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/Swind/go-task-graph/core"
	"github.com/Swind/go-task-graph/internal/logging"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type benchOptions struct {
	tasks      int
	submitters int
}

func newBenchCmd(a *app) *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure scheduler throughput on diamond-shaped graphs",
		Long: `Bench submits --tasks tasks as four-task diamond graphs from --submitters
concurrent goroutines, waits for all of them and prints the throughput and the
number of steals between workers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			return a.bench(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.tasks, "tasks", 100000, "Total number of tasks")
	cmd.Flags().IntVar(&opts.submitters, "submitters", 4, "Concurrent submitting goroutines")
	cmd.Flags().Int("workers", 0, "Worker goroutines (0 uses GOMAXPROCS)")
	cmd.Flags().Bool("fifo", false, "Queue ready tasks in arrival order, ignoring priority")

	return cmd
}

func (a *app) bench(ctx context.Context, out io.Writer, opts benchOptions) error {
	if opts.tasks < 4 || opts.submitters < 1 {
		return fmt.Errorf("need --tasks >= 4 and --submitters >= 1, got %d and %d", opts.tasks, opts.submitters)
	}
	diamonds := opts.tasks / 4

	metrics, err := newMetricsServer(a.cfg.Metrics)
	if err != nil {
		return err
	}
	s := core.NewScheduler(a.cfg.PoolConfig("bench", logging.NewSlogAdapter(a.logger), metrics.Metrics()))
	defer s.Join()
	defer func() { _ = s.Shutdown(context.Background(), false) }()
	if err := metrics.Start(ctx, s, a.logger); err != nil {
		return err
	}
	defer metrics.Stop()

	var ran atomic.Int64
	payload := func(context.Context) (any, error) {
		ran.Add(1)
		return nil, nil
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := range opts.submitters {
		share := diamonds / opts.submitters
		if i < diamonds%opts.submitters {
			share++
		}
		g.Go(func() error {
			sinks := make([]*core.Handle, 0, share)
			for i := range share {
				sink, err := submitDiamond(s, payload)
				if err != nil {
					return err
				}
				sinks = append(sinks, sink)
			}
			for _, h := range sinks {
				select {
				case <-h.Done():
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	total := ran.Load()
	stats := s.Stats()
	fmt.Fprintf(out, "tasks:       %d\n", total)
	fmt.Fprintf(out, "submitters:  %d\n", opts.submitters)
	fmt.Fprintf(out, "workers:     %d\n", s.WorkerCount())
	fmt.Fprintf(out, "elapsed:     %s\n", elapsed.Round(time.Microsecond))
	fmt.Fprintf(out, "throughput:  %.0f tasks/s\n", float64(total)/elapsed.Seconds())
	fmt.Fprintf(out, "steals:      %d\n", stats.Steals)
	a.logger.Info("bench finished", "tasks", total, "elapsed", elapsed, "steals", stats.Steals)
	return nil
}

// submitDiamond submits a -> {b, c} -> d and returns d's handle.
func submitDiamond(s *core.Scheduler, payload core.Payload) (*core.Handle, error) {
	b := core.NewGraphBuilder()
	top := b.AddTask(payload)
	left := b.AddTask(payload)
	right := b.AddTask(payload)
	sink := b.AddTask(payload)
	for _, e := range [][2]core.TaskID{{top, left}, {top, right}, {left, sink}, {right, sink}} {
		if err := b.AddDependency(e[0], e[1]); err != nil {
			return nil, err
		}
	}
	g, err := b.Build()
	if err != nil {
		return nil, err
	}
	handles, err := s.SubmitGraph(g)
	if err != nil {
		return nil, err
	}
	return handles[sink], nil
}
