package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/Swind/go-task-graph/core"
	"github.com/Swind/go-task-graph/internal/logging"
	"github.com/Swind/go-task-graph/internal/manifest"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <manifest>",
		Short: "Run the task graph declared in a YAML or HCL manifest",
		Long: `Run loads a manifest (.yaml, .yml or .hcl), executes every task once its
dependencies have finished and prints one line per task. The exit status is
non-zero when any task failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			return a.run(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}

	cmd.Flags().Int("workers", 0, "Worker goroutines (0 uses GOMAXPROCS)")
	cmd.Flags().Bool("fifo", false, "Queue ready tasks in arrival order, ignoring priority")
	cmd.Flags().Duration("shutdown-timeout", 30*time.Second, "How long to wait for running tasks when interrupted")

	return cmd
}

// taskResult is one summary row.
type taskResult struct {
	name  string
	state core.State
	value any
	err   error
}

func (a *app) run(ctx context.Context, out io.Writer, path string) error {
	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	compiled, err := manifest.Compile(m)
	if err != nil {
		return fmt.Errorf("compiling manifest %s: %w", path, err)
	}
	g, err := compiled.Builder.Build()
	if err != nil {
		return fmt.Errorf("building graph for %s: %w", path, err)
	}

	runID := uuid.NewString()
	metrics, err := newMetricsServer(a.cfg.Metrics)
	if err != nil {
		return err
	}
	s := core.NewScheduler(a.cfg.PoolConfig("run-"+runID[:8], logging.NewSlogAdapter(a.logger), metrics.Metrics()))
	if err := metrics.Start(ctx, s, a.logger); err != nil {
		_ = s.Shutdown(context.Background(), false)
		s.Join()
		return err
	}
	defer metrics.Stop()

	log := a.logger.With("manifest", m.Name, "run", runID)
	log.Info("running manifest", "tasks", g.Len(), "workers", s.WorkerCount())
	start := time.Now()

	handles, err := s.SubmitGraph(g)
	if err != nil {
		_ = s.Shutdown(context.Background(), false)
		s.Join()
		return err
	}
	waitErr := waitAll(ctx, handles)
	if waitErr != nil {
		log.Warn("interrupted, shutting down", "error", waitErr, "timeout", a.cfg.ShutdownTimeout)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	stopErr := s.Shutdown(stopCtx, true)
	if stopErr == nil {
		s.Join()
	} else {
		// Running payloads cannot be interrupted; leave them to process exit.
		log.Warn("abandoning running tasks", "active", s.Stats().Active, "error", stopErr)
	}
	elapsed := time.Since(start)

	results := make([]taskResult, 0, g.Len())
	failed := 0
	for _, id := range g.TopologicalOrder() {
		h := handles[id]
		state, value, err := h.Poll()
		if state != core.StateCompleted {
			failed++
		}
		results = append(results, taskResult{name: compiled.Names[id], state: state, value: value, err: err})
	}
	printSummary(out, results)

	stats := s.Stats()
	fmt.Fprintf(out, "\n%d tasks, %d failed, %d steals in %s\n", len(results), failed, stats.Steals, elapsed.Round(time.Millisecond))
	log.Info("run finished", "failed", failed, "elapsed", elapsed, "steals", stats.Steals)

	switch {
	case waitErr != nil:
		return errors.Join(waitErr, stopErr)
	case failed > 0:
		return fmt.Errorf("%d of %d tasks failed", failed, len(results))
	default:
		return stopErr
	}
}

// waitAll blocks until every handle resolves or ctx is done.
func waitAll(ctx context.Context, handles core.Handles) error {
	for _, h := range handles {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func printSummary(out io.Writer, results []taskResult) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tSTATE\tDETAIL")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.name, r.state, detail(r))
	}
	_ = tw.Flush()
}

func detail(r taskResult) string {
	switch {
	case r.err != nil:
		return r.err.Error()
	case r.state == core.StatePending:
		return ""
	}
	o, ok := r.value.(manifest.Output)
	if !ok {
		return fmt.Sprint(r.value)
	}
	if len(o.Inputs) == 0 {
		return o.Result
	}
	return fmt.Sprintf("%s (inputs: %v)", o.Result, o.Inputs)
}
