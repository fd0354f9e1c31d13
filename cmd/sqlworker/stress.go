package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/seantiz/sqlworker/internal/config"
)

// stressResult summarises one burst.
type stressResult struct {
	Queries int
	Failed  int64
	Elapsed time.Duration
}

func (r stressResult) perSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Queries) / r.Elapsed.Seconds()
}

// RunStressCommand fires a burst of asynchronous queries with a bounded
// number in flight and reports throughput.
func RunStressCommand() *cobra.Command {
	cfg := config.Load()
	var (
		flags  poolFlags
		count  int
		window int
		query  string
	)

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Fire a burst of async queries and report throughput",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count <= 0 || window <= 0 {
				return errors.New("count and window must be positive")
			}
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, cfg, flags, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			var failed atomic.Int64
			var g errgroup.Group
			g.SetLimit(window)

			start := time.Now()
			for range count {
				g.Go(func() error {
					if _, err := rt.pool.Query(query).Wait(ctx); err != nil {
						failed.Add(1)
						rt.logger.Debug("stress query failed", "error", err)
					}
					return nil
				})
			}
			_ = g.Wait()

			res := stressResult{Queries: count, Failed: failed.Load(), Elapsed: time.Since(start)}
			fmt.Fprintf(cmd.OutOrStdout(), "%d queries in %s (%.0f/s), %d failed\n",
				res.Queries, res.Elapsed.Round(time.Millisecond), res.perSecond(), res.Failed)
			if res.Failed > 0 {
				return fmt.Errorf("stress: %d of %d queries failed", res.Failed, res.Queries)
			}
			return nil
		},
	}

	flags.register(cmd, cfg)
	cmd.Flags().IntVar(&count, "count", 1000, "number of queries to send")
	cmd.Flags().IntVar(&window, "window", 100, "maximum queries in flight")
	cmd.Flags().StringVar(&query, "query", "SELECT 1", "query to run")
	return cmd
}
