package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/sqlworker/internal/api"
	"github.com/seantiz/sqlworker/internal/config"
	"github.com/seantiz/sqlworker/internal/engine"
)

const stopTimeout = 30 * time.Second

// RunServeCommand starts the worker pool behind the admin HTTP API.
func RunServeCommand() *cobra.Command {
	cfg := config.Load()
	var (
		flags poolFlags
		addr  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the worker pool and the admin HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := openRuntime(ctx, cfg, flags, os.Stdout, true)
			if err != nil {
				return err
			}
			rt.logger.Info("sqlworker: starting",
				"listen_addr", addr,
				"dialect", flags.dialect,
				"workers", flags.workers,
				"journal", cfg.JournalPath,
			)

			pools := map[string]*engine.Pool{databaseName: rt.pool}
			srv := api.NewServer(addr, rt.registry, pools, rt.journal, rt.broker, rt.logger)
			runErr := srv.Run(ctx)

			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			if err := rt.close(stopCtx); err != nil {
				rt.logger.Error("shutdown incomplete", "error", err)
			}
			if runErr != nil {
				return fmt.Errorf("serve: %w", runErr)
			}
			return nil
		},
	}

	flags.register(cmd, cfg)
	cmd.Flags().StringVar(&addr, "addr", cfg.ListenAddr, "HTTP listen address")
	return cmd
}
