package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/seantiz/sqlworker/internal/config"
	"github.com/seantiz/sqlworker/internal/database"
	"github.com/seantiz/sqlworker/internal/database/sqldb"
	"github.com/seantiz/sqlworker/internal/engine"
	"github.com/seantiz/sqlworker/internal/store"
)

// databaseName is the registry name of the database configured through
// the environment and flags.
const databaseName = "default"

// poolFlags are the connection settings every command accepts on top of
// the environment.
type poolFlags struct {
	dialect string
	dsn     string
	workers int
}

func (f *poolFlags) register(cmd *cobra.Command, cfg config.Config) {
	cmd.Flags().StringVar(&f.dialect, "dialect", cfg.DBDialect, "database dialect (sqlite, mysql, duckdb)")
	cmd.Flags().StringVar(&f.dsn, "dsn", cfg.DBDSN, "database data source name")
	cmd.Flags().IntVar(&f.workers, "workers", cfg.Workers, "number of worker connections")
}

// runtime is everything a command opens to talk to one database.
type runtime struct {
	logger   *slog.Logger
	logFile  io.Closer
	registry *database.Registry
	journal  store.Store
	broker   *engine.Broker
	pool     *engine.Pool
}

// openRuntime opens the connector, the optional journal and the worker pool.
// Logs go to logOut, teed to cfg.LogPath when set.
func openRuntime(ctx context.Context, cfg config.Config, flags poolFlags, logOut io.Writer, withJournal bool) (*runtime, error) {
	w, logFile, err := cfg.LogWriter(logOut)
	if err != nil {
		return nil, err
	}
	rt := &runtime{
		logger:   config.NewLogger(w, cfg.LogLevel),
		logFile:  logFile,
		registry: database.NewRegistry(),
		broker:   engine.NewBroker(),
	}

	c, err := sqldb.Open(flags.dialect, flags.dsn, rt.logger)
	if err != nil {
		rt.close(ctx)
		return nil, fmt.Errorf("open database: %w", err)
	}
	rt.registry.Register(databaseName, c)

	if withJournal && cfg.JournalPath != "" {
		j, err := store.NewSQLiteStore(cfg.JournalPath)
		if err != nil {
			rt.close(ctx)
			return nil, fmt.Errorf("open journal: %w", err)
		}
		rt.journal = j
	}

	rt.pool, err = engine.Open(ctx, c, engine.Options{
		Name:          databaseName,
		Workers:       flags.workers,
		QueueCapacity: cfg.QueueCapacity,
		RetryWindow:   cfg.RetryWindow,
		RetryBackoff:  cfg.RetryBackoff,
		OpTimeout:     cfg.OpTimeout,
		Journal:       rt.journal,
		Broker:        rt.broker,
		Logger:        rt.logger,
	})
	if err != nil {
		rt.close(ctx)
		return nil, fmt.Errorf("start worker pool: %w", err)
	}
	return rt, nil
}

// close stops the pool and releases everything in reverse order of opening.
func (rt *runtime) close(ctx context.Context) error {
	var errs []error
	if rt.pool != nil {
		errs = append(errs, rt.pool.Stop(ctx))
	}
	if rt.journal != nil {
		errs = append(errs, rt.journal.Close())
	}
	errs = append(errs, rt.registry.Close())
	if rt.logFile != nil {
		errs = append(errs, rt.logFile.Close())
	}
	return errors.Join(errs...)
}
