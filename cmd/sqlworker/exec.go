package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/sqlworker/internal/config"
	"github.com/seantiz/sqlworker/internal/database"
)

// RunExecCommand runs one statement through the pool and prints its rows.
func RunExecCommand() *cobra.Command {
	cfg := config.Load()
	var (
		flags   poolFlags
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "exec <sql>",
		Short: "Run one SQL statement through the worker pool",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, cfg, flags, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			waitCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			rs, err := rt.pool.Query(strings.Join(args, " ")).Wait(waitCtx)
			if err != nil {
				return fmt.Errorf("exec: %w", err)
			}
			return printResult(cmd.OutOrStdout(), rs)
		},
	}

	flags.register(cmd, cfg)
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for the result")
	return cmd
}

// printResult writes rs as a tab-aligned table followed by a row count.
func printResult(out io.Writer, rs *database.ResultSet) error {
	if rs == nil {
		_, err := fmt.Fprintln(out, "OK")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(rs.Columns, "\t"))
	for _, row := range rs.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatValue(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "(%d rows)\n", rs.RowCount())
	return err
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
