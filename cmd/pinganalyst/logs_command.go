package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pinganalyst/internal/config"
	"pinganalyst/internal/ipc"
	"pinganalyst/internal/logs"
)

// logSource returns lines after offset, waiting for more when follow is set.
type logSource func(ctx context.Context, offset int64, lines int, follow bool) ([]string, int64, error)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		Long:  "Show the daemon log through the daemon API, or from the log directory when the daemon is not running.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			source := localLogSource(cfg)
			if client, err := ipc.Dial(runCtx, cfg); err == nil {
				source = remoteLogSource(client)
			}
			err = printLogs(runCtx, cmd.OutOrStdout(), source, lines, follow)
			if errors.Is(err, context.Canceled) || runCtx.Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines as they are written")
	return cmd
}

func printLogs(ctx context.Context, w io.Writer, source logSource, lines int, follow bool) error {
	batch, offset, err := source(ctx, -1, lines, false)
	if err != nil {
		return err
	}
	for _, line := range batch {
		fmt.Fprintln(w, line)
	}
	for follow {
		batch, offset, err = source(ctx, offset, 0, true)
		if err != nil {
			return err
		}
		for _, line := range batch {
			fmt.Fprintln(w, line)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

func remoteLogSource(client *ipc.Client) logSource {
	return func(ctx context.Context, offset int64, lines int, follow bool) ([]string, int64, error) {
		resp, err := client.Logs(ctx, ipc.LogQuery{Offset: offset, Lines: lines, Follow: follow})
		if err != nil {
			return nil, offset, err
		}
		return resp.Lines, resp.Offset, nil
	}
}

func localLogSource(cfg *config.Config) logSource {
	path := logs.CurrentPath(cfg.Paths.LogDir)
	return func(ctx context.Context, offset int64, lines int, follow bool) ([]string, int64, error) {
		result, err := logs.Tail(ctx, path, logs.TailOptions{
			Offset: offset,
			Limit:  lines,
			Follow: follow,
			Wait:   5 * time.Second,
		})
		return result.Lines, result.Offset, err
	}
}
