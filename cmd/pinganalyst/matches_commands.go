package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pinganalyst/internal/api"
	"pinganalyst/internal/config"
	"pinganalyst/internal/dashboard"
	"pinganalyst/internal/ipc"
	"pinganalyst/internal/progress"
)

func newMatchesCommand(ctx *commandContext) *cobra.Command {
	matchesCmd := &cobra.Command{
		Use:     "matches",
		Aliases: []string{"match"},
		Short:   "Manage matches queued on the daemon",
	}
	matchesCmd.AddCommand(
		newMatchesListCommand(ctx),
		newMatchesShowCommand(ctx),
		newMatchesAddCommand(ctx),
		newMatchesRemoveCommand(ctx),
		newMatchesRetryCommand(ctx),
	)
	return matchesCmd
}

func newMatchesListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := parseFormat(format)
			if err != nil {
				return err
			}
			return ctx.withClient(cmd.Context(), func(client *ipc.Client) error {
				matches, err := client.ListMatches(cmd.Context(), statuses)
				if err != nil {
					return err
				}
				if handled, err := writeStructured(cmd, outFormat, api.MatchListResponse{Matches: matches}); handled || err != nil {
					return err
				}
				if len(matches) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No matches")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderMatchTable(matches))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format: text, json, or yaml")
	return cmd
}

func renderMatchTable(matches []api.Match) string {
	table := make([][]string, 0, len(matches))
	for _, m := range matches {
		table = append(table, []string{
			strconv.FormatInt(m.ID, 10),
			m.FileName,
			titleCase(m.Status),
			progressLabel(m),
			formatDuration(m.DurationSeconds),
			relativeTime(m.UpdatedAt),
		})
	}
	return renderTable(
		[]string{"ID", "File", "Status", "Progress", "Duration", "Updated"},
		table,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func newMatchesShowCommand(ctx *commandContext) *cobra.Command {
	var format string
	var follow bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a match and its dashboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := parseFormat(format)
			if err != nil {
				return err
			}
			id, err := parseMatchID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(cmd.Context(), func(client *ipc.Client) error {
				if follow {
					live := newLiveStatus(cmd.ErrOrStderr())
					err := client.Stream(cmd.Context(), id, func(ev progress.Event) {
						live.update(streamStatusLine(ev))
					})
					live.done()
					if err != nil {
						return notFound(err, id)
					}
				}
				match, err := client.GetMatch(cmd.Context(), id)
				if err != nil {
					return notFound(err, id)
				}
				if handled, err := writeStructured(cmd, outFormat, api.MatchResponse{Match: *match}); handled || err != nil {
					return err
				}
				return renderMatchDetail(cmd, *match)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format: text, json, or yaml")
	cmd.Flags().BoolVarP(&follow, "follow", "F", false, "Stream progress until the match finishes")
	return cmd
}

func streamStatusLine(ev progress.Event) string {
	if ev.ChunksTotal > 0 {
		return fmt.Sprintf("[%d/%d] %s", ev.ChunksDone, ev.ChunksTotal, ev.Message)
	}
	if ev.Message != "" {
		return ev.Message
	}
	return titleCase(ev.Status)
}

func renderMatchDetail(cmd *cobra.Command, m api.Match) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Match %d: %s\n", m.ID, m.FileName)
	fmt.Fprintf(out, "  Status:   %s\n", titleCase(m.Status))
	fmt.Fprintf(out, "  Progress: %s\n", progressLabel(m))
	if msg := strings.TrimSpace(m.Progress.Message); msg != "" {
		fmt.Fprintf(out, "  Message:  %s\n", msg)
	}
	fmt.Fprintf(out, "  Duration: %s\n", formatDuration(m.DurationSeconds))
	fmt.Fprintf(out, "  Source:   %s\n", m.SourcePath)
	fmt.Fprintf(out, "  Updated:  %s\n", relativeTime(m.UpdatedAt))
	if m.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:    %s\n", m.ErrorMessage)
	}
	if m.Analysis == nil {
		return nil
	}
	fmt.Fprintln(out)
	status := ""
	if m.Status != "completed" {
		status = fmt.Sprintf("Partial result: %d of %d segments merged", m.Progress.ChunksDone, m.Progress.ChunksTotal)
	}
	return dashboard.RenderText(out, *m.Analysis, dashboard.TextOptions{
		Status: status,
		Color:  isTerminal(out),
	})
}

func newMatchesAddCommand(ctx *commandContext) *cobra.Command {
	var copyToStaging bool
	var upload bool

	cmd := &cobra.Command{
		Use:   "add <video>...",
		Short: "Queue videos for analysis on the daemon",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd.Context(), func(client *ipc.Client) error {
				for _, arg := range args {
					path, err := config.ExpandPath(arg)
					if err != nil {
						return err
					}
					if abs, err := filepath.Abs(path); err == nil {
						path = abs
					}
					var match *api.Match
					if upload {
						match, err = client.Upload(cmd.Context(), path)
					} else {
						match, err = client.AddFile(cmd.Context(), path, copyToStaging)
					}
					if err != nil {
						return fmt.Errorf("add %s: %w", filepath.Base(path), err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Queued match %d (%s)\n", match.ID, match.FileName)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&copyToStaging, "copy", false, "Copy the video into the staging directory instead of analyzing it in place")
	cmd.Flags().BoolVar(&upload, "upload", false, "Stream the video to the daemon over HTTP")
	return cmd
}

func newMatchesRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>...",
		Short: "Remove matches and their staged videos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseMatchIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(cmd.Context(), func(client *ipc.Client) error {
				for _, id := range ids {
					if err := client.RemoveMatch(cmd.Context(), id); err != nil {
						return notFound(err, id)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed match %d\n", id)
				}
				return nil
			})
		},
	}
}

func newMatchesRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Retry failed matches (all failed matches when no id is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseMatchIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(cmd.Context(), func(client *ipc.Client) error {
				updated, err := client.Retry(cmd.Context(), ids)
				if err != nil {
					return err
				}
				if updated == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No failed matches to retry")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d failed matches\n", updated)
				return nil
			})
		},
	}
}

func parseMatchID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid match id %q", value)
	}
	return id, nil
}

func parseMatchIDs(values []string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	for _, value := range values {
		id, err := parseMatchID(value)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func notFound(err error, id int64) error {
	var apiErr *ipc.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
		return fmt.Errorf("match %d not found", id)
	}
	return err
}
