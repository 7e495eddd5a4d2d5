package main

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"pinganalyst/internal/api"
	"pinganalyst/internal/daemonctl"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startDiagnostic bool
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the pinganalyst daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), ctx.configValue(), exe,
				daemonLaunchOptions(ctx, startDiagnostic), 10*time.Second)
			if err != nil {
				return err
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			}
			return nil
		},
	}
	startCmd.Flags().BoolVar(&startDiagnostic, "diagnostic", false, "Enable diagnostic mode with separate DEBUG logs")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the pinganalyst daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.configValue(), 10*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var restartDiagnostic bool
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the pinganalyst daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.Restart(cmd.Context(), ctx.configValue(), exe,
				daemonLaunchOptions(ctx, restartDiagnostic), 10*time.Second, 10*time.Second)
			if err != nil {
				return err
			}
			if result.WasRunning {
				fmt.Fprintln(stdout, "Daemon stopped")
			}
			fmt.Fprintln(stdout, "Daemon restarted")
			return nil
		},
	}
	restartCmd.Flags().BoolVar(&restartDiagnostic, "diagnostic", false, "Enable diagnostic mode with separate DEBUG logs")

	var statusFormat string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and match status",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(statusFormat)
			if err != nil {
				return err
			}
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.configValue())
			if err != nil {
				return err
			}
			if handled, err := writeStructured(cmd, format, snapshot); handled || err != nil {
				return err
			}
			renderStatus(cmd, snapshot)
			return nil
		},
	}
	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", formatText, "Output format: text, json, or yaml")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func renderStatus(cmd *cobra.Command, snapshot *daemonctl.StatusSnapshot) {
	p := newStatusPrinter(cmd.OutOrStdout())

	p.section("Daemon")
	if d := snapshot.Daemon; d != nil {
		p.line("Daemon", statusOK, fmt.Sprintf("running (pid %d)", d.PID))
		if d.Workflow.Running {
			p.line("Workflow", statusOK, "running")
		} else {
			p.line("Workflow", statusWarn, "stopped")
		}
		p.line("Staging", statusInfo, fmt.Sprintf("%d files (%s)", d.StagingFiles, humanize.Bytes(uint64(d.StagingBytes))))
		if lastErr := strings.TrimSpace(d.Workflow.LastError); lastErr != "" {
			p.line("Last error", statusWarn, lastErr)
		}
	} else {
		p.line("Daemon", statusInfo, "not running")
	}

	p.section("System Checks")
	for _, check := range snapshot.Checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		p.line(check.Name, kind, check.Detail)
	}

	p.section("Dependencies")
	writeDependencies(p, snapshot.Dependencies)

	p.section("Matches")
	rows := buildMatchStatusRows(snapshot.MatchStats)
	if len(rows) == 0 {
		p.text("No matches")
		return
	}
	p.text(renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func writeDependencies(p *statusPrinter, deps []api.DependencyStatus) {
	var missing []string
	for _, dep := range deps {
		switch {
		case dep.Available && dep.Command != "":
			p.line(dep.Name, statusOK, "Ready (command: "+dep.Command+")")
		case dep.Available:
			p.line(dep.Name, statusOK, "Ready")
		default:
			detail := cmp.Or(strings.TrimSpace(dep.Detail), "not available")
			kind := statusError
			if dep.Optional {
				kind = statusWarn
			}
			p.line(dep.Name, kind, detail)
			missing = append(missing, dep.Name)
		}
	}
	if len(missing) > 0 {
		p.line("Missing dependencies", statusWarn, strings.Join(missing, ", "))
	}
}

// buildMatchStatusRows lists non-zero statuses in pipeline order, then any
// unknown statuses alphabetically.
func buildMatchStatusRows(counts map[string]int) [][]string {
	order := []string{"pending", "extracting", "analyzing", "completed", "failed"}
	var rows [][]string
	for _, status := range order {
		if n := counts[status]; n > 0 {
			rows = append(rows, []string{titleCase(status), fmt.Sprint(n)})
		}
	}
	var extra []string
	for status, n := range counts {
		if n > 0 && !slices.Contains(order, status) {
			extra = append(extra, status)
		}
	}
	slices.Sort(extra)
	for _, status := range extra {
		rows = append(rows, []string{titleCase(status), fmt.Sprint(counts[status])})
	}
	return rows
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext, diagnostic bool) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		ConfigPath: ctx.configFlagValue(),
		Diagnostic: diagnostic,
	}
}
