package dashboard

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"pinganalyst/internal/stats"
)

// TextOptions controls terminal rendering.
type TextOptions struct {
	// Title is printed above the tables, usually the video file name.
	Title string
	// Status is an optional progress line such as "Merged segment 2 of 5".
	Status string
	// Color enables ANSI colors.
	Color bool
}

// RenderText writes the dashboard for a as go-pretty tables.
func RenderText(w io.Writer, a stats.Analysis, opts TextOptions) error {
	view := NewView(a)

	var b strings.Builder
	if title := strings.TrimSpace(opts.Title); title != "" {
		b.WriteString(title)
		b.WriteString("\n")
	}
	if status := strings.TrimSpace(opts.Status); status != "" {
		b.WriteString(status)
		b.WriteString("\n")
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	if opts.Color {
		tw.Style().Color.Header = text.Colors{text.Bold, text.FgCyan}
	}
	tw.AppendHeader(table.Row{"Stat", view.Player1, view.Player2})

	for i, section := range view.Sections {
		if i > 0 {
			tw.AppendSeparator()
		}
		title := strings.ToUpper(section.Title)
		tw.AppendRow(table.Row{title, "", ""})
		for _, stat := range section.Stats {
			if stat.PerPlayer() {
				tw.AppendRow(table.Row{
					"  " + stat.Label,
					withNote(stat.Player1, stat.Player1Note),
					withNote(stat.Player2, stat.Player2Note),
				})
				continue
			}
			tw.AppendRow(table.Row{"  " + stat.Label, stat.Value, stat.Value}, table.RowConfig{AutoMerge: true})
		}
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignRight},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignRight},
	})
	b.WriteString(tw.Render())
	b.WriteString("\n")

	if view.Summary != "" {
		b.WriteString("\nSummary\n")
		b.WriteString(wrap(view.Summary, 100))
		b.WriteString("\n")
	}
	for _, in := range view.Insights {
		b.WriteString(fmt.Sprintf("\n%s\n", in.Player))
		if in.Strength != "" {
			b.WriteString(fmt.Sprintf("  Strength: %s\n", in.Strength))
		}
		if in.Weakness != "" {
			b.WriteString(fmt.Sprintf("  Weakness: %s\n", in.Weakness))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderLoadingText writes a one-line loading state.
func RenderLoadingText(w io.Writer, state LoadingState) error {
	_, err := fmt.Fprintf(w, "%s %s\n", state.Title, state.Status)
	return err
}

// RenderFailureText writes the error state.
func RenderFailureText(w io.Writer, state FailureState) error {
	_, err := fmt.Fprintf(w, "%s: %s\n", state.Title, state.Message)
	return err
}

func withNote(value, note string) string {
	if note == "" {
		return value
	}
	return fmt.Sprintf("%s (%s)", value, note)
}

func wrap(s string, width int) string {
	return text.WrapSoft(s, width)
}
