package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/mattjoyce/knock/internal/config"
	"github.com/mattjoyce/knock/internal/history"
)

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", 20, "Number of executions to show")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --limit must be positive")
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	store, err := history.Open(ctx, cfg.History.Path)
	if errors.Is(err, history.ErrDisabled) {
		fmt.Fprintln(os.Stderr, "History is disabled: set history.path in the config.")
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open history: %v\n", err)
		return 1
	}
	defer store.Close()

	entries, err := store.Recent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read history: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	if len(entries) == 0 {
		fmt.Println("No executions recorded.")
		return 0
	}
	renderHistory(os.Stdout, entries)
	return 0
}

func renderHistory(w io.Writer, entries []history.Entry) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"Started", "Cmd", "Line", "Status", "Duration", "Output"})

	failed := 0
	for _, e := range entries {
		status := "ok"
		if !e.Succeeded() {
			status = fmt.Sprintf("exit %d", e.ExitStatus)
			failed++
		}
		output := firstLine(e.Stdout)
		if e.Error != "" {
			status = "error"
			output = e.Error
		} else if output == "" {
			output = firstLine(e.Stderr)
		}
		if e.Truncated {
			output += " [truncated]"
		}

		t.AppendRow(table.Row{
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d/%d", e.Command, e.Value),
			e.Line,
			status,
			e.FinishedAt.Sub(e.StartedAt).Round(time.Millisecond),
			output,
		})
	}

	t.AppendSeparator()
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d execution(s)", len(entries)), fmt.Sprintf("%d failed", failed), "", ""})
	t.Render()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " …"
	}
	if len(s) > 60 {
		s = s[:60] + "…"
	}
	return s
}
