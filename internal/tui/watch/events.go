package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/knock/internal/events"
)

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		eventsText,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case events.CommandFinished:
		typeStyle = theme.OK
		if failed(e) {
			typeStyle = theme.Failed
		}
	case events.CommandStarted:
		typeStyle = theme.Busy
	case events.FrameDropped, events.CommandMissing:
		typeStyle = theme.Dim
	case events.ShutdownRequested, events.WorkerStopped:
		typeStyle = theme.Failed
	case events.TaskRan:
		typeStyle = theme.Dim
		if failed(e) {
			typeStyle = theme.Failed
		}
	default:
		typeStyle = theme.Highlight
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-18s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, typeName, extractEventDesc(e))
}

type eventData struct {
	Peer       string `json:"peer"`
	Task       string `json:"task"`
	Valid      *bool  `json:"valid"`
	Command    *int   `json:"command"`
	Value      *int   `json:"value"`
	Line       string `json:"line"`
	ExitStatus *int   `json:"exit_status"`
	Error      string `json:"error"`
	DurationMS int64  `json:"duration_ms"`
}

func failed(e events.Event) bool {
	var d eventData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return false
	}
	return d.Error != "" || (d.ExitStatus != nil && *d.ExitStatus != 0)
}

func extractEventDesc(e events.Event) string {
	var d eventData
	_ = json.Unmarshal(e.Data, &d)

	var parts []string
	if d.Peer != "" {
		parts = append(parts, d.Peer)
	}
	if d.Task != "" {
		parts = append(parts, d.Task)
	}
	if d.Command != nil {
		code := fmt.Sprintf("%d/%d", *d.Command, deref(d.Value))
		if d.Valid != nil && !*d.Valid {
			code += " (malformed)"
		}
		parts = append(parts, code)
	}
	if d.Line != "" {
		parts = append(parts, fmt.Sprintf("%q", d.Line))
	}
	if d.ExitStatus != nil {
		parts = append(parts, fmt.Sprintf("exit=%d", *d.ExitStatus))
	}
	if d.DurationMS > 0 {
		parts = append(parts, fmt.Sprintf("%dms", d.DurationMS))
	}
	if d.Error != "" {
		parts = append(parts, d.Error)
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}
	return strings.Join(parts, " ")
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
