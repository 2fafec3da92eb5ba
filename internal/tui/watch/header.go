package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState tracks dispatcher health from /healthz polling.
type HealthState struct {
	Status         string
	Version        string
	UptimeSeconds  int64
	Worker         string
	Processed      int64
	QueueDepth     int
	HistoryEnabled bool
	Executions     int64
	Connected      bool
	LastCheck      time.Time
}

func renderHeader(health HealthState, beat heartbeat, act activity, theme Theme, width int) string {
	innerWidth := width - 4

	var statusText string
	switch {
	case !health.Connected:
		statusText = theme.Failed.Render("CONNECTING")
	case health.Worker == "stopped":
		statusText = theme.Idle.Render("STOPPED")
	case health.Status != "ok" && health.Status != "":
		statusText = theme.Failed.Render("DEGRADED")
	default:
		statusText = theme.OK.Render("LISTENING")
	}

	uptime := formatDuration(time.Duration(health.UptimeSeconds) * time.Second)

	lastEventStr := "never"
	if !act.last.IsZero() {
		ago := time.Since(act.last).Round(time.Second)
		lastEventStr = fmt.Sprintf("%s ago", ago)
		if act.lastFailed {
			lastEventStr = theme.Failed.Render(lastEventStr)
		}
	}

	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := fmt.Sprintf(" KNOCK WATCH %s", theme.Highlight.Render(beat.String()))
	if health.Version != "" {
		titleText += theme.Dim.Render(" " + health.Version)
	}

	pad := innerWidth - lipgloss.Width(titleText) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	history := "off"
	if health.HistoryEnabled {
		history = fmt.Sprintf("%d", health.Executions)
	}
	statsLine := fmt.Sprintf(" %s  up %s  Worker: %s  Processed: %d  Queue: %s  History: %s",
		statusText,
		uptime,
		workerStyle(health.Worker, theme).Render(health.Worker),
		health.Processed,
		renderQueue(health.QueueDepth, theme),
		history,
	)

	activityLine := fmt.Sprintf(" Last event: %s  Last minute: %s %d",
		lastEventStr,
		act.render(theme),
		act.total(),
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		statsLine,
		activityLine,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func workerStyle(state string, theme Theme) lipgloss.Style {
	switch state {
	case "running":
		return theme.Busy
	case "idle":
		return theme.OK
	case "stopped":
		return theme.Failed
	default:
		return theme.Idle
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
