package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/knock/internal/api"
)

func newExecutionsTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Time", Width: 8},
			{Title: "Cmd", Width: 5},
			{Title: "Line", Width: 40},
			{Title: "Exit", Width: 5},
			{Title: "Duration", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func executionRows(execs []api.Execution, theme Theme) []table.Row {
	rows := make([]table.Row, 0, len(execs))
	for _, e := range execs {
		status := theme.OK.Render("●")
		exit := fmt.Sprintf("%d", e.ExitStatus)
		if e.Error != "" {
			status = theme.Failed.Render("∅")
			exit = "-"
		} else if e.ExitStatus != 0 {
			status = theme.Failed.Render("●")
		}

		rows = append(rows, table.Row{
			status,
			e.StartedAt.Local().Format("15:04:05"),
			fmt.Sprintf("%d/%d", e.Command, e.Value),
			e.Line,
			exit,
			(time.Duration(e.DurationMS) * time.Millisecond).String(),
		})
	}
	return rows
}

func renderExecutions(t table.Model, count int, theme Theme, width int) string {
	title := theme.Title.Render("RECENT EXECUTIONS")
	body := t.View()
	if count == 0 {
		body = theme.Dim.Render("  No executions recorded")
	}
	return theme.Border.Width(width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, body),
	)
}
