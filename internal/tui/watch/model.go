package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/knock/internal/events"
)

const (
	pollInterval   = 2 * time.Second
	executionLimit = 20
	eventLogSize   = 50
)

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	client *Client

	width  int
	height int

	health     HealthState
	executions table.Model
	execCount  int
	eventLog   []events.Event

	beat     heartbeat
	activity activity
	theme    Theme

	hubEvents chan events.Event

	lastError string
}

// New creates a new watch TUI model for the API at apiURL.
func New(apiURL, token string) *Model {
	return &Model{
		client:     NewClient(apiURL, token),
		executions: newExecutionsTable(),
		eventLog:   make([]events.Event, 0),
		hubEvents:  make(chan events.Event, 100),
		theme:      NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.client, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		fetchHealth(m.client),
		fetchExecutions(m.client, executionLimit),
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, tea.Batch(fetchHealth(m.client), fetchExecutions(m.client, executionLimit))
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.executions.SetWidth(m.width - 6)

	case tickMsg:
		m.beat.beat()
		m.activity.advance(time.Time(msg))
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)

		// Newest first.
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > eventLogSize {
			m.eventLog = m.eventLog[:eventLogSize]
		}
		m.activity.record(time.Now(), failed(e))
		m.health.Connected = true
		m.lastError = ""

		cmds := []tea.Cmd{receiveNextEvent(m.hubEvents)}
		if e.Type == events.CommandFinished {
			cmds = append(cmds, fetchExecutions(m.client, executionLimit))
		}
		return m, tea.Batch(cmds...)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.Version = msg.Version
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.Worker = msg.Worker
		m.health.Processed = msg.Processed
		m.health.QueueDepth = msg.QueueDepth
		m.health.HistoryEnabled = msg.HistoryEnabled
		m.health.Executions = msg.Executions
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""

		return m, tea.Tick(pollInterval, func(time.Time) tea.Msg {
			return fetchHealth(m.client)()
		})

	case executionsMsg:
		m.execCount = len(msg)
		m.executions.SetRows(executionRows(msg, m.theme))
		return m, nil

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		// The pending receiveNextEvent keeps reading the same channel.
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.client, m.hubEvents)

	case errMsg:
		m.health.Connected = false
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.client)()
		})
	}

	var cmd tea.Cmd
	m.executions, cmd = m.executions.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to knock..."
	}

	header := renderHeader(m.health, m.beat, m.activity, m.theme, m.width)
	executions := renderExecutions(m.executions, m.execCount, m.theme, m.width)
	eventStream := renderEventStream(m.eventLog, m.theme, m.width)

	var errBar string
	if m.lastError != "" {
		errBar = m.theme.Failed.Render(fmt.Sprintf(" ⚠ %s", m.lastError))
	}

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [r] Refresh • [↑/↓] Scroll executions")

	parts := []string{header, executions, eventStream}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
