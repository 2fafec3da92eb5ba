package watch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/knock/internal/api"
	"github.com/mattjoyce/knock/internal/events"
)

// --- Message types ---

type eventMsg events.Event

type healthMsg api.HealthzResponse

type executionsMsg []api.Execution

type tickMsg time.Time

type errMsg error

type sseDisconnectedMsg struct{}
type reconnectMsg struct{}

// Client talks to the knock status API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client for the API at baseURL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *Client) newRequest(path string) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) getJSON(path string, out any) error {
	req, err := c.newRequest(path)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return fmt.Errorf("GET %s: %s", path, e.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Health fetches /healthz.
func (c *Client) Health() (api.HealthzResponse, error) {
	var h api.HealthzResponse
	err := c.getJSON("/healthz", &h)
	return h, err
}

// Executions fetches the limit most recent executions.
func (c *Client) Executions(limit int) ([]api.Execution, error) {
	var resp api.ExecutionsResponse
	if err := c.getJSON(fmt.Sprintf("/executions?limit=%d", limit), &resp); err != nil {
		return nil, err
	}
	return resp.Executions, nil
}

// --- Commands ---

// subscribeToEvents connects to the SSE /events endpoint and feeds events
// into ch. Returns sseDisconnectedMsg when the connection drops.
func subscribeToEvents(c *Client, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		req, err := c.newRequest("/events")
		if err != nil {
			return errMsg(err)
		}

		// The stream has no deadline.
		resp, err := (&http.Client{}).Do(req)
		if err != nil {
			return sseDisconnectedMsg{}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return errMsg(fmt.Errorf("GET /events: %s", resp.Status))
		}

		readSSE(resp.Body, func(ev events.Event) { ch <- ev })
		return sseDisconnectedMsg{}
	}
}

// readSSE parses a server-sent event stream and calls emit per event.
func readSSE(r io.Reader, emit func(events.Event)) {
	scanner := bufio.NewScanner(r)

	var (
		id   int64
		typ  string
		data string
	)
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if data != "" {
				emit(events.Event{ID: id, Type: typ, At: time.Now(), Data: json.RawMessage(data)})
			}
			id, typ, data = 0, "", ""
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "id: "):
			if n, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				id = n
			}
		case strings.HasPrefix(line, "event: "):
			typ = line[7:]
		case strings.HasPrefix(line, "data: "):
			data = line[6:]
		}
	}
}

// receiveNextEvent waits for the next event from the channel.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

func fetchHealth(c *Client) tea.Cmd {
	return func() tea.Msg {
		h, err := c.Health()
		if err != nil {
			return errMsg(err)
		}
		return healthMsg(h)
	}
}

func fetchExecutions(c *Client, limit int) tea.Cmd {
	return func() tea.Msg {
		rows, err := c.Executions(limit)
		if err != nil {
			return errMsg(err)
		}
		return executionsMsg(rows)
	}
}
