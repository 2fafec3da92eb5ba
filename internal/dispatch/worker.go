package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/knock/internal/commands"
	"github.com/mattjoyce/knock/internal/events"
	"github.com/mattjoyce/knock/internal/history"
	"github.com/mattjoyce/knock/internal/log"
	"github.com/mattjoyce/knock/internal/protocol"
	"github.com/mattjoyce/knock/internal/queue"
)

// State is the worker lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Worker executes queued messages serially.
type Worker struct {
	table    *commands.Table
	exec     Executor
	recorder Recorder
	events   events.Publisher
	logger   *slog.Logger

	state     atomic.Int32
	processed atomic.Int64
}

// Option customizes a Worker.
type Option func(*Worker)

// WithRecorder stores every execution in r.
func WithRecorder(r Recorder) Option {
	return func(w *Worker) { w.recorder = r }
}

// WithEvents publishes worker activity to p.
func WithEvents(p events.Publisher) Option {
	return func(w *Worker) { w.events = p }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// New creates a Worker that owns table for the rest of its life.
func New(table *commands.Table, exec Executor, opts ...Option) *Worker {
	w := &Worker{
		table:  table,
		exec:   exec,
		events: events.Nop{},
		logger: log.WithComponent("dispatch"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State returns the current lifecycle phase.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Processed returns how many messages have been taken off the queue.
func (w *Worker) Processed() int64 {
	return w.processed.Load()
}

// Run consumes src until a shutdown message arrives (returns nil), every
// sender is gone (returns queue.ErrNoSenders) or ctx is done.
func (w *Worker) Run(ctx context.Context, src Source) error {
	w.state.Store(int32(StateRunning))
	defer w.state.Store(int32(StateStopped))

	w.logger.Debug("dispatch worker started")
	defer w.events.Publish(events.WorkerStopped, nil)

	for {
		msg, err := src.Recv(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrNoSenders) {
				w.logger.Debug("error on dispatch queue receive", "error", err)
			}
			return err
		}
		w.processed.Add(1)

		if msg.IsShutdown() {
			w.logger.Debug("shutdown message received, dispatch worker stopping")
			return nil
		}
		w.handle(ctx, msg)
	}
}

func (w *Worker) handle(ctx context.Context, msg protocol.Message) {
	if _, ok := msg.ListIndex(); !ok {
		// No-op and unknown codes.
		return
	}

	line, ok := w.table.Select(msg)
	if !ok {
		w.logger.Debug("no command configured", "command", msg.Command, "value", msg.Value)
		w.events.Publish(events.CommandMissing, commandEvent{Command: msg.Command, Value: msg.Value})
		return
	}

	w.execute(ctx, msg, line)
}

type commandEvent struct {
	Command    byte   `json:"command"`
	Value      byte   `json:"value"`
	Line       string `json:"line,omitempty"`
	ExitStatus *int   `json:"exit_status,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
}

func (w *Worker) execute(ctx context.Context, msg protocol.Message, line string) {
	w.events.Publish(events.CommandStarted, commandEvent{Command: msg.Command, Value: msg.Value, Line: line})

	started := time.Now()
	res, err := w.exec.Run(line)
	finished := time.Now()

	entry := history.Entry{
		Command:    msg.Command,
		Value:      msg.Value,
		Line:       line,
		ExitStatus: res.ExitStatus,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		Truncated:  res.Truncated,
		StartedAt:  started,
		FinishedAt: finished,
	}
	ev := commandEvent{
		Command:    msg.Command,
		Value:      msg.Value,
		Line:       line,
		DurationMS: finished.Sub(started).Milliseconds(),
		Truncated:  res.Truncated,
	}

	if err != nil {
		w.logger.Debug("error running command", "line", line, "error", err)
		entry.ExitStatus = -1
		entry.Error = err.Error()
		ev.Error = err.Error()
	} else {
		logMsg := "ran command"
		if !res.Success() {
			logMsg = "command exited non-zero"
		}
		w.logger.Debug(logMsg,
			"line", line,
			"exit_status", res.ExitStatus,
			"stdout", res.Stdout,
			"stderr", res.Stderr,
			"duration", res.Duration,
		)
		status := res.ExitStatus
		ev.ExitStatus = &status
	}
	w.events.Publish(events.CommandFinished, ev)

	if w.recorder != nil {
		if _, rerr := w.recorder.Record(ctx, entry); rerr != nil {
			w.logger.Debug("failed to record execution", "line", line, "error", rerr)
		}
	}
}
