// Package scheduler runs periodic maintenance tasks, such as history
// pruning, alongside the dispatcher.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/mattjoyce/knock/internal/events"
)

// Task is a unit of periodic work.
type Task struct {
	Name string
	// Every is the base interval between runs. Tasks with Every <= 0 are
	// rejected by New.
	Every time.Duration
	// Jitter adds a random delay in [0, Jitter) to each interval.
	Jitter time.Duration
	Run    func(ctx context.Context) error
}

// ErrInvalidTask is returned by New for a task without a name, run
// function or positive interval.
var ErrInvalidTask = errors.New("invalid task")

// Scheduler runs each task once at Start and then on its interval until
// Stop is called or the context is cancelled.
type Scheduler struct {
	tasks  []Task
	events events.Publisher
	logger *slog.Logger
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func New(tasks []Task, pub events.Publisher, logger *slog.Logger) (*Scheduler, error) {
	for _, t := range tasks {
		if t.Name == "" || t.Run == nil || t.Every <= 0 {
			return nil, ErrInvalidTask
		}
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		tasks:  tasks,
		events: pub,
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// Start launches one loop per task and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting scheduler", "tasks", len(s.tasks))
	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.taskLoop(ctx, t)
	}
}

// Stop ends every task loop and waits for a running task to return.
// It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.logger.Debug("scheduler stopped")
}

func (s *Scheduler) taskLoop(ctx context.Context, t Task) {
	defer s.wg.Done()

	s.runTask(ctx, t)

	timer := time.NewTimer(calculateJitteredInterval(t.Every, t.Jitter))
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.runTask(ctx, t)
			timer.Reset(calculateJitteredInterval(t.Every, t.Jitter))
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context, t Task) {
	start := time.Now()
	err := t.Run(ctx)
	elapsed := time.Since(start)

	data := map[string]any{
		"task":        t.Name,
		"duration_ms": elapsed.Milliseconds(),
	}
	if err != nil {
		data["error"] = err.Error()
		s.logger.Warn("scheduled task failed", "task", t.Name, "error", err)
	} else {
		s.logger.Debug("scheduled task ran", "task", t.Name, "duration", elapsed)
	}
	s.events.Publish(events.TaskRan, data)
}

func calculateJitteredInterval(baseInterval, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return baseInterval
	}
	return baseInterval + time.Duration(rand.Int63n(jitter.Nanoseconds()))
}
