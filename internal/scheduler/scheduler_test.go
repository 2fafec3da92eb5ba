package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/knock/internal/events"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []map[string]any
}

func (r *recordingPublisher) Publish(eventType string, data any) {
	if eventType != events.TaskRan {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, data.(map[string]any))
}

func (r *recordingPublisher) snapshot() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]any(nil), r.events...)
}

func TestCalculateJitteredInterval(t *testing.T) {
	tests := []struct {
		name         string
		baseInterval time.Duration
		jitter       time.Duration
	}{
		{name: "No Jitter", baseInterval: 1 * time.Minute, jitter: 0},
		{name: "Positive Jitter", baseInterval: 5 * time.Minute, jitter: 30 * time.Second},
		{name: "Large Jitter", baseInterval: 1 * time.Hour, jitter: 15 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for range 100 {
				jittered := calculateJitteredInterval(tt.baseInterval, tt.jitter)
				if tt.jitter == 0 {
					assert.Equal(t, tt.baseInterval, jittered)
				} else {
					assert.GreaterOrEqual(t, jittered, tt.baseInterval)
					assert.Less(t, jittered, tt.baseInterval+tt.jitter)
				}
			}
		})
	}
}

func TestNewRejectsInvalidTasks(t *testing.T) {
	run := func(context.Context) error { return nil }
	tests := []struct {
		name string
		task Task
	}{
		{"no name", Task{Every: time.Second, Run: run}},
		{"no run", Task{Name: "x", Every: time.Second}},
		{"zero interval", Task{Name: "x", Run: run}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New([]Task{tt.task}, nil, nil)
			assert.ErrorIs(t, err, ErrInvalidTask)
		})
	}
}

func TestSchedulerRunsImmediatelyAndOnInterval(t *testing.T) {
	var runs atomic.Int32
	pub := &recordingPublisher{}

	s, err := New([]Task{{
		Name:  "count",
		Every: 20 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}}, pub, nil)
	require.NoError(t, err)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	stopped := runs.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load(), "task ran after Stop")

	evs := pub.snapshot()
	require.NotEmpty(t, evs)
	assert.Equal(t, "count", evs[0]["task"])
	assert.NotContains(t, evs[0], "error")
}

func TestSchedulerReportsTaskErrors(t *testing.T) {
	pub := &recordingPublisher{}
	s, err := New([]Task{{
		Name:  "broken",
		Every: time.Hour,
		Run:   func(context.Context) error { return errors.New("disk full") },
	}}, pub, nil)
	require.NoError(t, err)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return len(pub.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	s.Stop()

	assert.Equal(t, "disk full", pub.snapshot()[0]["error"])
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	s, err := New([]Task{{
		Name:  "once",
		Every: time.Hour,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}}, nil, nil)
	require.NoError(t, err)

	s.Start(ctx)
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Stop()
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after context cancel")
	}
}
