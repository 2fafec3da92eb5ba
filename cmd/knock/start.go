package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattjoyce/knock/internal/api"
	"github.com/mattjoyce/knock/internal/commands"
	"github.com/mattjoyce/knock/internal/config"
	"github.com/mattjoyce/knock/internal/dispatch"
	"github.com/mattjoyce/knock/internal/events"
	"github.com/mattjoyce/knock/internal/executor"
	"github.com/mattjoyce/knock/internal/history"
	"github.com/mattjoyce/knock/internal/listener"
	"github.com/mattjoyce/knock/internal/lock"
	"github.com/mattjoyce/knock/internal/log"
	"github.com/mattjoyce/knock/internal/queue"
	"github.com/mattjoyce/knock/internal/scheduler"
)

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(log.Options{Debug: cfg.Debug, Format: cfg.LogFormat})
	logger := log.WithComponent("main")
	logger.Info("knock starting", "version", version, "config", cfg.SourcePath)

	pidLock, err := lock.AcquirePIDLock(cfg.LockPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to acquire lock: %v\n", err)
		return 1
	}
	defer pidLock.Release()
	logger.Debug("acquired PID lock", "path", pidLock.Path())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runDaemon(ctx, cfg, nil); err != nil {
		fmt.Fprintf(os.Stderr, "knock: %v\n", err)
		return 1
	}
	logger.Info("knock stopped")
	return 0
}

// runDaemon wires the queue, worker, listener and optional history and API,
// then blocks until a shutdown frame arrives or ctx is cancelled. ready, when
// non-nil, receives the bound control address once the listener is up.
func runDaemon(ctx context.Context, cfg *config.Config, ready func(addr string)) error {
	logger := log.WithComponent("main")
	hub := events.NewHub(256)

	workerOpts := []dispatch.Option{
		dispatch.WithEvents(hub),
		dispatch.WithLogger(log.WithComponent("worker")),
	}

	store, err := history.Open(ctx, cfg.History.Path)
	switch {
	case errors.Is(err, history.ErrDisabled):
		logger.Debug("history disabled")
	case err != nil:
		return fmt.Errorf("open history: %w", err)
	default:
		defer store.Close()
		workerOpts = append(workerOpts, dispatch.WithRecorder(store))

		sched, err := scheduler.New([]scheduler.Task{{
			Name:   "history.prune",
			Every:  cfg.History.PruneInterval,
			Jitter: cfg.History.PruneInterval / 10,
			Run: func(ctx context.Context) error {
				n, err := store.Prune(ctx, cfg.History.Retention)
				if n > 0 {
					logger.Debug("pruned history", "removed", n)
				}
				return err
			},
		}}, hub, log.WithComponent("scheduler"))
		if err != nil {
			return fmt.Errorf("history scheduler: %w", err)
		}
		sched.Start(context.Background())
		// Deferred after store.Close, so it runs first.
		defer sched.Stop()
	}

	table := commands.New(cfg.CommandLists())
	logger.Info("loaded command lists", "commands", table.Len())
	worker := dispatch.New(table, executor.NewShell(cfg.Shell), workerOpts...)
	q, root := queue.New()

	// The worker drains what was queued even after a signal, so it gets its
	// own context.
	workerDone := make(chan error, 1)
	go func() { workerDone <- worker.Run(context.Background(), q) }()

	stopWorker := func() error {
		root.Close()
		err := <-workerDone
		if errors.Is(err, queue.ErrNoSenders) {
			return nil
		}
		return err
	}

	ln, err := listener.Listen(cfg.BindAddress)
	if err != nil {
		_ = stopWorker()
		return err
	}
	logger.Info("listening", "addr", ln.Addr().String())
	if ready != nil {
		ready(ln.Addr().String())
	}

	apiCtx, cancelAPI := context.WithCancel(context.Background())
	defer cancelAPI()
	// Stays nil, and never ready in the select below, when the API is off.
	var apiDone chan error
	if cfg.API.Enabled {
		apiDone = make(chan error, 1)
		var reader api.HistoryReader
		if store != nil {
			reader = store
		}
		srv := api.New(api.Config{
			Listen:  cfg.API.Listen,
			Token:   cfg.API.Token,
			Version: version,
		}, worker, q, reader, hub, log.WithComponent("api"))
		go func() { apiDone <- srv.Start(apiCtx) }()
	}

	srv := listener.New(root,
		listener.WithReadTimeout(cfg.ReadTimeout),
		listener.WithEvents(hub),
		listener.WithLogger(log.WithComponent("listener")),
	)
	serveDone := make(chan error, 1)
	go func() { serveDone <- srv.Serve(ln) }()

	var serveErr error
	select {
	case serveErr = <-serveDone:
	case <-ctx.Done():
		logger.Info("received shutdown signal")
		_ = ln.Close()
		serveErr = <-serveDone
		if errors.Is(serveErr, net.ErrClosed) {
			serveErr = nil
		}
	case err := <-apiDone:
		logger.Error("status API failed", "error", err)
		apiDone = nil
		_ = ln.Close()
		<-serveDone
		serveErr = err
	}

	workerErr := stopWorker()
	cancelAPI()
	if apiDone != nil {
		<-apiDone
	}

	return errors.Join(serveErr, workerErr)
}
