package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// levelSilent sits above every level the code base logs at, so a logger
// configured with it writes nothing.
const levelSilent = slog.Level(64)

var (
	once   sync.Once
	logger *slog.Logger
)

// Options configures the global logger.
type Options struct {
	// Debug enables diagnostics. When false the logger is silent.
	Debug bool
	// Format is "text" (default) or "json".
	Format string
	// Writer defaults to os.Stdout.
	Writer io.Writer
}

// Setup initializes the global logger. Only the first call has any effect.
func Setup(opts Options) {
	once.Do(func() {
		logger = newLogger(opts)
		slog.SetDefault(logger)
	})
}

func newLogger(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	level := levelSilent
	if opts.Debug {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, hopts)
	default:
		handler = slog.NewTextHandler(w, hopts)
	}
	return slog.New(handler)
}

// Get returns the configured logger, or a silent one if Setup hasn't been called.
func Get() *slog.Logger {
	if logger == nil {
		Setup(Options{})
	}
	return logger
}

// WithComponent returns a logger with the component field set.
func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String("component", name))
}
