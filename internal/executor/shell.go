package executor

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// maxOutputBytes caps the amount of stdout/stderr captured per stream.
const maxOutputBytes = 64 * 1024

// DefaultShell is used when a Shell has no Path.
const DefaultShell = "sh"

// Result describes a finished child process.
type Result struct {
	Command    string
	Stdout     string
	Stderr     string
	ExitStatus int
	Truncated  bool
	StartedAt  time.Time
	Duration   time.Duration
}

// Success reports whether the child exited with status 0.
func (r Result) Success() bool {
	return r.ExitStatus == 0
}

// Shell runs command lines as `<Path> -c <line>`.
type Shell struct {
	Path string
}

// NewShell returns a Shell using path, or DefaultShell when path is empty.
func NewShell(path string) *Shell {
	if path == "" {
		path = DefaultShell
	}
	return &Shell{Path: path}
}

// Run spawns the shell, waits for it and returns what it produced.
// Only failures to start or wait for the process are returned as errors.
func (s *Shell) Run(line string) (Result, error) {
	path := s.Path
	if path == "" {
		path = DefaultShell
	}

	cmd := exec.Command(path, "-c", line)

	stdout := &cappedBuffer{limit: maxOutputBytes}
	stderr := &cappedBuffer{limit: maxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	res := Result{Command: line, StartedAt: time.Now()}

	if err := cmd.Start(); err != nil {
		return res, fmt.Errorf("start %s: %w", path, err)
	}

	err := cmd.Wait()
	res.Duration = time.Since(res.StartedAt)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.Truncated = stdout.truncated || stderr.truncated

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return res, fmt.Errorf("wait for %s: %w", path, err)
		}
		res.ExitStatus = exitErr.ExitCode()
	}
	return res, nil
}

// cappedBuffer keeps the first limit bytes written to it and silently drops
// the rest, so a chatty child never blocks on a full pipe.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = len(p) > 0 || b.truncated
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
