package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/knock/internal/config"
	"github.com/mattjoyce/knock/internal/history"
	"github.com/mattjoyce/knock/internal/protocol"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion := version
	origCommit := gitCommit
	origBuildDate := buildDate

	version = v
	gitCommit = commit
	buildDate = built

	t.Cleanup(func() {
		version = origVersion
		gitCommit = origCommit
		buildDate = origBuildDate
	})
}

// writeConfig writes body to dir/config.yaml and returns the path.
func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunVersionJSON(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "abcdef1234567890", "2026-01-02T03:04:05Z")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"version", "--json"})
	})
	require.Equal(t, 0, code)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, "1.2.3", info["version"])
}

func TestRunVersionText(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "abcdef1234567890", "2026-01-02T03:04:05Z")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"version"})
	})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "1.2.3")
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"frobnicate"})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "frobnicate")
}

func TestRunCLINoArgsPrintsUsage(t *testing.T) {
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI(nil)
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout+stderr, "Usage")
}

func TestRunSendValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"nothing to send", []string{"--addr", "127.0.0.1:1"}, "Usage"},
		{"raw and command", []string{"--addr", "127.0.0.1:1", "--raw", "00", "--command", "1"}, "not both"},
		{"command out of range", []string{"--addr", "127.0.0.1:1", "--command", "256"}, "0-255"},
		{"value out of range", []string{"--addr", "127.0.0.1:1", "--command", "1", "--value", "300"}, "0-255"},
		{"bad hex", []string{"--addr", "127.0.0.1:1", "--raw", "zz"}, "Invalid --raw"},
		{"raw too long", []string{"--addr", "127.0.0.1:1", "--raw", "000000000000000000"}, "Invalid --raw"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := captureOutputWithExitCode(t, func() int {
				return runSend(tt.args)
			})
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr, tt.want)
		})
	}
}

func TestRunSendNoConfigNoAddr(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runSend([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "--command", "1"})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "no --addr given")
}

func TestSendFrameConnectionRefused(t *testing.T) {
	// Port 1 on loopback is essentially never listening.
	err := sendFrame("127.0.0.1:1", []byte{0}, 500*time.Millisecond)
	assert.Error(t, err)
}

// startDaemon runs runDaemon in the background and returns the bound address
// and a channel carrying its result.
func startDaemon(t *testing.T, ctx context.Context, cfg *config.Config) (string, <-chan error) {
	t.Helper()

	addrCh := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- runDaemon(ctx, cfg, func(addr string) { addrCh <- addr })
	}()

	select {
	case addr := <-addrCh:
		return addr, done
	case err := <-done:
		t.Fatalf("runDaemon exited before listening: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("runDaemon did not start listening")
	}
	return "", nil
}

func waitDaemon(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("runDaemon did not return")
		return nil
	}
}

func send(t *testing.T, addr string, cmd, value byte) {
	t.Helper()
	frame := protocol.Encode(protocol.Message{Command: cmd, Value: value})
	require.NoError(t, sendFrame(addr, frame[:], time.Second))
}

func daemonConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	out := filepath.Join(dir, "out.txt")
	body := fmt.Sprintf(`
bind_address: 127.0.0.1:0
read_timeout: 2s
commands_1:
  - echo one >> %[1]s
  - echo two >> %[1]s
commands_2:
  - echo three >> %[1]s
commands_3: []
commands_4: []
history:
  path: %[2]s
`, out, filepath.Join(dir, "history.db"))

	cfg, err := config.Parse([]byte(body))
	require.NoError(t, err)
	return cfg
}

func TestRunDaemonExecutesFramesInOrderAndStopsOnShutdown(t *testing.T) {
	dir := t.TempDir()
	cfg := daemonConfig(t, dir)

	addr, done := startDaemon(t, context.Background(), cfg)

	send(t, addr, 1, 1)
	send(t, addr, 2, 0)
	send(t, addr, 1, 9) // out of range, ignored
	send(t, addr, 1, 0)
	send(t, addr, protocol.CommandShutdown, 0)

	require.NoError(t, waitDaemon(t, done))

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "two\nthree\none\n", string(data))
}

func TestRunDaemonIgnoresMalformedShutdown(t *testing.T) {
	dir := t.TempDir()
	cfg := daemonConfig(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr, done := startDaemon(t, ctx, cfg)

	// 255 with a broken header decodes to a no-op.
	require.NoError(t, sendFrame(addr, []byte{0x01, 0x00, 0x00, 0xFF, 0x00, 0xFF, 0xFF, 0xFF}, time.Second))
	send(t, addr, 1, 0)

	select {
	case err := <-done:
		t.Fatalf("daemon stopped on a malformed shutdown frame: %v", err)
	case <-time.After(300 * time.Millisecond):
	}

	send(t, addr, protocol.CommandShutdown, 0)
	require.NoError(t, waitDaemon(t, done))

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one\n", string(data))
}

func TestRunDaemonStopsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	cfg := daemonConfig(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	addr, done := startDaemon(t, ctx, cfg)

	send(t, addr, 2, 0)
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "out.txt"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, waitDaemon(t, done))
}

func TestRunDaemonBindError(t *testing.T) {
	cfg := daemonConfig(t, t.TempDir())

	addr, done := startDaemon(t, context.Background(), cfg)
	defer func() {
		send(t, addr, protocol.CommandShutdown, 0)
		_ = waitDaemon(t, done)
	}()

	second := daemonConfig(t, t.TempDir())
	second.BindAddress = addr
	err := runDaemon(context.Background(), second, nil)
	assert.Error(t, err)
}

func TestRunHistoryAfterDaemon(t *testing.T) {
	dir := t.TempDir()
	cfg := daemonConfig(t, dir)

	addr, done := startDaemon(t, context.Background(), cfg)
	send(t, addr, 1, 0)
	send(t, addr, 2, 0)
	send(t, addr, protocol.CommandShutdown, 0)
	require.NoError(t, waitDaemon(t, done))

	configPath := writeConfig(t, dir, fmt.Sprintf(`
bind_address: 127.0.0.1:7001
commands_1: ["true"]
history:
  path: %s
`, filepath.Join(dir, "history.db")))

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runHistory([]string{"--config", configPath, "--limit", "5"})
	})
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "echo one")
	assert.Contains(t, stdout, "echo three")
	assert.Contains(t, stdout, "2 execution(s)")
	// Newest first.
	assert.Less(t, strings.Index(stdout, "echo three"), strings.Index(stdout, "echo one"))
}

func TestRunHistoryDisabled(t *testing.T) {
	configPath := writeConfig(t, t.TempDir(), `
bind_address: 127.0.0.1:7001
commands_1: ["true"]
`)
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runHistory([]string{"--config", configPath})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "History is disabled")
}

func TestRenderHistoryMarksStatus(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []history.Entry{
		{Command: 1, Value: 0, Line: "uptime", Stdout: "up 3 days", StartedAt: start, FinishedAt: start},
		{Command: 2, Value: 1, Line: "false", ExitStatus: 1, StartedAt: start, FinishedAt: start},
		{Command: 3, Value: 0, Line: "yes", Stdout: "y", Truncated: true, StartedAt: start, FinishedAt: start},
		{Command: 4, Value: 0, Line: "x", ExitStatus: -1, Error: "start sh: not found", StartedAt: start, FinishedAt: start},
	}

	var buf bytes.Buffer
	renderHistory(&buf, entries)
	out := buf.String()

	assert.Contains(t, out, "exit 1")
	assert.Contains(t, out, "y [truncated]")
	assert.Contains(t, out, "start sh: not found")
	assert.Contains(t, out, "4 execution(s)")
	assert.Contains(t, out, "2 failed")
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "hello", firstLine("  hello\n"))
	assert.Equal(t, "a …", firstLine("a\nb\nc"))
	assert.Len(t, []rune(firstLine(strings.Repeat("x", 100))), 61)
}

func TestRunConfigCheckExitCodes(t *testing.T) {
	full := `
bind_address: 127.0.0.1:7001
commands_1: ["true"]
commands_2: ["true"]
commands_3: ["true"]
commands_4: ["true"]
`
	tests := []struct {
		name string
		body string
		want int
	}{
		{"valid", full, 0},
		{"warnings", "bind_address: 0.0.0.0:7001\ncommands_1: [\"true\"]\n", 2},
		{"missing shell", full + "shell: /nonexistent/knock-shell\n", 1},
		{"load error", "bind_address: nope\n", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, t.TempDir(), tt.body)
			code, _, _ := captureOutputWithExitCode(t, func() int {
				return runCLI([]string{"config", "check", "--config", configPath})
			})
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestRunConfigCheckJSONLoadError(t *testing.T) {
	configPath := writeConfig(t, t.TempDir(), "bind_address: nope\n")
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", configPath, "--json"})
	})
	assert.Equal(t, 1, code)

	var out struct {
		Valid  bool `json:"valid"`
		Errors []struct {
			Category string `json:"category"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.False(t, out.Valid)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "load", out.Errors[0].Category)
}

func TestDoctorAliasMatchesConfigCheck(t *testing.T) {
	configPath := writeConfig(t, t.TempDir(), "bind_address: 0.0.0.0:7001\ncommands_1: [\"true\"]\n")
	code, _, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"doctor", "--config", configPath})
	})
	assert.Equal(t, 2, code)
}

func TestRunConfigLock(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, "bind_address: 127.0.0.1:7001\ncommands_1: [\"true\"]\n")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runConfigLock([]string{"--config", configPath, "--dry-run"})
	})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Dry-run")
	_, err := os.Stat(filepath.Join(dir, ".checksums"))
	assert.True(t, os.IsNotExist(err))

	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runConfigLock([]string{"--config", configPath})
	})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Locked")
	_, err = os.Stat(filepath.Join(dir, ".checksums"))
	require.NoError(t, err)

	// A locked config that changes no longer loads.
	require.NoError(t, os.WriteFile(configPath, []byte("bind_address: 127.0.0.1:7002\ncommands_1: [\"true\"]\n"), 0o644))
	_, err = config.Load(configPath)
	assert.Error(t, err)
}

func TestRunConfigNounUnknownAction(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigNoun([]string{"explode"})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown config action")
}

func TestRunConfigGetAndSet(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, "bind_address: 127.0.0.1:7001\ncommands_1: [\"true\"]\n")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "get", "--config", configPath, "bind_address"})
	})
	require.Equal(t, 0, code)
	assert.Equal(t, "127.0.0.1:7001\n", stdout)

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "set", "--config", configPath, "commands_1.1=uptime"})
	})
	require.Equal(t, 0, code, stderr)

	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "get", "--config", configPath, "--json", "list:1"})
	})
	require.Equal(t, 0, code)
	var list []string
	require.NoError(t, json.Unmarshal([]byte(stdout), &list))
	assert.Equal(t, []string{"true", "uptime"}, list)
}

func TestRunConfigSetRejectsInvalid(t *testing.T) {
	configPath := writeConfig(t, t.TempDir(), "bind_address: 127.0.0.1:7001\n")

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigSet([]string{"--config", configPath, "bind_address=nope"})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "validation failed")

	code, _, stderr = captureOutputWithExitCode(t, func() int {
		return runConfigSet([]string{"--config", configPath, "no-equals-sign"})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "expected <path>=<value>")
}
