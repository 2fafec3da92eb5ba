package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	case "start":
		if hasHelpFlag(args) {
			printStartHelp()
			return 0
		}
		return runStart(args)
	case "send":
		if hasHelpFlag(args) {
			printSendHelp()
			return 0
		}
		return runSend(args)
	case "shutdown":
		if hasHelpFlag(args) {
			printShutdownHelp()
			return 0
		}
		return runShutdown(args)
	case "config":
		return runConfigNoun(args)
	case "history":
		if hasHelpFlag(args) {
			printHistoryHelp()
			return 0
		}
		return runHistory(args)
	case "watch":
		if hasHelpFlag(args) {
			printWatchHelp()
			return 0
		}
		return runWatch(args)
	case "doctor":
		return runConfigCheck(args)
	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: knock version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("knock %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalized, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalized
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`knock - run preconfigured shell commands on 8-byte TCP frames

Usage:
  knock <command> [flags]

Service:
  start             Run the dispatcher in the foreground

Client:
  send              Send one frame to a running dispatcher
  shutdown          Send the shutdown frame (command 255)

Config Commands:
  config check      Validate configuration and report warnings
  config lock       Record the config file hash in .checksums
  config get        Print a config value by dot path
  config set        Change a config value in place
  doctor            Alias for 'config check'

Observability:
  history           Show recent executions from the history database
  watch             Live TUI backed by the status API

General:
  --version         Show version information
  version           Show version information
  help              Show this help message

Frame layout: 00 00 00 <command> <value> FF FF FF
  command 1-4 selects commands_1..commands_4, value is the index in that list.

Use 'knock <command> --help' for command flags.
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printStartHelp() {
	fmt.Println("Usage: knock start [--config PATH]")
	fmt.Println("Run the dispatcher in the foreground until a shutdown frame or SIGINT/SIGTERM.")
	fmt.Println("PATH may be a file or a directory holding config.yaml (default ./config.yaml).")
}

func printSendHelp() {
	fmt.Println("Usage: knock send [--addr HOST:PORT | --config PATH] --command N --value N")
	fmt.Println("       knock send [--addr HOST:PORT | --config PATH] --raw HEX")
	fmt.Println("Send one frame and close the connection.")
	fmt.Println("")
	fmt.Println("Flags:")
	fmt.Println("  --raw HEX      Send up to 8 raw bytes instead, e.g. \"00 00 00 01 02 ff ff ff\"")
	fmt.Println("  --timeout D    Dial/write timeout (default 5s)")
}

func printShutdownHelp() {
	fmt.Println("Usage: knock shutdown [--addr HOST:PORT | --config PATH]")
	fmt.Println("Ask a running dispatcher to finish queued commands and exit.")
}

func printHistoryHelp() {
	fmt.Println("Usage: knock history [--config PATH] [--limit N] [--json]")
	fmt.Println("Show the most recent executions, newest first.")
}

func printWatchHelp() {
	fmt.Println("Usage: knock watch [--api URL] [--token TOKEN]")
	fmt.Println()
	fmt.Println("Live view of dispatcher health, recent executions and the event stream.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api URL       Status API URL (default: http://127.0.0.1:8090)")
	fmt.Println("  --token TOKEN   API bearer token (or KNOCK_API_TOKEN env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  r                Refresh now")
	fmt.Println("  ↑/↓, k/j         Scroll executions")
}
