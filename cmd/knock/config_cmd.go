package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/knock/internal/config"
	"github.com/mattjoyce/knock/internal/doctor"
)

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "get":
		if hasHelpFlag(actionArgs) {
			printConfigGetHelp()
			return 0
		}
		return runConfigGet(actionArgs)
	case "set":
		if hasHelpFlag(actionArgs) {
			printConfigSetHelp()
			return 0
		}
		return runConfigSet(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: knock config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock, get, set")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: knock config check [--config PATH] [--json]")
	fmt.Println("Validate the configuration, its integrity hash and its command lists.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  Valid")
	fmt.Println("  1  Invalid, or the config could not be loaded")
	fmt.Println("  2  Valid with warnings")
}

func printConfigLockHelp() {
	fmt.Println("Usage: knock config lock [--config PATH] [--dry-run]")
	fmt.Println("Record the BLAKE3 hash of the config file in .checksums next to it.")
	fmt.Println("Once locked, 'knock start' refuses a config whose hash no longer matches.")
}

func printConfigGetHelp() {
	fmt.Println("Usage: knock config get [--config PATH] [--json] <path>")
	fmt.Println("Print a config value. Paths use dots and list indexes, e.g. api.listen")
	fmt.Println("or commands_2.0. 'list:N' prints command list N.")
}

func printConfigSetHelp() {
	fmt.Println("Usage: knock config set [--config PATH] [--dry-run] <path>=<value>")
	fmt.Println("Change a config value in place. The result must still validate.")
	fmt.Println("An index equal to a list's length appends, e.g. commands_1.3=uptime.")
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	result, code, err := validateConfigAtPath(*configPath)
	if err != nil {
		if *jsonOut {
			result = &doctor.Result{
				Valid:  false,
				Errors: []doctor.Issue{{Category: "load", Message: err.Error()}},
			}
			out, _ := doctor.FormatJSON(result)
			fmt.Println(out)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(out)
		return code
	}

	fmt.Print(doctor.FormatHuman(result))
	return code
}

func validateConfigAtPath(configPath string) (*doctor.Result, int, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, 1, err
	}
	result := doctor.New(cfg).Validate()
	if !result.Valid {
		return result, 1, nil
	}
	if len(result.Warnings) > 0 {
		return result, 2, nil
	}
	return result, 0, nil
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	dryRun := fs.Bool("dry-run", false, "Show the hash without writing .checksums")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	report, err := config.Lock(*configPath, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lock failed: %v\n", err)
		return 1
	}

	if *dryRun {
		fmt.Printf("Dry-run: would record %s\n", report.ConfigPath)
	} else {
		fmt.Printf("Locked %s\n", report.ConfigPath)
	}
	fmt.Printf("  blake3: %s\n", report.Hash)
	fmt.Printf("  manifest: %s\n", report.ChecksumPath)
	return 0
}

func runConfigGet(args []string) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: knock config get [--config PATH] [--json] <path>")
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	val, err := cfg.GetPath(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(val, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	switch v := val.(type) {
	case string, bool, int, float64:
		fmt.Println(v)
	default:
		data, err := yaml.Marshal(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render YAML: %v\n", err)
			return 1
		}
		fmt.Print(string(data))
	}
	return 0
}

func runConfigSet(args []string) int {
	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	dryRun := fs.Bool("dry-run", false, "Validate the change without writing it")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: knock config set [--config PATH] [--dry-run] <path>=<value>")
		return 1
	}
	path, value, ok := strings.Cut(fs.Arg(0), "=")
	if !ok || path == "" {
		fmt.Fprintf(os.Stderr, "Error: expected <path>=<value>, got %q\n", fs.Arg(0))
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	if err := cfg.SetPath(path, value, !*dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "Set failed: %v\n", err)
		return 1
	}

	if *dryRun {
		fmt.Printf("Dry-run: %s=%s is valid\n", path, value)
		return 0
	}
	fmt.Printf("Set %s=%s in %s\n", path, value, cfg.SourcePath)
	if manifest, err := config.LoadChecksums(filepath.Dir(cfg.SourcePath)); err == nil && manifest != nil {
		fmt.Println("Config is locked; run 'knock config lock' to record the new hash.")
	}
	return 0
}
