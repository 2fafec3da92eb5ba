// Package doctor validates a knock configuration beyond what the loader
// enforces and reports problems that would surface only at run time.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"os/exec"
	"strings"

	"github.com/mattjoyce/knock/internal/commands"
	"github.com/mattjoyce/knock/internal/config"
)

// maxListLen is the number of entries a one-byte index can reach.
const maxListLen = 256

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
}

// New creates a Doctor for cfg.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, lookPath: exec.LookPath}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateBind(r)
	d.validateShell(r)
	d.validateAPI(r)
	d.warnUnknownKeys(r)
	d.checkCommandLists(r)
	d.warnHistoryDisabled(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateBind(r *Result) {
	if d.cfg.BindAddress == "" {
		d.addError(r, "listener", "bind_address", "bind_address is required")
		return
	}
	host, _, err := net.SplitHostPort(d.cfg.BindAddress)
	if err != nil {
		d.addError(r, "listener", "bind_address",
			fmt.Sprintf("bind_address %q is not host:port: %v", d.cfg.BindAddress, err))
		return
	}
	if isWildcard(host) {
		d.addWarning(r, "listener", "bind_address",
			fmt.Sprintf("bind_address %q accepts frames from every interface; the protocol has no authentication", d.cfg.BindAddress))
	}
}

func (d *Doctor) validateShell(r *Result) {
	shell := d.cfg.Shell
	if shell == "" {
		shell = config.Defaults().Shell
	}
	if _, err := d.lookPath(shell); err != nil {
		d.addError(r, "shell", "shell", fmt.Sprintf("shell %q not found: %v", shell, err))
	}
}

func (d *Doctor) validateAPI(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen",
			fmt.Sprintf("api.listen %q is not host:port: %v", d.cfg.API.Listen, err))
		return
	}
	if d.cfg.API.Listen == d.cfg.BindAddress {
		d.addError(r, "api", "api.listen", "api.listen must differ from bind_address")
	}
	if isWildcard(host) && d.cfg.API.Token == "" {
		d.addWarning(r, "api", "api.token",
			fmt.Sprintf("status API on %q is reachable from every interface without a token", d.cfg.API.Listen))
	}
}

// checkCommandLists flags entries that can never run or that probably
// were not meant to be configured that way.
func (d *Doctor) checkCommandLists(r *Result) {
	table := commands.New(d.cfg.CommandLists())

	for n := 1; n <= 4; n++ {
		list := table.List(n)
		field := fmt.Sprintf("commands_%d", n)

		if len(list) == 0 {
			d.addWarning(r, "commands", field,
				fmt.Sprintf("%s is empty; frames with command %d are ignored", field, n))
			continue
		}
		if len(list) > maxListLen {
			d.addWarning(r, "commands", field,
				fmt.Sprintf("%s has %d entries; only the first %d are reachable", field, len(list), maxListLen))
		}

		seen := make(map[string]int, len(list))
		for j, line := range list {
			entry := fmt.Sprintf("%s[%d]", field, j)
			if strings.TrimSpace(line) == "" {
				d.addWarning(r, "commands", entry, "command line is blank")
				continue
			}
			if prev, ok := seen[line]; ok {
				d.addWarning(r, "commands", entry,
					fmt.Sprintf("duplicates %s[%d]", field, prev))
				continue
			}
			seen[line] = j
		}
	}

	if table.Len() == 0 {
		d.addWarning(r, "commands", "", "no command lines configured; only shutdown frames have an effect")
	}
}

func (d *Doctor) warnUnknownKeys(r *Result) {
	for _, key := range d.cfg.UnknownKeys {
		d.addWarning(r, "config", key, fmt.Sprintf("unknown key %q is ignored", key))
	}
}

func (d *Doctor) warnHistoryDisabled(r *Result) {
	if d.cfg.History.Path == "" && d.cfg.API.Enabled {
		d.addWarning(r, "history", "history.path",
			"status API enabled without history; /executions will be empty")
	}
}

func isWildcard(host string) bool {
	if host == "" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsUnspecified()
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
