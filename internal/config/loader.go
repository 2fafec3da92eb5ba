package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFilename is looked up when Load is given a directory.
const DefaultFilename = "config.yaml"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, verifies and validates the configuration at configPath.
// configPath may name the file itself or a directory holding config.yaml.
func Load(configPath string) (*Config, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}

	if err := VerifyIntegrity(absPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourcePath = absPath

	if cfg.LockPath == "" {
		cfg.LockPath = filepath.Join(filepath.Dir(absPath), "knock.lock")
	}

	return cfg, nil
}

// ResolvePath turns a user supplied config path into the absolute path of a
// config file. An empty path means ./config.yaml.
func ResolvePath(configPath string) (string, error) {
	if configPath == "" {
		configPath = DefaultFilename
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, DefaultFilename)
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but %s not found: %s", DefaultFilename, absPath)
		}
	}
	return absPath, nil
}

// Parse decodes a YAML document, applies defaults and validates the result.
// Keys knock does not know are ignored and listed in UnknownKeys.
func Parse(data []byte) (*Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("config is empty")
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("failed to parse YAML: top level must be a mapping")
	}

	interpolateNode(doc, false)

	var cfg Config
	if err := doc.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	cfg.UnknownKeys = unknownKeys(doc, reflect.TypeOf(cfg), "")

	applyConfigDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func applyConfigDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Shell == "" {
		cfg.Shell = defaults.Shell
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = defaults.LogFormat
	}
	if cfg.History.Retention == 0 {
		cfg.History.Retention = defaults.History.Retention
	}
	if cfg.History.PruneInterval == 0 {
		cfg.History.PruneInterval = defaults.History.PruneInterval
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
}

// interpolateNode replaces ${VAR} in scalar values with the value of VAR
// when it is set. The values of commandKeys are skipped: command lines reach
// the shell exactly as written.
func interpolateNode(n *yaml.Node, skip bool) {
	switch n.Kind {
	case yaml.ScalarNode:
		if !skip {
			n.Value = interpolateEnv(n.Value)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			interpolateNode(n.Content[i+1], skip || commandKeys[n.Content[i].Value])
		}
	case yaml.SequenceNode, yaml.DocumentNode:
		for _, c := range n.Content {
			interpolateNode(c, skip)
		}
	}
}

var commandKeys = map[string]bool{
	"commands_1": true,
	"commands_2": true,
	"commands_3": true,
	"commands_4": true,
}

// interpolateEnv replaces ${VAR} with the value of VAR when it is set.
// Unset variables are left untouched.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// unknownKeys returns the dotted paths of mapping keys in n that have no
// matching yaml tag in t.
func unknownKeys(n *yaml.Node, t reflect.Type, prefix string) []string {
	if n.Kind != yaml.MappingNode || t.Kind() != reflect.Struct {
		return nil
	}

	fields := make(map[string]reflect.Type, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			continue
		}
		fields[name] = t.Field(i).Type
	}

	var unknown []string
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		ft, ok := fields[key]
		if !ok {
			unknown = append(unknown, prefix+key)
			continue
		}
		unknown = append(unknown, unknownKeys(n.Content[i+1], ft, prefix+key+".")...)
	}
	return unknown
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	if cfg.BindAddress == "" {
		return fmt.Errorf("bind_address is required")
	}
	if err := validateHostPort("bind_address", cfg.BindAddress); err != nil {
		return err
	}

	if cfg.ReadTimeout < 0 {
		return fmt.Errorf("read_timeout must be positive")
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be one of: text, json (got %q)", cfg.LogFormat)
	}

	if cfg.History.Retention < 0 {
		return fmt.Errorf("history.retention must be positive")
	}
	if cfg.History.PruneInterval < 0 {
		return fmt.Errorf("history.prune_interval must be positive")
	}

	if cfg.API.Enabled {
		if err := validateHostPort("api.listen", cfg.API.Listen); err != nil {
			return err
		}
		if cfg.API.Listen == cfg.BindAddress {
			return fmt.Errorf("api.listen must differ from bind_address")
		}
	}

	return nil
}

func validateHostPort(field, addr string) error {
	if envVarPattern.MatchString(addr) {
		matches := envVarPattern.FindStringSubmatch(addr)
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s must be host:port (got %q): %w", field, addr, err)
	}
	return nil
}
