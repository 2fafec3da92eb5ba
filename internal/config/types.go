package config

import "time"

// Config represents the complete knock configuration.
type Config struct {
	Debug       bool   `yaml:"debug"`
	BindAddress string `yaml:"bind_address"`

	Commands1 []string `yaml:"commands_1"`
	Commands2 []string `yaml:"commands_2"`
	Commands3 []string `yaml:"commands_3"`
	Commands4 []string `yaml:"commands_4"`

	// Shell is the interpreter each command line is handed to with -c.
	Shell       string        `yaml:"shell,omitempty"`
	ReadTimeout time.Duration `yaml:"read_timeout,omitempty"`
	LogFormat   string        `yaml:"log_format,omitempty"`
	LockPath    string        `yaml:"lock_path,omitempty"`

	History HistoryConfig `yaml:"history,omitempty"`
	API     APIConfig     `yaml:"api,omitempty"`

	// SourcePath is the absolute path of the file the config was read from.
	SourcePath string `yaml:"-"`
	// UnknownKeys lists keys present in the file that knock ignores.
	UnknownKeys []string `yaml:"-"`
}

// HistoryConfig defines the execution history store.
type HistoryConfig struct {
	// Path of the SQLite database. Empty disables history.
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention,omitempty"`
	// PruneInterval is how often entries older than Retention are removed.
	PruneInterval time.Duration `yaml:"prune_interval,omitempty"`
}

// APIConfig defines the read-only status API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// Token, when set, is required as a bearer token on every endpoint
	// except /healthz.
	Token string `yaml:"token,omitempty"`
}

// CommandLists returns commands_1..commands_4 in order.
func (c *Config) CommandLists() [4][]string {
	return [4][]string{c.Commands1, c.Commands2, c.Commands3, c.Commands4}
}

// Defaults returns a Config with the optional fields filled in.
func Defaults() *Config {
	return &Config{
		Shell:       "sh",
		ReadTimeout: 5 * time.Second,
		LogFormat:   "text",
		History: HistoryConfig{
			Retention:     30 * 24 * time.Hour,
			PruneInterval: time.Hour,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8090",
		},
	}
}
