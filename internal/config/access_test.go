package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPath(t *testing.T) {
	cfg := &Config{
		BindAddress: "127.0.0.1:7777",
		Commands2:   []string{"uptime", "df -h"},
		ReadTimeout: 5 * time.Second,
		API: APIConfig{
			Enabled: true,
			Listen:  "127.0.0.1:8090",
		},
	}

	tests := []struct {
		name    string
		path    string
		want    any
		wantErr bool
	}{
		{
			name: "root field",
			path: "bind_address",
			want: "127.0.0.1:7777",
		},
		{
			name: "nested field",
			path: "api.enabled",
			want: true,
		},
		{
			name: "list index",
			path: "commands_2.1",
			want: "df -h",
		},
		{
			name: "duration renders as string",
			path: "read_timeout",
			want: "5s",
		},
		{
			name:    "missing key",
			path:    "api.missing",
			wantErr: true,
		},
		{
			name:    "index out of range",
			path:    "commands_2.7",
			wantErr: true,
		},
		{
			name:    "index into scalar",
			path:    "bind_address.0",
			wantErr: true,
		},
		{
			name: "type:name addressing",
			path: "list:2",
			want: []string{"uptime", "df -h"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cfg.GetPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetEntity(t *testing.T) {
	cfg := &Config{
		Commands1: []string{"a"},
		Commands4: []string{"d"},
	}

	t.Run("single list", func(t *testing.T) {
		got, err := cfg.GetEntity("list:4")
		assert.NoError(t, err)
		assert.Equal(t, []string{"d"}, got)
	})

	t.Run("wildcard", func(t *testing.T) {
		got, err := cfg.GetEntity("list:*")
		assert.NoError(t, err)
		assert.Equal(t, cfg.CommandLists(), got)
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := cfg.GetEntity("list:5")
		assert.Error(t, err)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := cfg.GetEntity("plugin:echo")
		assert.Error(t, err)
	})
}

func TestSetPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	initialYAML := `
bind_address: 127.0.0.1:7777
commands_1:
  - uptime
api:
  enabled: false
`
	require.NoError(t, os.WriteFile(configPath, []byte(initialYAML), 0o600))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	t.Run("set root field", func(t *testing.T) {
		require.NoError(t, cfg.SetPath("bind_address", "127.0.0.1:9999", true))

		reloaded, err := Load(configPath)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:9999", reloaded.BindAddress)
	})

	t.Run("set nested bool", func(t *testing.T) {
		require.NoError(t, cfg.SetPath("api.enabled", "true", true))

		reloaded, err := Load(configPath)
		require.NoError(t, err)
		assert.True(t, reloaded.API.Enabled)
	})

	t.Run("replace and append list entries", func(t *testing.T) {
		require.NoError(t, cfg.SetPath("commands_1.0", "date", true))
		require.NoError(t, cfg.SetPath("commands_1.1", "whoami", true))

		reloaded, err := Load(configPath)
		require.NoError(t, err)
		assert.Equal(t, []string{"date", "whoami"}, reloaded.Commands1)
	})

	t.Run("invalid value leaves file untouched", func(t *testing.T) {
		before, err := os.ReadFile(configPath)
		require.NoError(t, err)

		err = cfg.SetPath("log_format", "xml", true)
		assert.Error(t, err)

		after, err := os.ReadFile(configPath)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("dry run does not write", func(t *testing.T) {
		before, err := os.ReadFile(configPath)
		require.NoError(t, err)

		require.NoError(t, cfg.SetPath("debug", "true", false))

		after, err := os.ReadFile(configPath)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("keeps file mode", func(t *testing.T) {
		info, err := os.Stat(configPath)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})
}
