package gourdianfanout

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigFileFormats(t *testing.T) {
	dir := t.TempDir()

	files := map[string]string{
		"config.yaml": `
log_directory: /var/log/app
max_segment_size_bytes: 4096
retained_segment_count: 5
minimum_severity: warn
overflow_policy: drop-oldest
shutdown_grace: 3s
format: json
`,
		"config.toml": `
log_directory = "/var/log/app"
max_segment_size_bytes = 4096
retained_segment_count = 5
minimum_severity = "warn"
overflow_policy = "drop-oldest"
shutdown_grace = "3s"
format = "json"
`,
		"config.json": `{
  "log_directory": "/var/log/app",
  "max_segment_size_bytes": 4096,
  "retained_segment_count": 5,
  "minimum_severity": "warn",
  "overflow_policy": "drop-oldest",
  "shutdown_grace": "3s",
  "format": "json"
}`,
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			cfg, err := LoadConfigFile(writeFile(t, dir, name, content))
			require.NoError(t, err)

			assert.Equal(t, "/var/log/app", cfg.LogsDir)
			assert.Equal(t, int64(4096), cfg.MaxBytes)
			assert.Equal(t, 5, cfg.RetainCount)
			assert.Equal(t, "warn", cfg.MinLevelStr)
			assert.Equal(t, "drop-oldest", cfg.OverflowStr)
			assert.Equal(t, 3*time.Second, cfg.ShutdownGrace)
			assert.Equal(t, "json", cfg.FormatStr)

			// Untouched keys keep their defaults.
			assert.Equal(t, defaultBufferSize, cfg.BufferSize)
			assert.Equal(t, defaultTimestampFormat, cfg.TimestampFormat)
		})
	}
}

func TestLoadConfigFileLaterFilesOverride(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.yaml", "log_directory: /srv/logs\nretained_segment_count: 4\n")
	override := writeFile(t, dir, "override.toml", "retained_segment_count = 9\n")

	cfg, err := LoadConfigFile(base, override)
	require.NoError(t, err)
	assert.Equal(t, "/srv/logs", cfg.LogsDir)
	assert.Equal(t, 9, cfg.RetainCount)
}

func TestLoadConfigFileKeysAreCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "upper.json", `{"LOG_DIRECTORY": "/upper", "Buffer_Size": "32"}`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/upper", cfg.LogsDir)
	assert.Equal(t, 32, cfg.BufferSize)
}

func TestLoadConfigFileErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(dir, "missing.yaml")},
		{"unsupported", writeFile(t, dir, "config.ini", "log_directory=/x")},
		{"malformed yaml", writeFile(t, dir, "bad.yaml", "log_directory: [unterminated")},
		{"malformed json", writeFile(t, dir, "bad.json", "{")},
		{"wrong type", writeFile(t, dir, "type.yaml", "retained_segment_count: lots\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFile(tt.path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestDecodeConfigFilesIntoEmbeddingStruct(t *testing.T) {
	type appConfig struct {
		Config  `mapstructure:",squash"`
		Service string `mapstructure:"service"`
	}

	dir := t.TempDir()
	path := writeFile(t, dir, "app.yaml", "service: billing\nlog_directory: /srv/billing\n")

	cfg := appConfig{Config: DefaultConfig()}
	require.NoError(t, DecodeConfigFiles(&cfg, path))
	assert.Equal(t, "billing", cfg.Service)
	assert.Equal(t, "/srv/billing", cfg.LogsDir)
	assert.Equal(t, defaultRetainCount, cfg.RetainCount)
}

func TestLoadConfigFileLevelOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "overrides.yaml", `
minimum_severity: debug
minimum_severity_overrides:
  System: information
  Microsoft: warn
`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	// Keys are normalized to lower case; matching ignores case.
	assert.Equal(t, map[string]Level{"system": INFO, "microsoft": WARN}, cfg.LevelOverrides)

	bad := writeFile(t, dir, "bad_overrides.json", `{"minimum_severity_overrides": {"System": "loud"}}`)
	_, err = LoadConfigFile(bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
