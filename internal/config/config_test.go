package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/portprobe/internal/model"
)

// writeFile creates name in dir with the given content and returns its path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// requireExitCode asserts that err is a CLIError carrying code.
func requireExitCode(t *testing.T, err error, code model.ExitCode) {
	t.Helper()
	require.Error(t, err)
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr), "expected *model.CLIError, got %T", err)
	assert.Equal(t, code, cliErr.Code)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "chromedriver", cfg.Helper.Binary)
	assert.Equal(t, "--port=0", cfg.PortArg())
	assert.Equal(t, 30*time.Second, cfg.Timeout.Std())
	assert.Equal(t, time.Millisecond, cfg.PollInterval.Std())
	assert.False(t, cfg.ReadyCheck)
	assert.Empty(t, cfg.Path)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), ".portprobe.yaml", `
helper:
  binary: /usr/local/bin/geckodriver
  args: ["--log", "info"]
  portArg: "--port=0"
timeout: 10s
pollInterval: 5ms
readyCheck: true
helperLog:
  path: /tmp/geckodriver.log
  maxSizeMB: 5
  compress: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/usr/local/bin/geckodriver", cfg.Helper.Binary)
	assert.Equal(t, []string{"--log", "info"}, cfg.Helper.Args)
	assert.Equal(t, "--port=0", cfg.PortArg())
	assert.Equal(t, 10*time.Second, cfg.Timeout.Std())
	assert.Equal(t, 5*time.Millisecond, cfg.PollInterval.Std())
	assert.True(t, cfg.ReadyCheck)
	assert.Equal(t, "/tmp/geckodriver.log", cfg.HelperLog.Path)
	assert.Equal(t, 5, cfg.HelperLog.MaxSizeMB)
	assert.Zero(t, cfg.HelperLog.MaxBackups)
	assert.True(t, cfg.HelperLog.Compress)
	assert.Equal(t, path, cfg.Path)
}

// TestLoad_JSONC verifies that comments and trailing commas are accepted
// and that missing keys keep their defaults.
func TestLoad_JSONC(t *testing.T) {
	path := writeFile(t, t.TempDir(), ".portprobe.jsonc", `{
  // run an explicit driver build
  "helper": {
    "binary": "./out/chromedriver",
    /* no port argument, the wrapper script adds it */
    "portArg": "",
  },
  "timeout": "2m",
}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "./out/chromedriver", cfg.Helper.Binary)
	assert.Empty(t, cfg.PortArg())
	assert.Equal(t, 2*time.Minute, cfg.Timeout.Std())
	assert.Equal(t, time.Millisecond, cfg.PollInterval.Std(), "pollInterval keeps its default")
}

func TestLoad_EmptyFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"empty.yaml", "empty.json"} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, dir, name, ""))
			require.NoError(t, err)
			assert.Equal(t, Default().Timeout, cfg.Timeout)
			assert.Equal(t, Default().Helper.Binary, cfg.Helper.Binary)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantMsg string
	}{
		{
			name:    "unknown key in yaml",
			file:    "c.yaml",
			content: "timeot: 5s\n",
			wantMsg: "failed to parse",
		},
		{
			name:    "unknown key in json",
			file:    "c.json",
			content: `{"readyChek": true}`,
			wantMsg: "failed to parse",
		},
		{
			name:    "bad duration",
			file:    "c.yaml",
			content: "timeout: soon\n",
			wantMsg: "failed to parse",
		},
		{
			name:    "duration without unit",
			file:    "c.yml",
			content: "timeout: 30\n",
			wantMsg: "failed to parse",
		},
		{
			name:    "numeric duration in json",
			file:    "c.json",
			content: `{"timeout": 30}`,
			wantMsg: "failed to parse",
		},
		{
			name:    "zero timeout",
			file:    "c.yaml",
			content: "timeout: 0s\n",
			wantMsg: "invalid config",
		},
		{
			name:    "negative poll interval",
			file:    "c.json",
			content: `{"pollInterval": "-1ms"}`,
			wantMsg: "invalid config",
		},
		{
			name:    "unsupported extension",
			file:    "c.toml",
			content: "timeout = '5s'\n",
			wantMsg: "unsupported config format",
		},
	}

	dir := t.TempDir()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, dir, tt.file, tt.content))
			requireExitCode(t, err, model.ExitInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

// TestLoad_JSONKeyCase verifies that JSON keys differing only in case
// still bind, as encoding/json matches field names case-insensitively.
func TestLoad_JSONKeyCase(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.json", `{"readycheck": true, "TIMEOUT": "4s"}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.ReadyCheck)
	assert.Equal(t, 4*time.Second, cfg.Timeout.Std())
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	requireExitCode(t, err, model.ExitInvalidConfig)
	assert.Contains(t, err.Error(), "config file not found")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{
			name:    "empty binary",
			mutate:  func(c *Config) { c.Helper.Binary = "  " },
			wantErr: "helper.binary",
		},
		{
			name:    "poll interval above timeout",
			mutate:  func(c *Config) { c.PollInterval = Duration(time.Minute) },
			wantErr: "exceeds timeout",
		},
		{
			name:    "negative backups",
			mutate:  func(c *Config) { c.HelperLog.MaxBackups = -1 },
			wantErr: "helperLog.maxBackups",
		},
		{
			name: "several problems reported together",
			mutate: func(c *Config) {
				c.HelperLog.MaxSizeMB = -1
				c.HelperLog.MaxAgeDays = -1
			},
			wantErr: "helperLog.maxAgeDays",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestFind verifies the lookup order of config file names.
func TestFind(t *testing.T) {
	dir := t.TempDir()

	_, ok := Find(dir)
	assert.False(t, ok)

	writeFile(t, dir, ".portprobe.json", "{}")
	path, ok := Find(dir)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, ".portprobe.json"), path)

	writeFile(t, dir, ".portprobe.yml", "")
	path, ok = Find(dir)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, ".portprobe.yml"), path, "YAML wins over JSON")
}

func TestFind_IgnoresDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".portprobe.yaml"), 0o755))

	_, ok := Find(dir)
	assert.False(t, ok)
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Resolve("", dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	writeFile(t, dir, ".portprobe.yaml", "readyCheck: true\n")
	cfg, err = Resolve("", dir)
	require.NoError(t, err)
	assert.True(t, cfg.ReadyCheck)

	explicit := writeFile(t, t.TempDir(), "other.json", `{"timeout": "3s"}`)
	cfg, err = Resolve(explicit, dir)
	require.NoError(t, err)
	assert.False(t, cfg.ReadyCheck, "explicit path replaces discovery")
	assert.Equal(t, 3*time.Second, cfg.Timeout.Std())
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte(" 1m30s ")))
	assert.Equal(t, 90*time.Second, d.Std())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("90")))
}
