package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Empty(t, cfg.Service)
	assert.Empty(t, cfg.Token)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.InitialInterval)
	assert.Equal(t, 1.5, cfg.Retry.Multiplier)
	assert.Equal(t, 15*time.Minute, cfg.Retry.MaxElapsedTime)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "default", cfg.Pull.CheckpointName)
	assert.Equal(t, 5*time.Second, cfg.Pull.PollInterval)
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing", "config.yaml"), nil)
	require.NoError(t, err)

	assert.Equal(t, Default().Retry, cfg.Retry)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_WithConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configContent := `service: https://log.example.com
token: file-token
timeout: 5s
retry:
  initial_interval: 100ms
  max_retries: 4
log:
  level: debug
  format: json
pull:
  checkpoint: /var/lib/windi/cp.db
  poll_interval: 1m
nats:
  url: nats://localhost:4222
  subject: windi.log
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0600))

	cfg, err := Load(configPath, nil)
	require.NoError(t, err)

	assert.Equal(t, "https://log.example.com", cfg.Service)
	assert.Equal(t, "file-token", cfg.Token)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.InitialInterval)
	assert.Equal(t, uint64(4), cfg.Retry.MaxRetries)
	assert.Equal(t, 1.5, cfg.Retry.Multiplier, "unset keys keep defaults")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/var/lib/windi/cp.db", cfg.Pull.Checkpoint)
	assert.Equal(t, time.Minute, cfg.Pull.PollInterval)
	assert.Equal(t, "default", cfg.Pull.CheckpointName)
	assert.Equal(t, "windi.log", cfg.NATS.Subject)
	assert.Equal(t, configPath, cfg.Path())
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("service: [unterminated"), 0600))

	_, err := Load(configPath, nil)
	assert.Error(t, err)
}

func TestLoad_WithEnvironmentOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("token: file-token\n"), 0600))

	t.Setenv("WINDI_TOKEN", "env-token")
	t.Setenv("WINDI_SERVICE", "http://env-service:9000")
	t.Setenv("WINDI_LOG_LEVEL", "warn")

	cfg, err := Load(configPath, nil)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, "http://env-service:9000", cfg.Service)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("WINDI_TOKEN", "env-token")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("token", "", "")
	flags.String("log-level", "info", "")
	flags.Duration("poll-interval", 0, "")
	require.NoError(t, flags.Parse([]string{"--token", "flag-token", "--poll-interval", "2s"}))

	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"), flags)
	require.NoError(t, err)

	assert.Equal(t, "flag-token", cfg.Token)
	assert.Equal(t, 2*time.Second, cfg.Pull.PollInterval)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestDefaultPath_ConfigDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WINDI_CONFIG_DIR", dir)

	p, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), p)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.ErrorIs(t, cfg.Validate(), ErrMissingToken)

	cfg.Token = "  "
	assert.ErrorIs(t, cfg.Validate(), ErrMissingToken)

	cfg.Token = "secret"
	assert.NoError(t, cfg.Validate())

	cfg.NATS.URL = "nats://localhost:4222"
	assert.Error(t, cfg.Validate())

	cfg.NATS.Subject = "windi.log"
	assert.NoError(t, cfg.Validate())
}

func TestSave(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.SetPath(configPath)
	cfg.Service = "https://log.example.com"
	cfg.Token = "saved-token"
	cfg.Pull.PollInterval = 30 * time.Second

	require.NoError(t, cfg.Save())

	dirInfo, err := os.Stat(filepath.Dir(configPath))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())

	fileInfo, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fileInfo.Mode().Perm())

	loaded, err := Load(configPath, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://log.example.com", loaded.Service)
	assert.Equal(t, "saved-token", loaded.Token)
	assert.Equal(t, 30*time.Second, loaded.Pull.PollInterval)
	assert.Equal(t, cfg.Retry, loaded.Retry)
}
