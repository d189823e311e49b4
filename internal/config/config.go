// Package config loads windi settings from the config file, WINDI_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrMissingToken is returned by Validate when no bearer token is configured.
var ErrMissingToken = errors.New("token is required (set --token or WINDI_TOKEN)")

type Config struct {
	// Service is the base URL of the log service; empty means the client default.
	Service string        `mapstructure:"service" yaml:"service,omitempty"`
	Token   string        `mapstructure:"token" yaml:"token,omitempty"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
	Retry   RetryConfig   `mapstructure:"retry" yaml:"retry"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Pull    PullConfig    `mapstructure:"pull" yaml:"pull"`
	NATS    NATSConfig    `mapstructure:"nats" yaml:"nats,omitempty"`

	path string
}

// RetryConfig mirrors client.Policy.
type RetryConfig struct {
	InitialInterval     time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	Multiplier          float64       `mapstructure:"multiplier" yaml:"multiplier"`
	RandomizationFactor float64       `mapstructure:"randomization_factor" yaml:"randomization_factor"`
	MaxInterval         time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
	MaxElapsedTime      time.Duration `mapstructure:"max_elapsed_time" yaml:"max_elapsed_time"`
	MaxRetries          uint64        `mapstructure:"max_retries" yaml:"max_retries,omitempty"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// PullConfig holds settings for the pull loop.
type PullConfig struct {
	Checkpoint     string        `mapstructure:"checkpoint" yaml:"checkpoint,omitempty"`
	CheckpointName string        `mapstructure:"checkpoint_name" yaml:"checkpoint_name,omitempty"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval,omitempty"`
	Output         string        `mapstructure:"output" yaml:"output,omitempty"`
	MetricsAddr    string        `mapstructure:"metrics_addr" yaml:"metrics_addr,omitempty"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url" yaml:"url,omitempty"`
	Subject string `mapstructure:"subject" yaml:"subject,omitempty"`
	Token   string `mapstructure:"token" yaml:"token,omitempty"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Timeout: 30 * time.Second,
		Retry: RetryConfig{
			InitialInterval:     500 * time.Millisecond,
			Multiplier:          1.5,
			RandomizationFactor: 0.5,
			MaxInterval:         time.Minute,
			MaxElapsedTime:      15 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Pull: PullConfig{
			CheckpointName: "default",
			PollInterval:   5 * time.Second,
		},
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"service":         "service",
	"token":           "token",
	"timeout":         "timeout",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"checkpoint":      "pull.checkpoint",
	"checkpoint-name": "pull.checkpoint_name",
	"poll-interval":   "pull.poll_interval",
	"out":             "pull.output",
	"metrics-addr":    "pull.metrics_addr",
	"nats-url":        "nats.url",
	"nats-subject":    "nats.subject",
	"max-retries":     "retry.max_retries",
}

// DefaultPath returns $WINDI_CONFIG_DIR/config.yaml, falling back to ~/.windi/config.yaml.
func DefaultPath() (string, error) {
	dir := os.Getenv("WINDI_CONFIG_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to determine home directory: %w", err)
		}
		dir = filepath.Join(home, ".windi")
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads configuration. cfgFile may be empty to use DefaultPath. Flags that
// were set explicitly on flags override everything else; flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	if cfgFile == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		cfgFile = p
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigFile(cfgFile)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("WINDI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.path = cfgFile

	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("service", d.Service)
	v.SetDefault("token", d.Token)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("retry.initial_interval", d.Retry.InitialInterval)
	v.SetDefault("retry.multiplier", d.Retry.Multiplier)
	v.SetDefault("retry.randomization_factor", d.Retry.RandomizationFactor)
	v.SetDefault("retry.max_interval", d.Retry.MaxInterval)
	v.SetDefault("retry.max_elapsed_time", d.Retry.MaxElapsedTime)
	v.SetDefault("retry.max_retries", d.Retry.MaxRetries)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("pull.checkpoint", d.Pull.Checkpoint)
	v.SetDefault("pull.checkpoint_name", d.Pull.CheckpointName)
	v.SetDefault("pull.poll_interval", d.Pull.PollInterval)
	v.SetDefault("pull.output", d.Pull.Output)
	v.SetDefault("pull.metrics_addr", d.Pull.MetricsAddr)
	v.SetDefault("nats.url", d.NATS.URL)
	v.SetDefault("nats.subject", d.NATS.Subject)
	v.SetDefault("nats.token", d.NATS.Token)
}

// Validate checks the settings needed to talk to the service.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return ErrMissingToken
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		return errors.New("nats subject is required when a nats url is set")
	}
	return nil
}

// Path returns the file this config was loaded from (or will be saved to).
func (c *Config) Path() string { return c.path }

// SetPath changes the file Save writes to.
func (c *Config) SetPath(p string) { c.path = p }

// Save writes the config as YAML, readable only by the current user since it
// holds the bearer token.
func (c *Config) Save() error {
	if c.path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		c.path = p
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(c.path, data, 0600)
}
