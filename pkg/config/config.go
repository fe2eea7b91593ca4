// Package config loads the droidprobe configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DROIDPROBE_*) (highest priority)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// Load binds no command-line flags; its cfgFile argument only selects
// which file is read.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the droidprobe configuration.
//
// Only static aspects live here: logging, the optional status/metrics
// HTTP server, and session-level timeouts. The protocol core owns no
// configuration of its own; the CLI loads this and passes values down.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Status contains the status/metrics HTTP server configuration
	Status StatusConfig `mapstructure:"status" yaml:"status"`

	// Session controls debug session timeouts
	Session SessionConfig `mapstructure:"session" yaml:"session"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR
	Level string `mapstructure:"level" yaml:"level"`

	// Format is "text" or "json"
	Format string `mapstructure:"format" yaml:"format"`

	// Output is "stdout", "stderr", or a file path
	Output string `mapstructure:"output" yaml:"output"`
}

// StatusConfig controls the optional status/metrics HTTP server.
type StatusConfig struct {
	// Enabled starts the server when true
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Listen is the host:port the server binds
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// SessionConfig controls debug session timeouts.
type SessionConfig struct {
	// DialTimeout bounds the TCP connect to the VM
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`

	// Deadline bounds the whole session; zero disables it
	Deadline time.Duration `mapstructure:"deadline" yaml:"deadline"`

	// PollInterval is the granularity at which blocked reads observe
	// interrupts and cancellation
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// Load reads the configuration from the given file (optional), the
// environment, and defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("DROIDPROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := DefaultConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
		// A missing default config file is fine; defaults apply.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges the decoder cannot.
func (c *Config) Validate() error {
	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("config: invalid logging level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: invalid logging format %q", c.Logging.Format)
	}
	if c.Session.DialTimeout < 0 || c.Session.Deadline < 0 || c.Session.PollInterval < 0 {
		return fmt.Errorf("config: session durations must not be negative")
	}
	if c.Status.Enabled && c.Status.Listen == "" {
		return fmt.Errorf("config: status server enabled without listen address")
	}
	return nil
}

// Write marshals the configuration to YAML at the given path, creating
// parent directories as needed.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// DefaultConfigDir returns the per-user configuration directory.
func DefaultConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "droidprobe"), nil
}
