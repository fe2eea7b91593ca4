package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values applied before file and environment sources.
const (
	DefaultLogLevel  = "INFO"
	DefaultLogFormat = "text"
	DefaultLogOutput = "stderr"

	DefaultStatusListen = "127.0.0.1:9723"

	DefaultDialTimeout  = 10 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)
	v.SetDefault("logging.output", DefaultLogOutput)

	v.SetDefault("status.enabled", false)
	v.SetDefault("status.listen", DefaultStatusListen)

	v.SetDefault("session.dial_timeout", DefaultDialTimeout)
	v.SetDefault("session.deadline", time.Duration(0))
	v.SetDefault("session.poll_interval", DefaultPollInterval)
}

// Default returns a Config populated with the defaults alone.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
			Output: DefaultLogOutput,
		},
		Status: StatusConfig{
			Enabled: false,
			Listen:  DefaultStatusListen,
		},
		Session: SessionConfig{
			DialTimeout:  DefaultDialTimeout,
			Deadline:     0,
			PollInterval: DefaultPollInterval,
		},
	}
}
