package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// AppName names teelog's config and state directories.
const AppName = "teelog"

// Echo modes accepted by capture.echo.
const (
	EchoAuto = "auto"
	EchoOn   = "on"
	EchoOff  = "off"
)

// Config represents the complete teelog configuration
type Config struct {
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// CaptureConfig controls how a capture session is set up
type CaptureConfig struct {
	// Output is the transcript path
	Output string `mapstructure:"output" yaml:"output"`
	// Echo is one of auto, on, off. auto echoes only when stdout is a terminal.
	Echo string `mapstructure:"echo" yaml:"echo"`
	// PollIntervalMs is the reader's polling interval in milliseconds
	PollIntervalMs int `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	// StopTimeoutMs bounds the wait for the reader on stop; 0 waits forever
	StopTimeoutMs int `mapstructure:"stop_timeout_ms" yaml:"stop_timeout_ms"`
	// Watch wakes the reader on file system events in addition to polling
	Watch bool `mapstructure:"watch" yaml:"watch"`
	// Keep is how many previous transcripts to archive before truncating (0 = none)
	Keep int `mapstructure:"keep" yaml:"keep"`
	// Compress gzips archived transcripts
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// LoggingConfig controls teelog's own diagnostic log
type LoggingConfig struct {
	// Enabled turns the diagnostic log on or off
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// Dir holds debug.log. Empty means StateDir().
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the size at which debug.log is rotated
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated logs to keep
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated logs
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			Output:         "teelog.log",
			Echo:           EchoAuto,
			PollIntervalMs: 100,
			StopTimeoutMs:  0,
			Watch:          false,
			Keep:           0,
			Compress:       false,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
	}
}

// PollInterval returns the poll interval as a time.Duration
func (c *CaptureConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// StopTimeout returns the stop timeout as a time.Duration
func (c *CaptureConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutMs) * time.Millisecond
}

// ResolveEcho turns the echo mode into a decision. isTerminal reports
// whether stdout is a terminal and only matters for auto.
func (c *CaptureConfig) ResolveEcho(isTerminal bool) bool {
	switch c.Echo {
	case EchoOn:
		return true
	case EchoOff:
		return false
	default:
		return isTerminal
	}
}

// ResolveDir returns the directory that holds debug.log
func (l *LoggingConfig) ResolveDir() string {
	if l.Dir != "" {
		return l.Dir
	}
	return StateDir()
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Capture defaults
	viper.SetDefault("capture.output", defaults.Capture.Output)
	viper.SetDefault("capture.echo", defaults.Capture.Echo)
	viper.SetDefault("capture.poll_interval_ms", defaults.Capture.PollIntervalMs)
	viper.SetDefault("capture.stop_timeout_ms", defaults.Capture.StopTimeoutMs)
	viper.SetDefault("capture.watch", defaults.Capture.Watch)
	viper.SetDefault("capture.keep", defaults.Capture.Keep)
	viper.SetDefault("capture.compress", defaults.Capture.Compress)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when it
// cannot be loaded
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// StateDir returns the directory for teelog's own state, such as debug.log
func StateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("."+AppName, "state")
	}
	return filepath.Join(home, ".local", "state", AppName)
}

// ValidEchoModes returns the accepted values for capture.echo
func ValidEchoModes() []string {
	return []string{EchoAuto, EchoOn, EchoOff}
}
