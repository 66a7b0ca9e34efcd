package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/hotswap/internal/logging"
)

// Config represents the complete hotswap configuration
type Config struct {
	Watch   WatchConfig   `mapstructure:"watch" yaml:"watch"`
	Build   BuildConfig   `mapstructure:"build" yaml:"build"`
	Library LibraryConfig `mapstructure:"library" yaml:"library"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Console ConsoleConfig `mapstructure:"console" yaml:"console"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// WatchConfig controls the change detector
type WatchConfig struct {
	// Root is the directory tree whose contents trigger rebuilds
	Root string `mapstructure:"root" yaml:"root"`
	// IntervalMs is the supervisor tick in milliseconds (default: 100)
	IntervalMs int `mapstructure:"interval_ms" yaml:"interval_ms"`
	// SizeThresholdBytes is the file size at and above which only the size is
	// fingerprinted instead of the content (default: 3000000)
	SizeThresholdBytes int64 `mapstructure:"size_threshold_bytes" yaml:"size_threshold_bytes"`
	// Ignore lists extra glob patterns excluded from the fingerprint, matched
	// against slash-separated paths relative to Root and against base names
	Ignore []string `mapstructure:"ignore" yaml:"ignore"`
	// Notify skips the tree walk until fsnotify reports an event
	Notify bool `mapstructure:"notify" yaml:"notify"`
	// HashWorkers is the size of the file hashing pool (default: 4)
	HashWorkers int `mapstructure:"hash_workers" yaml:"hash_workers"`
}

// BuildConfig controls the external build command
type BuildConfig struct {
	// Command is the build argv. Each element is a text/template over
	// {{.Generation}}, {{.Artifact}}, {{.Dir}} and {{.Package}}.
	Command []string `mapstructure:"command" yaml:"command"`
	// Dir is the working directory of the build. Empty means watch.root.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Stage copies the package in Dir to _hotswap/gen<N> before each build
	// so every generation gets its own import path (default: true).
	// {{.Package}} names the copy.
	Stage bool `mapstructure:"stage" yaml:"stage"`
}

// LibraryConfig controls the reloadable unit artifact
type LibraryConfig struct {
	// Path is the artifact the build writes (P). Generations live at P.0, P.1, ...
	Path string `mapstructure:"path" yaml:"path"`
	// RemoveRetries bounds the attempts to delete a closed generation's file
	RemoveRetries int `mapstructure:"remove_retries" yaml:"remove_retries"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir receives debug.log. Empty means stderr.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// ConsoleConfig controls the human-facing progress lines
type ConsoleConfig struct {
	// ClearScreen clears the terminal before a new generation starts
	ClearScreen bool `mapstructure:"clear_screen" yaml:"clear_screen"`
	// Color enables lipgloss styling
	Color bool `mapstructure:"color" yaml:"color"`
}

// MetricsConfig controls the Prometheus and health endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// DefaultBuildCommand is the argv used when build.command is not set. With
// build.stage on, {{.Package}} is a fresh directory per generation, which
// gives every plugin the distinct import path the runtime requires.
func DefaultBuildCommand() []string {
	return []string{
		"go", "build",
		"-buildmode=plugin",
		"-o", "{{.Artifact}}",
		"{{.Package}}",
	}
}

// Default returns a Config with sensible default values
func Default() *Config {
	rotation := logging.DefaultRotationConfig()
	return &Config{
		Watch: WatchConfig{
			Root:               ".",
			IntervalMs:         100,
			SizeThresholdBytes: 3_000_000,
			Ignore:             []string{},
			Notify:             false,
			HashWorkers:        4,
		},
		Build: BuildConfig{
			Command: DefaultBuildCommand(),
			Dir:     "",
			Stage:   true,
		},
		Library: LibraryConfig{
			Path:          "",
			RemoveRetries: 3,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  rotation.MaxSizeMB,
			MaxBackups: rotation.MaxBackups,
		},
		Console: ConsoleConfig{
			ClearScreen: true,
			Color:       true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
	}
}

// Interval returns the supervisor tick as a time.Duration
func (c *WatchConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// BuildDir returns the build working directory, falling back to the watch root
func (c *Config) BuildDir() string {
	if c.Build.Dir != "" {
		return c.Build.Dir
	}
	return c.Watch.Root
}

// SetDefaults registers default values with the global viper instance
func SetDefaults() {
	SetDefaultsOn(viper.GetViper())
}

// SetDefaultsOn registers default values with v
func SetDefaultsOn(v *viper.Viper) {
	defaults := Default()

	// Watch defaults
	v.SetDefault("watch.root", defaults.Watch.Root)
	v.SetDefault("watch.interval_ms", defaults.Watch.IntervalMs)
	v.SetDefault("watch.size_threshold_bytes", defaults.Watch.SizeThresholdBytes)
	v.SetDefault("watch.ignore", defaults.Watch.Ignore)
	v.SetDefault("watch.notify", defaults.Watch.Notify)
	v.SetDefault("watch.hash_workers", defaults.Watch.HashWorkers)

	// Build defaults
	v.SetDefault("build.command", defaults.Build.Command)
	v.SetDefault("build.dir", defaults.Build.Dir)
	v.SetDefault("build.stage", defaults.Build.Stage)

	// Library defaults
	v.SetDefault("library.path", defaults.Library.Path)
	v.SetDefault("library.remove_retries", defaults.Library.RemoveRetries)

	// Logging defaults
	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.dir", defaults.Logging.Dir)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// Console defaults
	v.SetDefault("console.clear_screen", defaults.Console.ClearScreen)
	v.SetDefault("console.color", defaults.Console.Color)

	// Metrics defaults
	v.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	v.SetDefault("metrics.addr", defaults.Metrics.Addr)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load over an explicit viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hotswap")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hotswap"
	}
	return filepath.Join(home, ".config", "hotswap")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
