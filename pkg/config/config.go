package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete DittoFD configuration.
//
// This structure captures all configurable aspects of the kernel including:
//   - Logging configuration
//   - Kernel limits (open-file table and descriptor table capacity, PATH_MAX)
//   - The root filesystem backend (store-specific)
//   - Additional device mounts (store-specific)
//   - Metrics exposition
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTOFD_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// Backend Configuration Pattern:
// Each vnode backend defines its own configuration type. The FilesystemConfig
// struct contains type-specific sections (e.g., filesystem.memory,
// filesystem.s3) and only the section matching the selected type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Kernel contains table capacities and syscall limits
	Kernel KernelConfig `mapstructure:"kernel" yaml:"kernel"`

	// Filesystem is the backend serving every path without a device prefix
	Filesystem FilesystemConfig `mapstructure:"filesystem" yaml:"filesystem"`

	// Mounts attaches extra backends under device names ("scratch" serves
	// "scratch:/path")
	Mounts []MountConfig `mapstructure:"mounts" yaml:"mounts" validate:"dive"`

	// Metrics controls Prometheus exposition
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// KernelConfig sizes the kernel tables.
type KernelConfig struct {
	// OpenMax is the capacity of the global open-file table
	OpenMax int `mapstructure:"open_max" yaml:"open_max" validate:"gte=1,lte=1048576"`

	// ProcessOpenMax is the capacity of each process's descriptor table
	// Defaults to OpenMax
	ProcessOpenMax int `mapstructure:"process_open_max" yaml:"process_open_max" validate:"gte=1,lte=1048576"`

	// PathMax bounds path arguments copied from user memory, NUL included
	PathMax int `mapstructure:"path_max" yaml:"path_max" validate:"gte=2,lte=65536"`

	// Console binds descriptors 0, 1 and 2 of every process to the console
	// device. Defaults to true.
	Console *bool `mapstructure:"console" yaml:"console"`
}

// ConsoleEnabled reports whether processes start with console descriptors.
func (k KernelConfig) ConsoleEnabled() bool {
	return k.Console == nil || *k.Console
}

// FilesystemConfig specifies a vnode backend.
//
// The Type field determines which backend implementation is used.
// Only the corresponding type-specific configuration section is used.
type FilesystemConfig struct {
	// Type specifies which backend to use
	// Valid values: memory, filesystem, s3, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory filesystem s3 badger"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory,omitempty"`

	// Filesystem contains host-directory configuration
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem,omitempty"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty"`
}

// MountConfig attaches a backend under a device name.
type MountConfig struct {
	// Name is the device name without the trailing colon
	Name string `mapstructure:"name" yaml:"name" validate:"required,excludesall=:/"`

	FilesystemConfig `mapstructure:",squash" yaml:",inline"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	// Enabled turns on collection and the HTTP endpoint
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Listen is the host:port the /metrics endpoint binds
	Listen string `mapstructure:"listen" yaml:"listen" validate:"required"`
}

// envKeys lists the leaf keys that can be set from DITTOFD_* variables even
// when the configuration file does not mention them.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"kernel.open_max",
	"kernel.process_open_max",
	"kernel.path_max",
	"kernel.console",
	"filesystem.type",
	"metrics.enabled",
	"metrics.listen",
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOFD_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if err := setupViper(v, configPath); err != nil {
		return nil, err
	}

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) error {
	// Example: DITTOFD_KERNEL_OPEN_MAX=256
	v.SetEnvPrefix("DITTOFD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		return nil
	}

	// Default location: $XDG_CONFIG_HOME/dittofd/config.yaml
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	return nil
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist is not an error either.
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittofd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittofd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the init command).
func GetConfigDir() string {
	return getConfigDir()
}
