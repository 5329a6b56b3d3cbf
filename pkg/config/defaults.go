package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/dittofd/pkg/kernel"
	"github.com/marmos91/dittofd/pkg/metrics"
)

// DefaultOpenMax is the default capacity of the global open-file table.
const DefaultOpenMax = 128

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend-specific defaults are only filled for the selected type
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyKernelDefaults(&cfg.Kernel)
	applyFilesystemDefaults(&cfg.Filesystem, "root")
	for i := range cfg.Mounts {
		applyFilesystemDefaults(&cfg.Mounts[i].FilesystemConfig, cfg.Mounts[i].Name)
	}
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyKernelDefaults sets table capacities and limits.
func applyKernelDefaults(cfg *KernelConfig) {
	if cfg.OpenMax == 0 {
		cfg.OpenMax = DefaultOpenMax
	}
	if cfg.ProcessOpenMax == 0 {
		cfg.ProcessOpenMax = cfg.OpenMax
	}
	if cfg.PathMax == 0 {
		cfg.PathMax = kernel.DefaultPathMax
	}
	if cfg.Console == nil {
		enabled := true
		cfg.Console = &enabled
	}
}

// applyFilesystemDefaults fills the section of the selected backend. name
// keeps the default on-disk locations of different mounts apart.
func applyFilesystemDefaults(cfg *FilesystemConfig, name string) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	switch cfg.Type {
	case "memory":
		if cfg.Memory == nil {
			cfg.Memory = make(map[string]any)
		}
		if _, ok := cfg.Memory["max_size_bytes"]; !ok {
			cfg.Memory["max_size_bytes"] = uint64(1073741824) // 1GB
		}
	case "filesystem":
		if cfg.Filesystem == nil {
			cfg.Filesystem = make(map[string]any)
		}
		if _, ok := cfg.Filesystem["path"]; !ok {
			cfg.Filesystem["path"] = filepath.Join(os.TempDir(), "dittofd", name)
		}
	case "badger":
		if cfg.Badger == nil {
			cfg.Badger = make(map[string]any)
		}
		if _, ok := cfg.Badger["db_path"]; !ok {
			cfg.Badger["db_path"] = filepath.Join(os.TempDir(), "dittofd-badger", name)
		}
	case "s3":
		if cfg.S3 == nil {
			cfg.S3 = make(map[string]any)
		}
		if _, ok := cfg.S3["region"]; !ok {
			cfg.S3["region"] = "us-east-1"
		}
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Listen == "" {
		cfg.Listen = metrics.DefaultListen
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
