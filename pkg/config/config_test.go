package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: "INFO"

filesystem:
  type: "memory"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Kernel.OpenMax != DefaultOpenMax {
		t.Errorf("Expected default open_max %d, got %d", DefaultOpenMax, cfg.Kernel.OpenMax)
	}
	if cfg.Kernel.ProcessOpenMax != cfg.Kernel.OpenMax {
		t.Errorf("Expected process_open_max to follow open_max, got %d", cfg.Kernel.ProcessOpenMax)
	}
	if !cfg.Kernel.ConsoleEnabled() {
		t.Error("Expected console enabled by default")
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics disabled by default")
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// An explicit path keeps the user's ~/.config/dittofd out of the test.
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Filesystem.Type != "memory" {
		t.Errorf("Expected default filesystem type 'memory', got %q", cfg.Filesystem.Type)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "logging:\n  level: [unterminated\n")

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
kernel:
  open_max: -4
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for negative open_max")
	}
}

func TestLoad_KernelSection(t *testing.T) {
	configPath := writeConfig(t, `
kernel:
  open_max: 64
  process_open_max: 16
  path_max: 256
  console: false
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Kernel.OpenMax != 64 || cfg.Kernel.ProcessOpenMax != 16 || cfg.Kernel.PathMax != 256 {
		t.Errorf("Unexpected kernel config: %+v", cfg.Kernel)
	}
	if cfg.Kernel.ConsoleEnabled() {
		t.Error("Expected console disabled")
	}
}

func TestLoad_Mounts(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, `
filesystem:
  type: memory
mounts:
  - name: scratch
    type: memory
    memory:
      max_size_bytes: 4096
  - name: disk
    type: filesystem
    filesystem:
      path: `+dir+`
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if len(cfg.Mounts) != 2 {
		t.Fatalf("Expected 2 mounts, got %d", len(cfg.Mounts))
	}
	if cfg.Mounts[0].Name != "scratch" || cfg.Mounts[0].Type != "memory" {
		t.Errorf("Unexpected first mount: %+v", cfg.Mounts[0])
	}
	if cfg.Mounts[1].Filesystem["path"] != dir {
		t.Errorf("Expected disk path %q, got %v", dir, cfg.Mounts[1].Filesystem["path"])
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("DITTOFD_LOGGING_LEVEL", "debug")
	t.Setenv("DITTOFD_KERNEL_OPEN_MAX", "256")
	t.Setenv("DITTOFD_METRICS_LISTEN", "127.0.0.1:9999")

	configPath := writeConfig(t, `
logging:
  level: "WARN"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected env override 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Kernel.OpenMax != 256 {
		t.Errorf("Expected env override open_max 256, got %d", cfg.Kernel.OpenMax)
	}
	if cfg.Metrics.Listen != "127.0.0.1:9999" {
		t.Errorf("Expected env override listen, got %q", cfg.Metrics.Listen)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	want := filepath.Join(xdg, "dittofd", "config.yaml")
	if got := GetDefaultConfigPath(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
	if GetConfigDir() != filepath.Join(xdg, "dittofd") {
		t.Errorf("Unexpected config dir %q", GetConfigDir())
	}
	if ConfigExists() {
		t.Error("Expected no config in a fresh XDG directory")
	}
}
