package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	off := false

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "Valid",
			mutate: func(*Config) {},
		},
		{
			name:    "InvalidLogLevel",
			mutate:  func(c *Config) { c.Logging.Level = "TRACE" },
			wantErr: "Level",
		},
		{
			name:    "InvalidLogFormat",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "Format",
		},
		{
			name:    "InvalidFilesystemType",
			mutate:  func(c *Config) { c.Filesystem.Type = "nfs" },
			wantErr: "Type",
		},
		{
			name:    "ZeroOpenMax",
			mutate:  func(c *Config) { c.Kernel.OpenMax = 0 },
			wantErr: "OpenMax",
		},
		{
			name:    "PathMaxTooSmall",
			mutate:  func(c *Config) { c.Kernel.PathMax = 1 },
			wantErr: "PathMax",
		},
		{
			name:    "ProcessTableLargerThanGlobal",
			mutate:  func(c *Config) { c.Kernel.ProcessOpenMax = c.Kernel.OpenMax + 1 },
			wantErr: "process_open_max",
		},
		{
			name: "MountNameWithColon",
			mutate: func(c *Config) {
				c.Mounts = []MountConfig{{Name: "a:b", FilesystemConfig: FilesystemConfig{Type: "memory"}}}
			},
			wantErr: "Name",
		},
		{
			name: "DuplicateMount",
			mutate: func(c *Config) {
				m := MountConfig{Name: "tmp", FilesystemConfig: FilesystemConfig{Type: "memory"}}
				c.Mounts = []MountConfig{m, m}
			},
			wantErr: "already used by mounts[0]",
		},
		{
			name: "ConsoleNameReserved",
			mutate: func(c *Config) {
				c.Mounts = []MountConfig{{Name: "con", FilesystemConfig: FilesystemConfig{Type: "memory"}}}
			},
			wantErr: "console",
		},
		{
			name: "ConsoleNameFreeWhenConsoleDisabled",
			mutate: func(c *Config) {
				c.Kernel.Console = &off
				c.Mounts = []MountConfig{{Name: "con", FilesystemConfig: FilesystemConfig{Type: "memory"}}}
			},
		},
		{
			name:    "EmptyListen",
			mutate:  func(c *Config) { c.Metrics.Listen = "" },
			wantErr: "Listen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected valid config, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "debug"

	if err := Validate(cfg); err != nil {
		t.Fatalf("Lowercase level should validate: %v", err)
	}

	ApplyDefaults(cfg)
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized 'DEBUG', got %q", cfg.Logging.Level)
	}
}
