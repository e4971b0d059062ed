package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved path %q, want %q", resolved, path)
	}
	if cfg.Eject.LockAttempts != 5 || cfg.Eject.RemovalAttempts != 3 {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Eject)
	}
	if cfg.Settle() != 500*time.Millisecond {
		t.Fatalf("unexpected settle %v", cfg.Settle())
	}
	if cfg.DisplayWindow() != 3*time.Second {
		t.Fatalf("unexpected display window %v", cfg.DisplayWindow())
	}
	if cfg.Daemon.SocketPath == "" {
		t.Fatal("socket path should default to a non-empty value")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[daemon]
socket_path = "` + strings.ReplaceAll(filepath.Join(dir, "s.sock"), `\`, `\\`) + `"

[logging]
level = "debug"
format = "json"

[eject]
lock_attempts = 2
lock_delay_ms = 50
removal_attempts = 1
removal_delay_ms = 100
settle_ms = 10
display_window_seconds = 1
dismount_tool = "fsutil"

[sampler]
interval_seconds = 7
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging config %+v", cfg.Logging)
	}
	if cfg.Eject.LockAttempts != 2 || cfg.LockDelay() != 50*time.Millisecond {
		t.Fatalf("unexpected eject config %+v", cfg.Eject)
	}
	if cfg.SamplerInterval() != 7*time.Second {
		t.Fatalf("unexpected sampler interval %v", cfg.SamplerInterval())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero lock attempts", func(c *Config) { c.Eject.LockAttempts = 0 }},
		{"zero removal attempts", func(c *Config) { c.Eject.RemovalAttempts = 0 }},
		{"negative delay", func(c *Config) { c.Eject.LockDelayMS = -1 }},
		{"empty dismount tool", func(c *Config) { c.Eject.DismountTool = "" }},
		{"bad format", func(c *Config) { c.Logging.Format = "yaml" }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"zero sampler interval", func(c *Config) { c.Sampler.IntervalSeconds = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteSample(path); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if err := WriteSample(path); err == nil {
		t.Fatal("expected overwrite refusal")
	}

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config invalid: %v", err)
	}
}
