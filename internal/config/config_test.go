package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "votectl.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
name = "hall-a"

[[controllers]]
id = "ctl-1"
addr = "10.0.0.11:9301"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "hall-a" {
		t.Fatalf("name not honored: %q", cfg.Name)
	}
	if cfg.ControlAddr != ":9300" || cfg.ListenUDP != ":9301" {
		t.Fatalf("address defaults missing: %+v", cfg)
	}
	if cfg.MTU != 128 || cfg.MaxControllers != 5 {
		t.Fatalf("limit defaults missing: %+v", cfg)
	}
	pol := cfg.SessionPolicy()
	if pol.Retry.InitialDelay != 500*time.Millisecond || pol.Retry.MaxAttempts != 5 {
		t.Fatalf("retry defaults missing: %+v", pol.Retry)
	}
}

func TestLoadRejectsTinyMTU(t *testing.T) {
	path := writeConfig(t, `mtu = 4`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "mtu") {
		t.Fatalf("expected mtu validation error, got %v", err)
	}
}

func TestLoadRejectsDuplicateControllers(t *testing.T) {
	path := writeConfig(t, `
[[controllers]]
id = "ctl-1"
addr = "10.0.0.11:9301"

[[controllers]]
id = "ctl-1"
addr = "10.0.0.12:9301"
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestLoadRejectsControllerWithoutAddr(t *testing.T) {
	path := writeConfig(t, `
[[controllers]]
id = "ctl-1"
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "addr") {
		t.Fatalf("expected addr error, got %v", err)
	}
}

func TestLoadRejectsOverfullRoster(t *testing.T) {
	path := writeConfig(t, `
max_controllers = 1

[[controllers]]
id = "ctl-1"
addr = "10.0.0.11:9301"

[[controllers]]
id = "ctl-2"
addr = "10.0.0.12:9301"
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "max_controllers") {
		t.Fatalf("expected roster bound error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
