package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultServerIsValid(t *testing.T) {
	cfg := DefaultServer(42)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Mode != ModePrivate || cfg.Key != 42 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.WorkDir == "" {
		t.Fatalf("private default must have a work dir")
	}
}

func TestValidateRejectsPrivilegedPort(t *testing.T) {
	cfg := DefaultServer(1)
	cfg.Ports = []int{80}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("port 80 must be rejected")
	}
}

func TestValidateAcceptsOSAssignedPort(t *testing.T) {
	cfg := DefaultServer(1)
	cfg.Ports = []int{0, 18000}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("port 0 must be accepted: %v", err)
	}
}

func TestValidateWorkerBounds(t *testing.T) {
	for _, workers := range []int{0, 11} {
		cfg := DefaultServer(1)
		cfg.Workers = workers
		if err := cfg.Validate(); err == nil {
			t.Fatalf("workers=%d must be rejected", workers)
		}
	}
	cfg := DefaultServer(1)
	cfg.Workers = 10
	if err := cfg.Validate(); err != nil {
		t.Fatalf("workers=10 must be accepted: %v", err)
	}
}

func TestValidateClampsNegativeBacklog(t *testing.T) {
	cfg := DefaultServer(1)
	cfg.Backlog = -5
	if err := cfg.Validate(); err != nil {
		t.Fatalf("negative backlog must clamp, not fail: %v", err)
	}
	if cfg.Backlog != 0 {
		t.Fatalf("backlog clamped to %d, want 0", cfg.Backlog)
	}
}

func TestValidateNeedsBothControlPorts(t *testing.T) {
	cfg := DefaultServer(1)
	cfg.ControlPorts = []int{18011}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("single control port must be rejected")
	}
}

func TestLoadOverlaysDefinedKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refgate.toml")
	body := strings.Join([]string{
		`ports = [18010, 18011]`,
		`workers = 4`,
		`mode = "public"`,
		`log_level = "debug"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, 99)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Ports) != 2 || cfg.Ports[0] != 18010 {
		t.Fatalf("ports not overlaid: %v", cfg.Ports)
	}
	if cfg.Workers != 4 || cfg.Mode != ModePublic || cfg.LogLevel != "debug" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Key != 99 {
		t.Fatalf("undefined key must keep the default, got %d", cfg.Key)
	}
	if len(cfg.ControlPorts) != 2 {
		t.Fatalf("undefined control_ports must keep defaults: %v", cfg.ControlPorts)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refgate.toml")
	if err := os.WriteFile(path, []byte(`workers = 99`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path, 1); err == nil {
		t.Fatalf("invalid workers must fail load")
	}
}
