package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/refgate/refgate/internal/config"
)

func TestBuildConfigDefaults(t *testing.T) {
	opts, err := parseFlags([]string{"-key", "5"})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err := buildConfig(opts)
	if err != nil {
		t.Fatalf("build config: %v", err)
	}
	if cfg.Key != 5 || cfg.Mode != config.ModePrivate {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestBuildConfigFlagOverrides(t *testing.T) {
	opts, err := parseFlags([]string{
		"-key", "5",
		"-ports", "18010, 18011",
		"-control-ports", "18012,18013",
		"-workers", "3",
		"-mode", "public",
	})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err := buildConfig(opts)
	if err != nil {
		t.Fatalf("build config: %v", err)
	}
	if len(cfg.Ports) != 2 || cfg.Ports[1] != 18011 {
		t.Fatalf("ports: %v", cfg.Ports)
	}
	if cfg.Workers != 3 || cfg.Mode != config.ModePublic {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestBuildConfigFlagsBeatFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refgate.toml")
	if err := os.WriteFile(path, []byte("workers = 2\nmode = \"public\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	opts, err := parseFlags([]string{"-config", path, "-workers", "7"})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err := buildConfig(opts)
	if err != nil {
		t.Fatalf("build config: %v", err)
	}
	if cfg.Workers != 7 {
		t.Fatalf("flag must beat file, got workers=%d", cfg.Workers)
	}
	if cfg.Mode != config.ModePublic {
		t.Fatalf("file value must survive, got mode=%s", cfg.Mode)
	}
}

func TestBuildConfigRejectsBadMode(t *testing.T) {
	opts, err := parseFlags([]string{"-mode", "silly"})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if _, err := buildConfig(opts); err == nil {
		t.Fatalf("invalid mode must fail")
	}
}
