package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Mode selects the gateway lifecycle.
type Mode string

const (
	// ModePrivate serves a single owning client: the process exits when
	// that client disconnects, and the handshake key is enforced.
	ModePrivate Mode = "private"
	// ModePublic serves many clients and stays up until told to stop.
	ModePublic Mode = "public"
)

const (
	MinWorkers = 1
	MaxWorkers = 10
)

// Server configures one gateway process.
type Server struct {
	// Ports are the data listener ports. 0 asks the OS for a free port.
	Ports []int
	// ControlPorts are the control and flush listener ports, in that
	// order. 0 asks the OS for a free port.
	ControlPorts []int
	// Workers is the per-port handler pool size, 1 to 10.
	Workers int
	// Backlog bounds the per-port pending connection queue.
	Backlog int
	// Mode is private or public.
	Mode Mode
	// Key is the shared session key written to the discovery file and
	// required on handshake in private mode.
	Key int
	// WorkDir holds the discovery file. Empty means os.TempDir in
	// private mode.
	WorkDir string
	// LogLevel names a zerolog level; empty means info.
	LogLevel string
}

// DefaultServer returns a single-port private configuration with
// OS-assigned ports.
func DefaultServer(key int) Server {
	return Server{
		Ports:        []int{0},
		ControlPorts: []int{0, 0},
		Workers:      MinWorkers,
		Backlog:      0,
		Mode:         ModePrivate,
		Key:          key,
		WorkDir:      os.TempDir(),
	}
}

type fileConfig struct {
	Ports        []int  `toml:"ports"`
	ControlPorts []int  `toml:"control_ports"`
	Workers      int    `toml:"workers"`
	Backlog      int    `toml:"backlog"`
	Mode         string `toml:"mode"`
	Key          int    `toml:"key"`
	WorkDir      string `toml:"work_dir"`
	LogLevel     string `toml:"log_level"`
}

// Load reads a TOML file and overlays the defined keys on top of the
// defaults for the given key.
func Load(path string, key int) (Server, error) {
	cfg := DefaultServer(key)

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Server{}, fmt.Errorf("load gateway config: %w", err)
	}

	if meta.IsDefined("ports") {
		cfg.Ports = raw.Ports
	}
	if meta.IsDefined("control_ports") {
		cfg.ControlPorts = raw.ControlPorts
	}
	if meta.IsDefined("workers") {
		cfg.Workers = raw.Workers
	}
	if meta.IsDefined("backlog") {
		cfg.Backlog = raw.Backlog
	}
	if meta.IsDefined("mode") {
		cfg.Mode = Mode(strings.TrimSpace(raw.Mode))
	}
	if meta.IsDefined("key") {
		cfg.Key = raw.Key
	}
	if meta.IsDefined("work_dir") {
		cfg.WorkDir = strings.TrimSpace(raw.WorkDir)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects unusable configurations before any socket is opened.
func (s *Server) Validate() error {
	if len(s.Ports) == 0 {
		return fmt.Errorf("config: at least one data port is required")
	}
	for _, p := range s.Ports {
		if err := validatePort(p); err != nil {
			return err
		}
	}
	if len(s.ControlPorts) != 2 {
		return fmt.Errorf("config: control_ports needs a control and a flush port, got %d", len(s.ControlPorts))
	}
	for _, p := range s.ControlPorts {
		if err := validatePort(p); err != nil {
			return err
		}
	}
	if s.Workers < MinWorkers || s.Workers > MaxWorkers {
		return fmt.Errorf("config: workers must be between %d and %d, got %d", MinWorkers, MaxWorkers, s.Workers)
	}
	if s.Backlog < 0 {
		s.Backlog = 0
	}
	switch s.Mode {
	case ModePrivate, ModePublic:
	default:
		return fmt.Errorf("config: mode must be %q or %q, got %q", ModePrivate, ModePublic, s.Mode)
	}
	if s.Mode == ModePrivate && s.WorkDir == "" {
		s.WorkDir = os.TempDir()
	}
	return nil
}

// validatePort accepts 0 (OS-assigned) or a non-privileged port.
func validatePort(p int) error {
	if p == 0 {
		return nil
	}
	if p < 1024 || p > 65535 {
		return fmt.Errorf("config: port %d outside the allowed 1024-65535 range", p)
	}
	return nil
}
