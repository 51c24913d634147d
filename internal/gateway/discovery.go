package gateway

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DiscoveryFileName is the fixed name spawning clients poll for.
const DiscoveryFileName = "RefgateTmpFile"

var ErrDiscoveryTimeout = errors.New("gateway: discovery file not ready")

// Discovery is the handoff a spawning client reads to find the gateway.
type Discovery struct {
	Key         int
	ControlPort int
	FlushPort   int
	DataPorts   []int
}

// WriteDiscovery publishes the bound ports for the spawning client. The
// lock file exists for the whole write, so a reader that sees no lock
// sees complete data.
func (s *Server) WriteDiscovery() (string, error) {
	d := Discovery{
		Key:         s.cfg.Key,
		ControlPort: s.ControlPort(),
		FlushPort:   s.FlushPort(),
		DataPorts:   s.DataPorts(),
	}
	path := filepath.Join(s.cfg.WorkDir, DiscoveryFileName)
	lock := path + ".lock"
	if err := os.WriteFile(lock, nil, 0o644); err != nil {
		return "", fmt.Errorf("gateway: create discovery lock: %w", err)
	}
	if err := os.WriteFile(path, []byte(d.encode()), 0o644); err != nil {
		_ = os.Remove(lock)
		return "", fmt.Errorf("gateway: write discovery file: %w", err)
	}
	if err := os.Remove(lock); err != nil {
		return "", fmt.Errorf("gateway: release discovery lock: %w", err)
	}
	return path, nil
}

func (d Discovery) encode() string {
	ports := make([]string, 0, len(d.DataPorts))
	for _, p := range d.DataPorts {
		ports = append(ports, strconv.Itoa(p))
	}
	return fmt.Sprintf("%d;%d:%d;%s", d.Key, d.ControlPort, d.FlushPort, strings.Join(ports, ":"))
}

// ReadDiscovery parses a discovery file. It fails while the lock file
// still exists.
func ReadDiscovery(path string) (Discovery, error) {
	if _, err := os.Stat(path + ".lock"); err == nil {
		return Discovery{}, fmt.Errorf("gateway: discovery file %s still locked", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Discovery{}, fmt.Errorf("gateway: read discovery file: %w", err)
	}
	return parseDiscovery(strings.TrimSpace(string(data)))
}

// WaitDiscovery polls until the discovery file is readable and unlocked.
func WaitDiscovery(path string, timeout time.Duration) (Discovery, error) {
	deadline := time.Now().Add(timeout)
	for {
		d, err := ReadDiscovery(path)
		if err == nil {
			return d, nil
		}
		if time.Now().After(deadline) {
			return Discovery{}, fmt.Errorf("%w: %v", ErrDiscoveryTimeout, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func parseDiscovery(body string) (Discovery, error) {
	parts := strings.Split(body, ";")
	if len(parts) != 3 {
		return Discovery{}, fmt.Errorf("gateway: malformed discovery payload %q", body)
	}
	key, err := strconv.Atoi(parts[0])
	if err != nil {
		return Discovery{}, fmt.Errorf("gateway: malformed discovery key %q", parts[0])
	}
	ctrl := strings.Split(parts[1], ":")
	if len(ctrl) != 2 {
		return Discovery{}, fmt.Errorf("gateway: malformed control ports %q", parts[1])
	}
	controlPort, err := strconv.Atoi(ctrl[0])
	if err != nil {
		return Discovery{}, fmt.Errorf("gateway: malformed control port %q", ctrl[0])
	}
	flushPort, err := strconv.Atoi(ctrl[1])
	if err != nil {
		return Discovery{}, fmt.Errorf("gateway: malformed flush port %q", ctrl[1])
	}
	d := Discovery{Key: key, ControlPort: controlPort, FlushPort: flushPort}
	for _, raw := range strings.Split(parts[2], ":") {
		if raw == "" {
			continue
		}
		p, err := strconv.Atoi(raw)
		if err != nil {
			return Discovery{}, fmt.Errorf("gateway: malformed data port %q", raw)
		}
		d.DataPorts = append(d.DataPorts, p)
	}
	if len(d.DataPorts) == 0 {
		return Discovery{}, fmt.Errorf("gateway: discovery payload lists no data ports")
	}
	return d, nil
}
