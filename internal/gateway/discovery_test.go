package gateway

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/refgate/refgate/internal/config"
	"github.com/refgate/refgate/internal/testutil/testlog"
)

func TestDiscoveryEncodeParseRoundTrip(t *testing.T) {
	d := Discovery{Key: 7, ControlPort: 18011, FlushPort: 18012, DataPorts: []int{18013, 18014}}
	body := d.encode()
	if body != "7;18011:18012;18013:18014" {
		t.Fatalf("encoded payload: %q", body)
	}
	parsed, err := parseDiscovery(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Key != 7 || parsed.ControlPort != 18011 || parsed.FlushPort != 18012 {
		t.Fatalf("parsed %+v", parsed)
	}
	if len(parsed.DataPorts) != 2 || parsed.DataPorts[1] != 18014 {
		t.Fatalf("data ports %v", parsed.DataPorts)
	}
}

func TestParseDiscoveryRejectsMalformedPayloads(t *testing.T) {
	for _, body := range []string{"", "7;18011:18012", "x;1:2;3", "7;1;3", "7;1:2;"} {
		if _, err := parseDiscovery(body); err == nil {
			t.Fatalf("payload %q must be rejected", body)
		}
	}
}

func TestWriteDiscoveryPublishesBoundPorts(t *testing.T) {
	srv := startServer(t, config.ModePrivate)
	path, err := srv.WriteDiscovery()
	if err != nil {
		t.Fatalf("write discovery: %v", err)
	}
	d, err := WaitDiscovery(path, time.Second)
	if err != nil {
		t.Fatalf("wait discovery: %v", err)
	}
	if d.Key != testKey {
		t.Fatalf("discovery key %d, want %d", d.Key, testKey)
	}
	if d.ControlPort != srv.ControlPort() || d.FlushPort != srv.FlushPort() {
		t.Fatalf("control ports %d/%d, want %d/%d", d.ControlPort, d.FlushPort, srv.ControlPort(), srv.FlushPort())
	}
	if len(d.DataPorts) != 1 || d.DataPorts[0] != srv.DataPorts()[0] {
		t.Fatalf("data ports %v, want %v", d.DataPorts, srv.DataPorts())
	}
	if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
		t.Fatalf("lock file must be gone after publish")
	}
}

func TestReadDiscoveryFailsWhileLocked(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, DiscoveryFileName)
	if err := os.WriteFile(path, []byte("7;1025:1026;1027"), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	if err := os.WriteFile(path+".lock", nil, 0o644); err != nil {
		t.Fatalf("write lock: %v", err)
	}
	if _, err := ReadDiscovery(path); err == nil {
		t.Fatalf("locked discovery file must not be readable")
	}
	if err := os.Remove(path + ".lock"); err != nil {
		t.Fatalf("remove lock: %v", err)
	}
	if _, err := ReadDiscovery(path); err != nil {
		t.Fatalf("unlocked discovery file must parse: %v", err)
	}
}
