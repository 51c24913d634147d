package gateway

import (
	"sync"

	"github.com/refgate/refgate/internal/dispatch"
	"github.com/refgate/refgate/internal/observability"
	"github.com/refgate/refgate/internal/registry"
)

// Session is the per-client state: one object registry and one dispatcher
// bound to it. All connections from the same client address share it, so
// references created on one data port resolve on another.
type Session struct {
	Host       string
	Dispatcher *dispatch.Dispatcher
}

// sessionManager keys sessions by the client's address host. Sessions are
// created on first use and dropped on an orderly close.
type sessionManager struct {
	mu       sync.Mutex
	cat      *dispatch.Catalog
	sessions map[string]*Session
}

func newSessionManager(cat *dispatch.Catalog) *sessionManager {
	return &sessionManager{cat: cat, sessions: make(map[string]*Session)}
}

// get returns the session for a host, creating it on first use.
func (m *sessionManager) get(host string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[host]; ok {
		return sess
	}
	sess := &Session{
		Host:       host,
		Dispatcher: dispatch.New(m.cat, registry.New()),
	}
	m.sessions[host] = sess
	observability.SessionOpened()
	return sess
}

// lookup returns an existing session without creating one.
func (m *sessionManager) lookup(host string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[host]
	return sess, ok
}

// drop discards a session so its references cannot leak across client
// restarts from the same address.
func (m *sessionManager) drop(host string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[host]; ok {
		delete(m.sessions, host)
		observability.SessionClosed()
	}
}

func (m *sessionManager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// totalObjects sums live references across all sessions for the registry
// size gauge.
func (m *sessionManager) totalObjects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, sess := range m.sessions {
		total += sess.Dispatcher.Registry().Size()
	}
	return total
}
