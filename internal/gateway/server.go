package gateway

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/refgate/refgate/internal/auth"
	"github.com/refgate/refgate/internal/config"
	"github.com/refgate/refgate/internal/dispatch"
	"github.com/refgate/refgate/internal/observability"
	"github.com/refgate/refgate/internal/protocol"
)

var ErrAlreadyStarted = errors.New("gateway: server already started")

// Server owns the data listeners, the control channel, the flush receiver
// and the session map of one gateway process.
type Server struct {
	cfg       config.Server
	cat       *dispatch.Catalog
	log       zerolog.Logger
	runID     string
	validator auth.Validator

	sessions *sessionManager

	// connMu guards the open-connection set and the per-host worker
	// counts that decide when a session may be dropped.
	connMu sync.Mutex
	conns  map[net.Conn]struct{}
	active map[string]int

	mu        sync.Mutex
	started   bool
	listeners []net.Listener
	control   net.Listener
	flush     net.Listener

	group   errgroup.Group
	closing atomic.Bool

	doneOnce sync.Once
	done     chan struct{}

	// exit is swapped in tests so emergencyShutdown is observable.
	exit func(int)
}

// New validates the configuration and builds an unstarted server.
func New(cfg config.Server, cat *dispatch.Catalog, logger zerolog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cat == nil {
		cat = dispatch.NewCatalog()
	}
	return &Server{
		cfg:       cfg,
		cat:       cat,
		log:       logger,
		runID:     uuid.NewString(),
		validator: auth.StaticKey{Key: cfg.Key},
		sessions:  newSessionManager(cat),
		conns:     make(map[net.Conn]struct{}),
		active:    make(map[string]int),
		done:      make(chan struct{}),
		exit:      os.Exit,
	}, nil
}

// Catalog exposes the symbol table so hosts can register their types
// before or after start.
func (s *Server) Catalog() *dispatch.Catalog { return s.cat }

// Start binds every listener and launches the accept loops, worker pools,
// control channel and flush receiver. A port that cannot be bound fails
// the whole start.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	for _, port := range s.cfg.Ports {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			s.closeListenersLocked()
			return &protocol.PortBindingFailure{Port: port, Err: err}
		}
		s.listeners = append(s.listeners, ln)
	}
	control, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.ControlPorts[0]))
	if err != nil {
		s.closeListenersLocked()
		return &protocol.PortBindingFailure{Port: s.cfg.ControlPorts[0], Err: err}
	}
	s.control = control
	flush, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.ControlPorts[1]))
	if err != nil {
		s.closeListenersLocked()
		return &protocol.PortBindingFailure{Port: s.cfg.ControlPorts[1], Err: err}
	}
	s.flush = flush

	for _, ln := range s.listeners {
		ln := ln
		queue := make(chan net.Conn, s.cfg.Backlog)
		s.group.Go(func() error { return s.acceptLoop(ln, queue) })
		for i := 0; i < s.cfg.Workers; i++ {
			s.group.Go(func() error {
				for conn := range queue {
					s.handleConn(conn)
				}
				return nil
			})
		}
	}
	s.group.Go(func() error { return s.controlLoop(s.control) })
	s.group.Go(func() error { return s.flushLoop(s.flush) })

	s.started = true
	s.log.Info().
		Str("run_id", s.runID).
		Str("mode", string(s.cfg.Mode)).
		Ints("data_ports", s.DataPorts()).
		Int("control_port", s.ControlPort()).
		Int("flush_port", s.FlushPort()).
		Msg("gateway listening")
	return nil
}

// DataPorts returns the bound data ports, resolving OS-assigned ones.
func (s *Server) DataPorts() []int {
	ports := make([]int, 0, len(s.listeners))
	for _, ln := range s.listeners {
		ports = append(ports, boundPort(ln))
	}
	return ports
}

func (s *Server) ControlPort() int { return boundPort(s.control) }

func (s *Server) FlushPort() int { return boundPort(s.flush) }

// Done is closed when the server decides to stop: a private client
// disconnected, or a softExit arrived on the control channel. The owner
// reacts by calling Shutdown.
func (s *Server) Done() <-chan struct{} { return s.done }

// Shutdown closes every listener and every open connection, then waits
// for the loops to drain. Closing the connections unblocks workers parked
// in a read; a connection in flight notices the stop between operation
// completion and reply and falls out without answering.
func (s *Server) Shutdown() error {
	s.signalDone()
	s.mu.Lock()
	s.closeListenersLocked()
	s.mu.Unlock()
	s.closeConns()
	return s.group.Wait()
}

func (s *Server) signalDone() {
	s.closing.Store(true)
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Server) closeListenersLocked() {
	for _, ln := range s.listeners {
		_ = ln.Close()
	}
	if s.control != nil {
		_ = s.control.Close()
	}
	if s.flush != nil {
		_ = s.flush.Close()
	}
}

// trackConn records an open connection; a non-empty host also counts it
// as an active worker for that client address.
func (s *Server) trackConn(conn net.Conn, host string) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.conns[conn] = struct{}{}
	if host != "" {
		s.active[host]++
	}
}

// untrackConn forgets a connection and reports how many workers still
// service the host.
func (s *Server) untrackConn(conn net.Conn, host string) int {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.conns, conn)
	if host == "" {
		return 0
	}
	s.active[host]--
	remaining := s.active[host]
	if remaining <= 0 {
		delete(s.active, host)
		return 0
	}
	return remaining
}

func (s *Server) closeConns() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

// acceptLoop feeds the bounded queue. A full queue blocks accepting, which
// is the backpressure contract for the pending-connection limit.
func (s *Server) acceptLoop(ln net.Listener, queue chan<- net.Conn) error {
	defer close(queue)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			s.log.Error().Err(err).Msg("accept failed")
			return &protocol.TransportFailure{Op: "accept", Err: err}
		}
		observability.RecordConnection()
		queue <- conn
	}
}

// connOutcome is how one connection's request loop ended.
type connOutcome int

const (
	connRejected connOutcome = iota
	connClosed
	connLost
)

// handleConn runs the request loop of one client connection and settles
// the session afterwards. The client's bridge survives as long as any
// worker still services its address; the last worker out drops it.
func (s *Server) handleConn(conn net.Conn) {
	host := remoteHost(conn.RemoteAddr())
	logger := s.log.With().Str("client", host).Logger()

	s.trackConn(conn, host)
	if s.closing.Load() {
		s.untrackConn(conn, host)
		_ = conn.Close()
		return
	}
	outcome := s.serveConn(conn, host, logger)
	remaining := s.untrackConn(conn, host)
	_ = conn.Close()

	if outcome == connRejected {
		return
	}
	if remaining == 0 {
		s.sessions.drop(host)
		observability.SetRegistrySize(s.sessions.totalObjects())
	}
	if s.cfg.Mode == config.ModePrivate && !s.closing.Load() {
		logger.Info().Msg("private client gone, stopping")
		s.signalDone()
	}
}

func (s *Server) serveConn(conn net.Conn, host string, logger zerolog.Logger) connOutcome {
	reader := bufio.NewReader(conn)
	if s.cfg.Mode == config.ModePrivate {
		line, err := reader.ReadString('\n')
		if err != nil {
			logger.Warn().Err(err).Msg("connection lost before handshake")
			return connRejected
		}
		if err := s.validator.Validate(line); err != nil {
			logger.Warn().Msg("handshake key rejected")
			return connRejected
		}
	}

	sess := s.sessions.get(host)
	logger.Debug().Int("sessions", s.sessions.count()).Msg("client connected")

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if !s.closing.Load() && err != io.EOF {
				logger.Warn().Err(err).Msg("connection lost")
			}
			return connLost
		}
		req, err := protocol.DecodeRequest(line)
		if err != nil {
			if werr := writeLine(conn, protocol.EncodeError(err)); werr != nil {
				return connLost
			}
			continue
		}

		if req.Op == protocol.OpClose {
			_ = writeLine(conn, protocol.ReplyClosing)
			logger.Debug().Msg("client closed connection")
			return connClosed
		}

		reply, err := sess.Dispatcher.Execute(req)
		observability.RecordRequest(string(req.Op), err)
		// A stop that landed while the operation ran suppresses the reply.
		if s.closing.Load() {
			return connLost
		}
		out := reply
		switch {
		case err != nil:
			out = protocol.EncodeError(err)
		case out == "":
			out = protocol.ReplyDone
		}
		if werr := writeLine(conn, out); werr != nil {
			logger.Warn().Err(werr).Msg("reply write failed")
			return connLost
		}
		if req.Op == protocol.OpFlush {
			observability.SetRegistrySize(s.sessions.totalObjects())
		}
	}
}

func writeLine(w io.Writer, line string) error {
	_, err := io.WriteString(w, line+"\n")
	return err
}

func remoteHost(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func boundPort(ln net.Listener) int {
	if ln == nil {
		return 0
	}
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}
