package gateway

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/refgate/refgate/internal/observability"
	"github.com/refgate/refgate/internal/protocol"
)

// Control channel commands. The channel serves one caller at a time; each
// connection carries exactly one command.
const (
	CommandEmergencyShutdown = "emergencyShutdown"
	CommandSoftExit          = "softExit"
)

// controlLoop accepts control connections one at a time. softExit ends the
// loop; emergencyShutdown ends the process without cleanup.
func (s *Server) controlLoop(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			return &protocol.TransportFailure{Op: "control accept", Err: err}
		}
		if stop := s.handleControl(conn); stop {
			return nil
		}
	}
}

func (s *Server) handleControl(conn net.Conn) bool {
	defer conn.Close()
	if err := writeLine(conn, protocol.ReplyCallAccepted); err != nil {
		return false
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.TrimSpace(line) {
	case CommandEmergencyShutdown:
		s.log.Error().Msg("emergency shutdown requested")
		s.exit(1)
		return true
	case CommandSoftExit:
		s.log.Info().Msg("soft exit requested")
		s.signalDone()
		return true
	default:
		s.log.Warn().Str("command", strings.TrimSpace(line)).Msg("unknown control command")
		return false
	}
}

// SoftExit asks the control channel to stop by dialing it over loopback,
// which also unblocks an accept that would otherwise wait forever.
func (s *Server) SoftExit() error {
	port := s.ControlPort()
	if port == 0 {
		return nil
	}
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := bufio.NewReader(conn).ReadString('\n'); err != nil {
		return err
	}
	return writeLine(conn, CommandSoftExit)
}

// flushLoop serves the receiver that drains reference-release batches sent
// by client finalizers outside the request loop.
func (s *Server) flushLoop(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			return &protocol.TransportFailure{Op: "flush accept", Err: err}
		}
		s.group.Go(func() error {
			s.handleFlushConn(conn)
			return nil
		})
	}
}

// handleFlushConn releases each incoming batch against the session of the
// sending client. Lines that are not flush requests are ignored; the
// finalizer has nobody to report errors to.
func (s *Server) handleFlushConn(conn net.Conn) {
	s.trackConn(conn, "")
	defer func() {
		s.untrackConn(conn, "")
		_ = conn.Close()
	}()
	if s.closing.Load() {
		return
	}
	host := remoteHost(conn.RemoteAddr())
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		req, err := protocol.DecodeRequest(line)
		if err != nil || req.Op != protocol.OpFlush {
			continue
		}
		sess, ok := s.sessions.lookup(host)
		if !ok {
			continue
		}
		if _, err := sess.Dispatcher.Execute(req); err != nil {
			s.log.Warn().Err(err).Str("client", host).Msg("flush batch failed")
			continue
		}
		observability.SetRegistrySize(s.sessions.totalObjects())
	}
}
