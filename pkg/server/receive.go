package server

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rotisserie/eris"

	"rtype/pkg/metrics"
	"rtype/pkg/protocol"
	"rtype/pkg/transport"
)

// receiveLoop reads datagrams until the running flag is cleared. Every read
// is bounded by the read timeout so the flag is checked at least that often.
// Decode and transient socket errors are logged and skipped.
func (s *Server) receiveLoop(ctx context.Context) error {
	buf := make([]byte, protocol.MaxDatagramSize)

	for s.running.Load() {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout)); err != nil {
			if transport.IsClosed(err) {
				return s.closedErr(ctx, err)
			}
			s.logger.Warn("failed to set read deadline", "error", err)
		}

		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			switch {
			case transport.IsTimeout(err):
			case transport.IsClosed(err):
				return s.closedErr(ctx, err)
			default:
				s.logger.Warn("failed to read datagram", "error", err)
			}
			continue
		}

		s.handleDatagram(buf[:n], addr, time.Now())
	}

	s.logger.Debug("receive loop stopped")
	return nil
}

func (s *Server) closedErr(ctx context.Context, err error) error {
	if !s.running.Load() || ctx.Err() != nil {
		return nil
	}
	return eris.Wrap(err, "server socket closed")
}

// handleDatagram runs on the receive loop. It touches only the session table
// and the per-session mailboxes.
func (s *Server) handleDatagram(data []byte, addr net.Addr, now time.Time) {
	msg, err := protocol.Decode(data)
	if err != nil {
		s.stats.malformed.Add(1)
		s.metrics.Incr(metrics.MalformedPackets)
		s.logger.Debug("dropped malformed packet", "peer", addr, "size", len(data), "error", err)
		return
	}

	ses, created := s.sessions.resolve(addr, now)
	if ses == nil {
		if _, ok := msg.(protocol.ConnectRequest); ok {
			s.send(addr, protocol.Disconnect{Reason: protocol.ReasonServerFull})
		}
		s.logger.Debug("session table full, packet dropped", "peer", addr)
		return
	}
	if created {
		s.logger.Debug("new peer", "peer", addr)
	}
	ses.touch(now)

	switch m := msg.(type) {
	case protocol.ConnectRequest:
		s.handleConnect(ses, m)

	case protocol.Input:
		if ses.State() != SessionActive || m.ClientID != ses.clientID {
			s.stats.rejectedInputs.Add(1)
			return
		}
		if !ses.inputs.offer(m) {
			s.stats.staleInputs.Add(1)
			s.metrics.Incr(metrics.StaleInputs)
		}

	case protocol.Heartbeat:
		// liveness only, refreshed above

	case protocol.Disconnect:
		if ses.leave(protocol.ReasonQuit) {
			s.logger.Info("peer is leaving", "peer", addr, "client", ses.clientID)
		}

	default:
		s.logger.Debug("unexpected message from peer", "peer", addr, "type", msg.Tag())
	}
}

func (s *Server) handleConnect(ses *Session, m protocol.ConnectRequest) {
	switch ses.State() {
	case SessionActive:
		// the accept was lost, send it again
		if id, ok := ses.Entity(); ok {
			s.send(ses.addr, protocol.ConnectAccept{ClientID: ses.clientID, EntityID: uint32(id)})
		}
		return
	case SessionUnknown:
	default:
		return
	}

	queued, err := s.sessions.admit(ses, m.Name)
	if errors.Is(err, ErrServerFull) {
		s.logger.Info("connect refused", "peer", ses.addr, "name", m.Name, "error", err)
		s.sessions.remove(ses)
		s.send(ses.addr, protocol.Disconnect{Reason: protocol.ReasonServerFull})
		return
	}
	if queued {
		s.logger.Debug("join queued", "peer", ses.addr, "client", ses.clientID, "name", m.Name)
	}
}
