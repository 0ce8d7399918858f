package client

import (
	"net"
	"time"

	"github.com/rotisserie/eris"

	"rtype/pkg/metrics"
	"rtype/pkg/protocol"
	"rtype/pkg/transport"
)

// receiveLoop reads datagrams while the client runs. Every read is bounded
// by the read timeout so Close is noticed within one timeout. A closed
// socket ends the loop and the session.
func (c *Client) receiveLoop() {
	defer close(c.done)
	buf := make([]byte, protocol.MaxDatagramSize)

	for c.running.Load() {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout)); err != nil && !transport.IsClosed(err) {
			c.logger.Warn("failed to set read deadline", "error", err)
		}

		n, addr, err := c.conn.ReadFrom(buf)
		if err != nil {
			switch {
			case transport.IsTimeout(err):
			case transport.IsClosed(err):
				if c.setDisconnected(c.Reason(), eris.Wrap(err, "client socket closed")) {
					c.logger.Error("socket closed under a live session", "error", err)
				}
				return
			default:
				c.logger.Warn("failed to read datagram", "error", err)
			}
			continue
		}

		c.handleDatagram(buf[:n], addr, time.Now())
	}
	c.logger.Debug("receive loop stopped")
}

func (c *Client) handleDatagram(data []byte, from net.Addr, now time.Time) {
	if !transport.SameAddr(from, c.server) {
		c.logger.Debug("ignored datagram from stranger", "peer", from)
		return
	}

	msg, err := protocol.Decode(data)
	if err != nil {
		c.malformed.Add(1)
		c.metrics.Incr(metrics.MalformedPackets)
		c.logger.Debug("dropped malformed packet", "size", len(data), "error", err)
		return
	}
	c.lastSeen.Store(now.UnixNano())

	switch m := msg.(type) {
	case protocol.ConnectAccept:
		c.accept(m)
	case protocol.Snapshot:
		c.stage(m)
	case protocol.Disconnect:
		var cause error = ErrNotConnected
		if c.State() == StateConnecting {
			cause = eris.Wrapf(ErrConnectRefused, "reason %s", m.Reason)
		}
		if c.setDisconnected(m.Reason, cause) {
			c.logger.Info("disconnected by server", "reason", m.Reason)
		}
	case protocol.Heartbeat:
	default:
		c.logger.Debug("unexpected message from server", "type", msg.Tag())
	}
}

func (c *Client) accept(m protocol.ConnectAccept) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// a resent accept after the first one
	if c.State() != StateConnecting {
		return
	}
	c.clientID.Store(m.ClientID)
	c.entity.Store(m.EntityID)
	c.state.Store(int32(StateConnected))
	if c.pending != nil {
		c.pending <- nil
		c.pending = nil
	}
	c.logger.Info("connected", "client", m.ClientID, "entity", m.EntityID)
}

// stage keeps snap if it is newer than the snapshot already waiting for the
// next Update.
func (c *Client) stage(snap protocol.Snapshot) {
	if c.State() != StateConnected {
		return
	}
	c.snapshots.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasStaged && snap.Tick <= c.staged.Tick {
		c.staleSnapshot(snap.Tick)
		return
	}
	c.staged = snap
	c.hasStaged = true
}
