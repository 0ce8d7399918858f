// Package quic provides transport.PacketConn implementations on top of QUIC
// datagrams, for deployments where plain UDP is filtered or encryption is
// wanted. Payloads too large for one datagram travel on a one-shot
// uni-directional stream instead.
package quic

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/rotisserie/eris"
)

var ErrUnknownPeer = eris.New("no quic connection for address")

// Config builds the quic configuration shared by both ends.
func Config(idle time.Duration) *quic.Config {
	return &quic.Config{
		EnableDatagrams: true,
		MaxIdleTimeout:  idle,
		KeepAlivePeriod: idle / 3,
	}
}

// ServerConn accepts QUIC connections and exposes their datagrams as one
// PacketConn keyed by remote address.
type ServerConn struct {
	listener *quic.Listener
	inbox    *inbox

	peers  map[string]quic.Connection
	peerMu sync.RWMutex

	ctx       context.Context
	cancel    context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func Listen(addr string, tlsConf *tls.Config, conf *quic.Config) (*ServerConn, error) {
	l, err := quic.ListenAddr(addr, tlsConf, conf)
	if err != nil {
		return nil, eris.Wrapf(err, "quic listen %s", addr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &ServerConn{
		listener: l,
		inbox:    newInbox(),
		peers:    make(map[string]quic.Connection),
		ctx:      ctx,
		cancel:   cancel,
	}

	c.wg.Add(1)
	go c.acceptConnections()
	return c, nil
}

func (c *ServerConn) acceptConnections() {
	defer c.wg.Done()

	for {
		conn, err := c.listener.Accept(c.ctx)
		if err != nil {
			return
		}

		key := conn.RemoteAddr().String()
		c.peerMu.Lock()
		c.peers[key] = conn
		c.peerMu.Unlock()

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.inbox.pump(c.ctx, conn)
			c.removePeer(key, conn)
		}()
	}
}

func (c *ServerConn) removePeer(key string, conn quic.Connection) {
	c.peerMu.Lock()
	defer c.peerMu.Unlock()
	if c.peers[key] == conn {
		delete(c.peers, key)
	}
}

// Peers returns the number of open connections.
func (c *ServerConn) Peers() int {
	c.peerMu.RLock()
	defer c.peerMu.RUnlock()
	return len(c.peers)
}

func (c *ServerConn) ReadFrom(p []byte) (int, net.Addr, error) {
	return c.inbox.read(p)
}

func (c *ServerConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	if c.closed.Load() {
		return 0, net.ErrClosed
	}

	c.peerMu.RLock()
	conn, ok := c.peers[addr.String()]
	c.peerMu.RUnlock()
	if !ok {
		return 0, eris.Wrapf(ErrUnknownPeer, "%s", addr)
	}
	return send(conn, p)
}

func (c *ServerConn) SetReadDeadline(t time.Time) error {
	c.inbox.setDeadline(t)
	return nil
}

func (c *ServerConn) LocalAddr() net.Addr {
	return c.listener.Addr()
}

func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		c.inbox.close()

		c.peerMu.Lock()
		for _, conn := range c.peers {
			conn.CloseWithError(0, "server closed")
		}
		c.peerMu.Unlock()

		err = c.listener.Close()
		c.wg.Wait()
	})
	return err
}
