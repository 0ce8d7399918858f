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

// ClientConn is a single QUIC connection seen as a PacketConn. WriteTo
// ignores its address argument; every payload goes to the dialed server.
type ClientConn struct {
	conn  quic.Connection
	inbox *inbox

	cancel    context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func Dial(ctx context.Context, target string, tlsConf *tls.Config, conf *quic.Config) (*ClientConn, error) {
	conn, err := quic.DialAddr(ctx, target, tlsConf, conf)
	if err != nil {
		return nil, eris.Wrapf(err, "quic dial %s", target)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	c := &ClientConn{
		conn:   conn,
		inbox:  newInbox(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(c.done)
		c.inbox.pump(pumpCtx, conn)
	}()
	return c, nil
}

// RemoteAddr is the server address, usable as the WriteTo target.
func (c *ClientConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *ClientConn) ReadFrom(p []byte) (int, net.Addr, error) {
	return c.inbox.read(p)
}

func (c *ClientConn) WriteTo(p []byte, _ net.Addr) (int, error) {
	if c.closed.Load() {
		return 0, net.ErrClosed
	}
	return send(c.conn, p)
}

func (c *ClientConn) SetReadDeadline(t time.Time) error {
	c.inbox.setDeadline(t)
	return nil
}

func (c *ClientConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *ClientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		c.inbox.close()
		err = c.conn.CloseWithError(0, "client closed")
		<-c.done
	})
	return err
}
