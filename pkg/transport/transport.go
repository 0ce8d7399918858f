// Package transport is the datagram abstraction the sync layer runs on. A
// PacketConn delivers whole datagrams, unordered and possibly lost, tagged
// with the address they came from.
package transport

import (
	"errors"
	"net"
	"os"
	"time"

	"github.com/rotisserie/eris"
)

// PacketConn is the subset of net.PacketConn used by the client and the
// server. *net.UDPConn implements it, as do the QUIC datagram adapters.
type PacketConn interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	WriteTo(p []byte, addr net.Addr) (n int, err error)
	SetReadDeadline(t time.Time) error
	LocalAddr() net.Addr
	Close() error
}

var ErrUnknownNetwork = eris.New("unknown transport network")

const (
	NetworkUDP  = "udp"
	NetworkQUIC = "quic"
)

// ListenUDP binds a UDP socket on addr. Use port 0 for an ephemeral port.
func ListenUDP(addr string) (*net.UDPConn, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, eris.Wrapf(err, "resolve %s", addr)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, eris.Wrapf(err, "listen %s", addr)
	}
	return conn, nil
}

// ResolveUDP resolves a host:port target.
func ResolveUDP(addr string) (*net.UDPAddr, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, eris.Wrapf(err, "resolve %s", addr)
	}
	return raddr, nil
}

// IsTimeout reports whether err is an expired read deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsClosed reports whether err comes from a closed connection.
func IsClosed(err error) bool {
	return err != nil && errors.Is(err, net.ErrClosed)
}

// SameAddr compares two addresses by network and string form.
func SameAddr(a, b net.Addr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Network() == b.Network() && a.String() == b.String()
}
