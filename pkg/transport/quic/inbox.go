package quic

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
)

const (
	// maxPayload bounds payloads read from streams.
	maxPayload = 64 * 1024

	inboxSize         = 256
	streamReadTimeout = time.Second
)

type packet struct {
	data []byte
	from net.Addr
}

// inbox merges the datagrams and the stream payloads of one or more
// connections into a single ReadFrom queue. It drops when full.
type inbox struct {
	ch       chan packet
	done     chan struct{}
	deadline atomic.Int64
}

func newInbox() *inbox {
	return &inbox{
		ch:   make(chan packet, inboxSize),
		done: make(chan struct{}),
	}
}

func (in *inbox) push(p packet) bool {
	select {
	case in.ch <- p:
		return true
	default:
		return false
	}
}

func (in *inbox) setDeadline(t time.Time) {
	if t.IsZero() {
		in.deadline.Store(0)
		return
	}
	in.deadline.Store(t.UnixNano())
}

// read blocks until a payload arrives, the deadline set before the call
// expires, or the inbox is closed.
func (in *inbox) read(b []byte) (int, net.Addr, error) {
	var timeout <-chan time.Time
	if d := in.deadline.Load(); d != 0 {
		wait := time.Until(time.Unix(0, d))
		if wait <= 0 {
			select {
			case p := <-in.ch:
				return copy(b, p.data), p.from, nil
			default:
				return 0, nil, os.ErrDeadlineExceeded
			}
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case p := <-in.ch:
		return copy(b, p.data), p.from, nil
	case <-in.done:
		return 0, nil, net.ErrClosed
	case <-timeout:
		return 0, nil, os.ErrDeadlineExceeded
	}
}

func (in *inbox) close() {
	close(in.done)
}

// pump feeds the inbox from conn until it is closed or ctx is done.
// Datagrams and uni-directional streams are read concurrently.
func (in *inbox) pump(ctx context.Context, conn quic.Connection) {
	from := conn.RemoteAddr()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			stream, err := conn.AcceptUniStream(ctx)
			if err != nil {
				return
			}
			stream.SetReadDeadline(time.Now().Add(streamReadTimeout))
			data, err := io.ReadAll(io.LimitReader(stream, maxPayload))
			if err != nil {
				stream.CancelRead(0)
				continue
			}
			in.push(packet{data: data, from: from})
		}
	}()

	for {
		data, err := conn.ReceiveDatagram(ctx)
		if err != nil {
			break
		}
		in.push(packet{data: data, from: from})
	}
	<-done
}

// send writes p as a datagram, or on a fresh stream when it does not fit in
// one.
func send(conn quic.Connection, p []byte) (int, error) {
	err := conn.SendDatagram(p)
	if err == nil {
		return len(p), nil
	}

	var tooLarge *quic.DatagramTooLargeError
	if !errors.As(err, &tooLarge) {
		return 0, err
	}

	stream, err := conn.OpenUniStream()
	if err != nil {
		return 0, err
	}
	if _, err := stream.Write(p); err != nil {
		stream.CancelWrite(0)
		return 0, err
	}
	if err := stream.Close(); err != nil {
		return 0, err
	}
	return len(p), nil
}
