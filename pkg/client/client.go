// Package client is the player side of the sync protocol. A Client joins one
// server, sends sequenced inputs and mirrors the newest snapshot it has seen
// into a local world that a renderer reads once per frame.
package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"

	"rtype/pkg/ecs"
	"rtype/pkg/metrics"
	"rtype/pkg/protocol"
	"rtype/pkg/rlog"
	"rtype/pkg/transport"
	"rtype/pkg/world"
)

type Options struct {
	Name string

	ReadTimeout   time.Duration
	ServerTimeout time.Duration
	// ConnectRetry is how long Connect waits for an accept before it sends
	// the request again.
	ConnectRetry time.Duration
	// HeartbeatInterval is the longest the client stays silent while
	// connected. Defaults to a quarter of ServerTimeout.
	HeartbeatInterval time.Duration
	MaxEntities       int

	Metrics *metrics.Client
	Logger  rlog.Logger
}

func (o *Options) setDefaults() {
	if o.Name == "" {
		o.Name = "player"
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 100 * time.Millisecond
	}
	if o.ServerTimeout <= 0 {
		o.ServerTimeout = 5 * time.Second
	}
	if o.ConnectRetry <= 0 {
		o.ConnectRetry = 250 * time.Millisecond
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = o.ServerTimeout / 4
	}
	if o.MaxEntities <= 0 {
		o.MaxEntities = 1000
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Nop()
	}
	if o.Logger == nil {
		o.Logger = rlog.Nop()
	}
}

type Stats struct {
	Malformed      uint64
	Snapshots      uint64
	StaleSnapshots uint64
	InputsSent     uint64
}

type Client struct {
	conn    transport.PacketConn
	server  net.Addr
	opts    Options
	logger  rlog.Logger
	metrics *metrics.Client

	state    atomic.Int32
	reason   atomic.Uint32
	started  atomic.Bool
	running  atomic.Bool
	done     chan struct{}
	clientID atomic.Uint32
	entity   atomic.Uint32
	sequence atomic.Uint32
	lastSeen atomic.Int64
	lastSent atomic.Int64

	// mu guards state transitions, the pending connect and the staged
	// snapshot
	mu        sync.Mutex
	pending   chan error
	staged    protocol.Snapshot
	hasStaged bool

	viewMu      sync.RWMutex
	world       *world.World
	applied     bool
	appliedTick uint32

	malformed, snapshots, stale, inputs atomic.Uint64
	closeOnce                           sync.Once
}

// New creates a client that talks to server over conn. The client owns conn
// and closes it in Close.
func New(conn transport.PacketConn, server net.Addr, opts Options) (*Client, error) {
	opts.setDefaults()
	if len(opts.Name) > protocol.MaxNameLen {
		return nil, eris.Wrapf(protocol.ErrNameTooLong, "%q", opts.Name)
	}

	w, err := world.New(opts.MaxEntities)
	if err != nil {
		return nil, err
	}

	return &Client{
		conn:    conn,
		server:  server,
		opts:    opts,
		logger:  rlog.With(opts.Logger, "server", server.String()),
		metrics: opts.Metrics,
		done:    make(chan struct{}),
		world:   w,
	}, nil
}

// DialUDP binds an ephemeral UDP port and creates a client for target.
func DialUDP(target string, opts Options) (*Client, error) {
	raddr, err := transport.ResolveUDP(target)
	if err != nil {
		return nil, err
	}
	conn, err := transport.ListenUDP(":0")
	if err != nil {
		return nil, err
	}
	c, err := New(conn, raddr, opts)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) State() State {
	return State(c.state.Load())
}

// Reason is why the last session ended.
func (c *Client) Reason() protocol.DisconnectReason {
	return protocol.DisconnectReason(c.reason.Load())
}

func (c *Client) ClientID() uint32 {
	return c.clientID.Load()
}

// Entity is the avatar the server assigned. It is only valid while
// connected.
func (c *Client) Entity() (ecs.EntityID, bool) {
	if c.State() != StateConnected {
		return 0, false
	}
	return ecs.EntityID(c.entity.Load()), true
}

func (c *Client) Server() net.Addr {
	return c.server
}

func (c *Client) Stats() Stats {
	return Stats{
		Malformed:      c.malformed.Load(),
		Snapshots:      c.snapshots.Load(),
		StaleSnapshots: c.stale.Load(),
		InputsSent:     c.inputs.Load(),
	}
}

// ==================================================================
// Lifecycle
// ==================================================================

// Start launches the receive loop. Connect calls it when needed.
func (c *Client) Start() error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	c.running.Store(true)
	go c.receiveLoop()
	return nil
}

// Connect asks the server for a slot and blocks until it answers or ctx is
// done. The request is repeated every ConnectRetry since it may be lost.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.Start(); err != nil && !errors.Is(err, ErrAlreadyStarted) {
		return err
	}
	if !c.running.Load() {
		return ErrNotStarted
	}

	result := make(chan error, 1)
	c.mu.Lock()
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		c.mu.Unlock()
		return eris.Wrapf(ErrAlreadyStarted, "client is %s", c.State())
	}
	c.pending = result
	c.hasStaged = false
	c.mu.Unlock()

	c.viewMu.Lock()
	c.applied = false
	c.appliedTick = 0
	c.viewMu.Unlock()

	req, err := protocol.Encode(protocol.ConnectRequest{Name: c.opts.Name})
	if err != nil {
		c.abortConnect()
		return err
	}

	c.logger.Info("connecting", "name", c.opts.Name)
	retry := time.NewTicker(c.opts.ConnectRetry)
	defer retry.Stop()

	for {
		if err := c.write(req); err != nil {
			c.abortConnect()
			return err
		}

		select {
		case err := <-result:
			return err
		case <-retry.C:
			c.logger.Debug("no answer yet, retrying connect")
		case <-ctx.Done():
			c.abortConnect()
			select {
			case err := <-result:
				return err
			default:
			}
			return eris.Wrap(ctx.Err(), "connect")
		}
	}
}

func (c *Client) abortConnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateDisconnected))
}

// Close says goodbye to the server when connected, stops the receive loop
// and closes the socket. It returns after the loop has exited, which takes at
// most one read timeout.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.State() == StateConnected {
			if serr := c.Send(protocol.Disconnect{Reason: protocol.ReasonQuit}); serr != nil {
				c.logger.Debug("failed to send goodbye", "error", serr)
			}
		}
		c.setDisconnected(protocol.ReasonQuit, ErrNotConnected)

		if c.started.Load() {
			c.running.Store(false)
			<-c.done
		}
		err = c.conn.Close()
		c.logger.Info("client closed")
	})
	return err
}

// setDisconnected moves to StateDisconnected and fails a pending Connect
// with cause. It reports whether the client was connected or connecting.
func (c *Client) setDisconnected(reason protocol.DisconnectReason, cause error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := State(c.state.Swap(int32(StateDisconnected)))
	if prev != StateDisconnected {
		c.reason.Store(uint32(reason))
	}
	if c.pending != nil {
		c.pending <- cause
		c.pending = nil
	}
	return prev != StateDisconnected
}

// ==================================================================
// Send
// ==================================================================

// Send writes msg to the server. It fails with ErrNotConnected unless the
// client is connected.
func (c *Client) Send(msg protocol.Message) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.write(data)
}

// SendInput sends flags under the next input sequence number and returns
// that number.
func (c *Client) SendInput(flags protocol.InputFlags) (uint32, error) {
	if c.State() != StateConnected {
		return 0, ErrNotConnected
	}
	seq := c.sequence.Add(1)
	err := c.Send(protocol.Input{ClientID: c.ClientID(), Sequence: seq, Flags: flags})
	if err != nil {
		return 0, err
	}
	c.inputs.Add(1)
	return seq, nil
}

func (c *Client) write(data []byte) error {
	if _, err := c.conn.WriteTo(data, c.server); err != nil {
		return eris.Wrap(err, "send datagram")
	}
	c.lastSent.Store(time.Now().UnixNano())
	return nil
}

// ==================================================================
// Frame
// ==================================================================

// Update is called once per frame. It applies the staged snapshot when its
// tick is newer than the applied one, drops the session when the server has
// been silent for longer than ServerTimeout and sends a heartbeat when no
// datagram went out for HeartbeatInterval. It reports whether the mirror
// changed.
func (c *Client) Update(now time.Time) (bool, error) {
	if c.State() == StateConnected {
		if now.Sub(time.Unix(0, c.lastSeen.Load())) > c.opts.ServerTimeout {
			if c.setDisconnected(protocol.ReasonTimeout, ErrServerTimedOut) {
				c.logger.Warn("server timed out", "error", ErrServerTimedOut)
			}
			return false, ErrServerTimedOut
		}
		if now.Sub(time.Unix(0, c.lastSent.Load())) >= c.opts.HeartbeatInterval {
			err := c.Send(protocol.Heartbeat{ClientID: c.ClientID()})
			if err != nil && !errors.Is(err, ErrNotConnected) {
				c.logger.Warn("failed to send heartbeat", "error", err)
			}
		}
	}

	c.mu.Lock()
	snap, ok := c.staged, c.hasStaged
	c.staged = protocol.Snapshot{}
	c.hasStaged = false
	c.mu.Unlock()
	if !ok {
		return false, nil
	}

	c.viewMu.Lock()
	defer c.viewMu.Unlock()
	if c.applied && snap.Tick <= c.appliedTick {
		c.staleSnapshot(snap.Tick)
		return false, nil
	}
	if err := c.world.ApplySnapshot(snap); err != nil {
		c.logger.Warn("snapshot partially applied", "tick", snap.Tick, "error", err)
	}
	c.applied = true
	c.appliedTick = snap.Tick
	return true, nil
}

// Tick is the tick of the applied snapshot.
func (c *Client) Tick() (uint32, bool) {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.appliedTick, c.applied
}

// Entities returns a copy of the mirrored entities in id order. The own
// avatar carries protocol.StateLocal.
func (c *Client) Entities() []protocol.EntityDescriptor {
	return c.AppendEntities(nil)
}

// AppendEntities is Entities appending to dst.
func (c *Client) AppendEntities(dst []protocol.EntityDescriptor) []protocol.EntityDescriptor {
	own, connected := c.Entity()

	c.viewMu.RLock()
	defer c.viewMu.RUnlock()

	start := len(dst)
	dst = c.world.AppendDescriptors(dst, nil)
	if connected {
		for i := start; i < len(dst); i++ {
			if dst[i].ID == uint32(own) {
				dst[i].Flags |= protocol.StateLocal
			}
		}
	}
	return dst
}

func (c *Client) staleSnapshot(tick uint32) {
	c.stale.Add(1)
	c.metrics.Incr(metrics.StaleSnapshots)
	c.logger.Debug("discarded stale snapshot", "tick", tick)
}
