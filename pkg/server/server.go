// Package server is the authoritative side of the sync protocol. One
// receive loop stages what peers send; one fixed-rate tick applies the newest
// input of every session, advances the simulation, evicts silent sessions and
// sends a snapshot to every active session.
package server

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"rtype/pkg/ecs"
	"rtype/pkg/game"
	"rtype/pkg/metrics"
	"rtype/pkg/protocol"
	"rtype/pkg/rlog"
	"rtype/pkg/scores"
	"rtype/pkg/tick"
	"rtype/pkg/transport"
	"rtype/pkg/world"
)

// ScoreRecorder receives a record for every player session that ends. It
// must not block.
type ScoreRecorder interface {
	Submit(r scores.Record) bool
}

// Filter decides whether entity id is sent to ses. Nil sends everything.
type Filter func(ses *Session, id ecs.EntityID) bool

type Options struct {
	TickRate       int
	SessionTimeout time.Duration
	ReadTimeout    time.Duration
	// PendingTimeout bounds how long a peer may hold a session without
	// asking to join. It defaults to four read timeouts.
	PendingTimeout time.Duration
	MaxEntities    int
	MaxPlayers     int
	Rules          *game.Rules

	Filter  Filter
	Scores  ScoreRecorder
	Metrics *metrics.Client
	Logger  rlog.Logger
	ID      uuid.UUID
}

func (o *Options) setDefaults() {
	if o.TickRate <= 0 {
		o.TickRate = 60
	}
	if o.SessionTimeout <= 0 {
		o.SessionTimeout = 5 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 100 * time.Millisecond
	}
	if o.PendingTimeout <= 0 {
		o.PendingTimeout = 4 * o.ReadTimeout
	}
	if o.PendingTimeout > o.SessionTimeout {
		o.PendingTimeout = o.SessionTimeout
	}
	if o.MaxEntities <= 0 {
		o.MaxEntities = 1000
	}
	if o.MaxPlayers <= 0 {
		o.MaxPlayers = 4
	}
	if o.Rules == nil {
		rules := game.DefaultRules()
		o.Rules = &rules
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Nop()
	}
	if o.Logger == nil {
		o.Logger = rlog.Nop()
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
}

// Stats are counters since the server was created.
type Stats struct {
	Ticks           uint64
	Malformed       uint64
	StaleInputs     uint64
	RejectedInputs  uint64
	SessionsJoined  uint64
	SessionsEvicted uint64
	ActiveSessions  int
	LiveEntities    int
	LastTick        uint32
}

type counters struct {
	ticks, malformed, staleInputs, rejectedInputs atomic.Uint64
	joined, evicted                               atomic.Uint64
	active, entities                              atomic.Int64
	lastTick                                      atomic.Uint32
}

type Server struct {
	conn     transport.PacketConn
	opts     Options
	logger   rlog.Logger
	metrics  *metrics.Client
	sessions *sessionManager

	// owned by the tick goroutine
	world   *world.World
	sim     *game.Simulation
	tick    uint32
	descs   []protocol.EntityDescriptor
	sendBuf []byte

	loop    *tick.Loop
	stats   counters
	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a server reading from conn. The server owns conn and closes it
// when Run returns.
func New(conn transport.PacketConn, opts Options) (*Server, error) {
	opts.setDefaults()
	if opts.MaxEntities > protocol.MaxSnapshotEntities {
		return nil, eris.Errorf("max entities %d exceeds the snapshot limit %d", opts.MaxEntities, protocol.MaxSnapshotEntities)
	}
	if opts.MaxPlayers > opts.MaxEntities {
		return nil, eris.Errorf("max players %d exceeds max entities %d", opts.MaxPlayers, opts.MaxEntities)
	}

	w, err := world.New(opts.MaxEntities)
	if err != nil {
		return nil, err
	}

	logger := rlog.With(opts.Logger, "server", opts.ID.String())
	s := &Server{
		conn:     conn,
		opts:     opts,
		logger:   logger,
		metrics:  opts.Metrics,
		sessions: newSessionManager(opts.MaxPlayers),
		world:    w,
		sim:      game.New(w, *opts.Rules, logger),
		sendBuf:  make([]byte, 0, protocol.MaxDatagramSize),
	}

	s.loop, err = tick.New(opts.TickRate, s.step, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *Server) ID() uuid.UUID {
	return s.opts.ID
}

// ==================================================================
// Lifecycle
// ==================================================================

// Run serves until ctx is done, Stop is called or the socket fails. On the
// way out every session is told the server shuts down, then the socket is
// closed.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if !s.running.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return ErrServerRunning
	}
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info("server started", "addr", s.conn.LocalAddr(), "tick_rate", s.opts.TickRate)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.receiveLoop(gctx)
	})
	g.Go(func() error {
		return s.loop.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		s.running.Store(false)
		return nil
	})
	err := g.Wait()

	s.shutdown()
	if cerr := s.conn.Close(); cerr != nil && !transport.IsClosed(cerr) {
		s.logger.Warn("failed to close socket", "error", cerr)
	}
	s.logger.Info("server stopped", "ticks", s.stats.ticks.Load())
	return err
}

// Stop asks a running server to shut down. Run returns once the receive loop
// has observed it, within one read timeout.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return ErrServerNotRunning
	}
	s.running.Store(false)
	s.cancel()
	return nil
}

func (s *Server) Running() bool {
	return s.running.Load()
}

func (s *Server) shutdown() {
	now := time.Now()
	for _, ses := range s.sessions.removeAll() {
		s.evict(ses, protocol.ReasonShutdown, now)
	}
}

// Stats returns a copy of the counters.
func (s *Server) Stats() Stats {
	return Stats{
		Ticks:           s.stats.ticks.Load(),
		Malformed:       s.stats.malformed.Load(),
		StaleInputs:     s.stats.staleInputs.Load(),
		RejectedInputs:  s.stats.rejectedInputs.Load(),
		SessionsJoined:  s.stats.joined.Load(),
		SessionsEvicted: s.stats.evicted.Load(),
		ActiveSessions:  int(s.stats.active.Load()),
		LiveEntities:    int(s.stats.entities.Load()),
		LastTick:        s.stats.lastTick.Load(),
	}
}

// ==================================================================
// Send
// ==================================================================

func (s *Server) send(addr net.Addr, msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		s.logger.Error("failed to encode message", "type", msg.Tag(), "error", err)
		return
	}
	s.write(addr, data)
}

func (s *Server) write(addr net.Addr, data []byte) {
	if _, err := s.conn.WriteTo(data, addr); err != nil && !transport.IsClosed(err) {
		s.logger.Warn("failed to send datagram", "peer", addr, "error", err)
	}
}
