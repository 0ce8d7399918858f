package server

import (
	"time"

	"rtype/pkg/ecs"
	"rtype/pkg/metrics"
	"rtype/pkg/protocol"
	"rtype/pkg/scores"
)

// step is one server tick: joins and newest inputs, simulation, eviction,
// snapshot. It never blocks on the network beyond non-blocking datagram
// writes.
func (s *Server) step(now time.Time, dt time.Duration) {
	start := now

	for _, ses := range s.sessions.takeJoins() {
		s.join(ses, now)
	}
	s.applyInputs()
	s.metrics.TickStage(start, "input")

	start = time.Now()
	s.sim.Step(dt)
	s.metrics.TickStage(start, "simulate")

	s.sweep(now)

	start = time.Now()
	s.tick++
	s.broadcastSnapshot()
	s.metrics.TickStage(start, "snapshot")

	s.stats.ticks.Add(1)
	s.stats.lastTick.Store(s.tick)
	s.stats.entities.Store(int64(s.world.Entities.Live()))
	if s.tick%uint32(s.opts.TickRate) == 0 {
		s.metrics.Gauge(metrics.SessionsActive, float64(s.stats.active.Load()))
		s.metrics.Gauge(metrics.EntitiesLive, float64(s.stats.entities.Load()))
	}
}

func (s *Server) join(ses *Session, now time.Time) {
	if ses.State() != SessionUnknown {
		return
	}

	id, err := s.sim.SpawnPlayer(ses.clientID, ses.name, now)
	if err != nil {
		s.logger.Warn("no entity for joining player", "client", ses.clientID, "error", err)
		if s.sessions.remove(ses) {
			ses.state.Store(int32(SessionEvicted))
			s.send(ses.addr, protocol.Disconnect{Reason: protocol.ReasonServerFull})
		}
		return
	}

	ses.entity.Store(uint32(id))
	ses.hasEntity.Store(true)
	if !ses.state.CompareAndSwap(int32(SessionUnknown), int32(SessionActive)) {
		// left before the tick got to it; the sweep evicts it
		return
	}
	ses.activated = true

	s.stats.joined.Add(1)
	s.stats.active.Add(1)
	s.metrics.Incr(metrics.SessionsJoined)
	s.logger.Info("player joined", "peer", ses.addr, "client", ses.clientID, "name", ses.name, "entity", id)
	s.send(ses.addr, protocol.ConnectAccept{ClientID: ses.clientID, EntityID: uint32(id)})
}

func (s *Server) applyInputs() {
	for _, ses := range s.sessions.active() {
		in, ok := ses.inputs.drain()
		if !ok {
			continue
		}
		id, ok := ses.Entity()
		if !ok {
			continue
		}
		if err := s.sim.SetInput(id, in.Flags); err != nil {
			s.logger.Debug("input for missing avatar", "client", ses.clientID, "error", err)
		}
	}
}

// sweep evicts leaving sessions, sessions silent for longer than the session
// timeout and peers that never joined within the pending timeout.
func (s *Server) sweep(now time.Time) {
	for _, ses := range s.sessions.expire(now, s.opts.SessionTimeout, s.opts.PendingTimeout) {
		reason := protocol.ReasonTimeout
		if ses.State() == SessionLeaving {
			reason = protocol.DisconnectReason(ses.leaveReason.Load())
		}
		s.evict(ses, reason, now)
	}
}

// evict releases everything ses holds. The caller has already removed it from
// the session table, which happens exactly once per session.
func (s *Server) evict(ses *Session, reason protocol.DisconnectReason, now time.Time) {
	ses.state.Store(int32(SessionEvicted))

	if id, ok := ses.Entity(); ok {
		ses.hasEntity.Store(false)
		if p, ok := s.sim.RemovePlayer(id); ok {
			s.recordScore(ses, p.Score, p.Kills, now.Sub(p.JoinedAt), reason, now)
		}
	}

	if ses.activated {
		ses.activated = false
		s.stats.active.Add(-1)
	}
	// peers that never asked to join get nothing back
	if !ses.joining {
		s.logger.Debug("stray peer dropped", "peer", ses.addr, "reason", reason)
		return
	}
	s.stats.evicted.Add(1)
	s.metrics.Incr(metrics.SessionsEvicted, "reason:"+reason.String())

	if reason != protocol.ReasonQuit {
		s.send(ses.addr, protocol.Disconnect{Reason: reason})
	}

	if reason == protocol.ReasonTimeout {
		s.logger.Info("session evicted", "peer", ses.addr, "client", ses.clientID, "error", ErrSessionTimedOut)
	} else {
		s.logger.Info("session closed", "peer", ses.addr, "client", ses.clientID, "reason", reason)
	}
}

func (s *Server) recordScore(ses *Session, score, kills uint32, playtime time.Duration, reason protocol.DisconnectReason, now time.Time) {
	if s.opts.Scores == nil {
		return
	}
	r := scores.NewRecord(s.opts.ID, ses.name, ses.clientID)
	r.Score = score
	r.Kills = kills
	r.Playtime = playtime
	r.EndedAt = now
	r.Reason = reason.String()
	s.opts.Scores.Submit(r)
}

// broadcastSnapshot sends the tick's snapshot to every active session. The
// unfiltered snapshot is encoded once and shared.
func (s *Server) broadcastSnapshot() {
	active := s.sessions.active()
	if len(active) == 0 {
		return
	}

	if s.opts.Filter == nil {
		s.appendDescriptors(nil)
		if !s.encodeSnapshot() {
			return
		}
		for _, ses := range active {
			s.write(ses.addr, s.sendBuf)
			ses.lastSentTick.Store(s.tick)
		}
		return
	}

	for _, ses := range active {
		s.appendDescriptors(func(id ecs.EntityID) bool {
			return s.opts.Filter(ses, id)
		})
		if !s.encodeSnapshot() {
			continue
		}
		s.write(ses.addr, s.sendBuf)
		ses.lastSentTick.Store(s.tick)
	}
}

func (s *Server) appendDescriptors(include func(ecs.EntityID) bool) {
	var dropped int
	s.descs, dropped = s.world.AppendDescriptorsCapped(s.descs[:0], include)
	if dropped > 0 {
		s.metrics.Count(metrics.SnapshotTruncated, int64(dropped))
		s.logger.Warn("snapshot truncated", "tick", s.tick, "sent", len(s.descs), "dropped", dropped)
	}
}

func (s *Server) encodeSnapshot() bool {
	data, err := protocol.AppendEncode(s.sendBuf[:0], protocol.Snapshot{Tick: s.tick, Entities: s.descs})
	if err != nil {
		s.logger.Error("failed to encode snapshot", "tick", s.tick, "error", err)
		return false
	}
	s.sendBuf = data
	s.metrics.Count(metrics.SnapshotBytes, int64(len(data)))
	return true
}
