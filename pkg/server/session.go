package server

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"rtype/pkg/ecs"
	"rtype/pkg/protocol"
)

type SessionState int32

const (
	// SessionUnknown is a peer that has sent valid packets but has not
	// joined yet.
	SessionUnknown SessionState = iota
	SessionActive
	// SessionLeaving is a peer that said goodbye; the next sweep evicts it.
	SessionLeaving
	SessionEvicted
)

func (s SessionState) String() string {
	switch s {
	case SessionUnknown:
		return "unknown"
	case SessionActive:
		return "active"
	case SessionLeaving:
		return "leaving"
	case SessionEvicted:
		return "evicted"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

// Session is the server side record of one peer address. The receive loop
// creates it and refreshes its liveness; the tick owns its entity.
type Session struct {
	addr    net.Addr
	key     string
	created time.Time

	// written once under the manager lock when the peer asks to join
	clientID uint32
	name     string
	joining  bool

	state        atomic.Int32
	leaveReason  atomic.Uint32
	lastSeen     atomic.Int64
	lastSentTick atomic.Uint32
	entity       atomic.Uint32
	hasEntity    atomic.Bool

	inputs mailbox

	// tick goroutine only
	activated bool
}

func newSession(addr net.Addr, now time.Time) *Session {
	s := &Session{
		addr:    addr,
		key:     addr.String(),
		created: now,
	}
	s.touch(now)
	return s
}

func (s *Session) Addr() net.Addr {
	return s.addr
}

// ClientID is zero until the peer has asked to join.
func (s *Session) ClientID() uint32 {
	return s.clientID
}

func (s *Session) Name() string {
	return s.name
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// LastSentTick is the tick of the last snapshot sent to the peer.
func (s *Session) LastSentTick() uint32 {
	return s.lastSentTick.Load()
}

// LastAckedSequence is the sequence of the last input applied by a tick.
func (s *Session) LastAckedSequence() (uint32, bool) {
	return s.inputs.lastSequence()
}

// Entity returns the avatar of an active session.
func (s *Session) Entity() (ecs.EntityID, bool) {
	return ecs.EntityID(s.entity.Load()), s.hasEntity.Load()
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastSeen()) > timeout
}

// stray reports a peer that has not asked to join within pending of its first
// packet. Callers hold the manager lock.
func (s *Session) stray(now time.Time, pending time.Duration) bool {
	return !s.joining && s.State() == SessionUnknown && now.Sub(s.created) > pending
}

// leave marks the session for eviction at the next sweep.
func (s *Session) leave(reason protocol.DisconnectReason) bool {
	s.leaveReason.Store(uint32(reason))
	return s.state.CompareAndSwap(int32(SessionActive), int32(SessionLeaving)) ||
		s.state.CompareAndSwap(int32(SessionUnknown), int32(SessionLeaving))
}

func (s *Session) String() string {
	return fmt.Sprintf("Session[%s client=%d state=%s]", s.key, s.clientID, s.State())
}
