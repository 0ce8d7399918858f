package server

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// The sessionManager indexes sessions by peer address. The receive loop
// resolves and admits sessions; the tick takes joins and expires sessions.
type sessionManager struct {
	maxPlayers int
	maxPending int

	sessions     map[string]*Session
	joins        []*Session
	players      int
	nextClientID uint32
	mu           sync.RWMutex
}

func newSessionManager(maxPlayers int) *sessionManager {
	return &sessionManager{
		maxPlayers: maxPlayers,
		maxPending: maxPlayers * 4,
		sessions:   make(map[string]*Session),
	}
}

// resolve returns the session of addr, creating it when the address is new.
// It returns nil when the table is full.
func (m *sessionManager) resolve(addr net.Addr, now time.Time) (ses *Session, created bool) {
	key := addr.String()

	m.mu.RLock()
	ses, ok := m.sessions[key]
	m.mu.RUnlock()
	if ok {
		return ses, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ses, ok := m.sessions[key]; ok {
		return ses, false
	}
	if len(m.sessions) >= m.maxPlayers+m.maxPending {
		return nil, false
	}
	ses = newSession(addr, now)
	m.sessions[key] = ses
	return ses, true
}

// admit queues ses for a join on the next tick and assigns its client id. It
// fails when every player slot is taken or already promised. An empty name
// becomes player-<client id>.
func (m *sessionManager) admit(ses *Session, name string) (queued bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ses.joining {
		return false, nil
	}
	if m.players >= m.maxPlayers {
		return false, ErrServerFull
	}

	m.nextClientID++
	ses.clientID = m.nextClientID
	if name == "" {
		name = defaultName(ses.clientID)
	}
	ses.name = name
	ses.joining = true
	m.players++
	m.joins = append(m.joins, ses)
	return true, nil
}

func defaultName(clientID uint32) string {
	return fmt.Sprintf("player-%d", clientID)
}

// takeJoins returns the sessions admitted since the last call.
func (m *sessionManager) takeJoins() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	joins := m.joins
	m.joins = nil
	return joins
}

func (m *sessionManager) get(addr net.Addr) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ses, ok := m.sessions[addr.String()]
	return ses, ok
}

// remove drops ses from the table. It reports false if it was already gone,
// which makes it the single point deciding who tears a session down.
func (m *sessionManager) remove(ses *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(ses)
}

func (m *sessionManager) removeLocked(ses *Session) bool {
	if m.sessions[ses.key] != ses {
		return false
	}
	delete(m.sessions, ses.key)
	if ses.joining {
		m.players--
	}
	return true
}

// expire removes and returns every session that is leaving or has been
// silent for longer than timeout. A session that never asked to join is
// dropped once it is older than pending, however chatty it is.
func (m *sessionManager) expire(now time.Time, timeout, pending time.Duration) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Session
	for _, ses := range m.sessions {
		if ses.State() == SessionLeaving || ses.expired(now, timeout) || ses.stray(now, pending) {
			m.removeLocked(ses)
			out = append(out, ses)
		}
	}
	return out
}

// removeAll empties the table.
func (m *sessionManager) removeAll() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, ses := range m.sessions {
		m.removeLocked(ses)
		out = append(out, ses)
	}
	m.joins = nil
	return out
}

// active returns the sessions currently owning an entity.
func (m *sessionManager) active() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, m.players)
	for _, ses := range m.sessions {
		if ses.State() == SessionActive {
			out = append(out, ses)
		}
	}
	return out
}

func (m *sessionManager) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
