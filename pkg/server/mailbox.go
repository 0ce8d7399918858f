package server

import (
	"sync"

	"rtype/pkg/protocol"
)

// mailbox is the single-slot staging area between the receive loop and the
// tick. The receive loop offers inputs, the tick drains at most one per tick.
// Only an input newer than both the staged one and the last drained one is
// kept, so late arrivals never replace fresher intents.
type mailbox struct {
	mu          sync.Mutex
	staged      protocol.Input
	full        bool
	lastApplied uint32
	applied     bool
}

// offer stages in and reports whether it was kept.
func (m *mailbox) offer(in protocol.Input) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.applied && in.Sequence <= m.lastApplied {
		return false
	}
	if m.full && in.Sequence <= m.staged.Sequence {
		return false
	}
	m.staged = in
	m.full = true
	return true
}

// drain empties the slot.
func (m *mailbox) drain() (protocol.Input, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.full {
		return protocol.Input{}, false
	}
	in := m.staged
	m.staged = protocol.Input{}
	m.full = false
	m.lastApplied = in.Sequence
	m.applied = true
	return in, true
}

// lastSequence returns the highest sequence drained so far.
func (m *mailbox) lastSequence() (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastApplied, m.applied
}
