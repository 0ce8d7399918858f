package scores

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps everything in process. Used when no redis is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	history []Record
	stats   map[string]PlayerStats
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stats: make(map[string]PlayerStats)}
}

func (m *MemoryStore) Save(_ context.Context, r Record) error {
	if err := r.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, r)
	s := m.stats[r.Player]
	s.GamesPlayed++
	s.Playtime += r.Playtime
	s.Kills += int64(r.Kills)
	s.Best = max(s.Best, r.Score)
	m.stats[r.Player] = s
	return nil
}

func (m *MemoryStore) Top(_ context.Context, n int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]Entry, 0, len(m.stats))
	for player, s := range m.stats {
		entries = append(entries, Entry{Player: player, Score: s.Best})
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Player, b.Player)
	})
	if n >= 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func (m *MemoryStore) Stats(_ context.Context, player string) (PlayerStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats[player], nil
}

func (m *MemoryStore) History(_ context.Context, n int) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, min(n, len(m.history)))
	for i := len(m.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.history[i])
	}
	return out, nil
}
