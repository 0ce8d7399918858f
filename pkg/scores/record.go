// Package scores records the outcome of finished sessions. The server hands
// records to a Queue at session teardown; the queue writes them to a Store on
// its own goroutine so the tick never waits on storage.
package scores

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

var ErrInvalidRecord = eris.New("invalid score record")

type Record struct {
	ID       uuid.UUID     `json:"id"`
	ServerID uuid.UUID     `json:"server_id"`
	Player   string        `json:"player"`
	ClientID uint32        `json:"client_id"`
	Score    uint32        `json:"score"`
	Kills    uint32        `json:"kills"`
	Playtime time.Duration `json:"playtime"`
	EndedAt  time.Time     `json:"ended_at"`
	Reason   string        `json:"reason"`
}

// NewRecord fills in a fresh id.
func NewRecord(serverID uuid.UUID, player string, clientID uint32) Record {
	return Record{
		ID:       uuid.New(),
		ServerID: serverID,
		Player:   player,
		ClientID: clientID,
	}
}

func (r Record) Validate() error {
	if r.ID == uuid.Nil {
		return eris.Wrap(ErrInvalidRecord, "missing id")
	}
	if r.Player == "" {
		return eris.Wrapf(ErrInvalidRecord, "record %s has no player", r.ID)
	}
	return nil
}

// Entry is one leaderboard line.
type Entry struct {
	Player string `json:"player"`
	Score  uint32 `json:"score"`
}

type PlayerStats struct {
	GamesPlayed int64         `json:"games_played"`
	Playtime    time.Duration `json:"playtime"`
	Kills       int64         `json:"kills"`
	Best        uint32        `json:"best"`
}

type Store interface {
	Save(ctx context.Context, r Record) error
	// Top returns the best score of up to n players, best first.
	Top(ctx context.Context, n int) ([]Entry, error)
	Stats(ctx context.Context, player string) (PlayerStats, error)
	// History returns up to n records, newest first.
	History(ctx context.Context, n int) ([]Record, error)
}
