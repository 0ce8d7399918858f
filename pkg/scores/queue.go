package scores

import (
	"context"
	"sync/atomic"
	"time"

	"rtype/pkg/rlog"
)

const (
	DefaultQueueSize = 64
	saveTimeout      = 5 * time.Second
)

// Queue hands records to a Store on a separate goroutine. Submit never
// blocks; a full queue drops the record and logs it.
type Queue struct {
	store   Store
	records chan Record
	logger  rlog.Logger

	saved   atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func NewQueue(store Store, size int, logger rlog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = rlog.Nop()
	}
	return &Queue{
		store:   store,
		records: make(chan Record, size),
		logger:  logger,
	}
}

// Submit enqueues r and reports whether it was accepted.
func (q *Queue) Submit(r Record) bool {
	select {
	case q.records <- r:
		return true
	default:
		q.dropped.Add(1)
		q.logger.Warn("score queue full, record dropped", "record", r.ID, "player", r.Player)
		return false
	}
}

// Run saves records until ctx is done, then saves whatever is still queued.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case r := <-q.records:
			q.save(r)
		case <-ctx.Done():
			q.drain()
			return nil
		}
	}
}

func (q *Queue) drain() {
	for {
		select {
		case r := <-q.records:
			q.save(r)
		default:
			return
		}
	}
}

func (q *Queue) save(r Record) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := q.store.Save(ctx, r); err != nil {
		q.failed.Add(1)
		q.logger.Error("failed to save score record", "record", r.ID, "player", r.Player, "error", err)
		return
	}
	q.saved.Add(1)
	q.logger.Debug("score record saved", "record", r.ID, "player", r.Player, "score", r.Score)
}

// Saved, Dropped and Failed count records by outcome.
func (q *Queue) Saved() uint64   { return q.saved.Load() }
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }
func (q *Queue) Failed() uint64  { return q.failed.Load() }
