// Package tick runs a callback at a fixed rate on a single goroutine.
package tick

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"

	"rtype/pkg/rlog"
)

var (
	ErrLoopRunning    = eris.New("tick loop is already running")
	ErrLoopNotRunning = eris.New("tick loop is not running")
	ErrInvalidRate    = eris.New("tick rate must be positive")
)

// Func is called once per tick with the tick time and the time elapsed since
// the previous tick (zero on the first one).
type Func func(now time.Time, dt time.Duration)

// Loop calls its Func at a fixed interval. Calls never overlap: a tick that
// runs long delays the next one and the ticker drops the ones it missed.
type Loop struct {
	interval time.Duration
	onTick   Func
	logger   rlog.Logger

	lastTick time.Time
	ticks    atomic.Uint64
	running  atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a loop running rate ticks per second.
func New(rate int, fn Func, logger rlog.Logger) (*Loop, error) {
	if rate <= 0 {
		return nil, eris.Wrapf(ErrInvalidRate, "got %d", rate)
	}
	if logger == nil {
		logger = rlog.Nop()
	}
	return &Loop{
		interval: time.Second / time.Duration(rate),
		onTick:   fn,
		logger:   logger,
	}, nil
}

func (l *Loop) Interval() time.Duration {
	return l.interval
}

// Ticks returns the number of completed ticks.
func (l *Loop) Ticks() uint64 {
	return l.ticks.Load()
}

func (l *Loop) Running() bool {
	return l.running.Load()
}

// Run blocks until ctx is done or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.mu.Lock()
	if !l.running.CompareAndSwap(false, true) {
		l.mu.Unlock()
		return ErrLoopRunning
	}
	l.cancel = cancel
	l.mu.Unlock()
	defer l.running.Store(false)

	t := time.NewTicker(l.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			l.step(now)
		}
	}
}

func (l *Loop) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running.Load() {
		return ErrLoopNotRunning
	}
	l.cancel()
	return nil
}

func (l *Loop) step(now time.Time) {
	var dt time.Duration
	if !l.lastTick.IsZero() {
		dt = now.Sub(l.lastTick)
	}
	l.lastTick = now

	l.onTick(now, dt)
	l.ticks.Add(1)

	if took := time.Since(now); took > l.interval {
		l.logger.Warn("tick overran its interval", "took", took, "interval", l.interval)
	}
}
