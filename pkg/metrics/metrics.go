// Package metrics wraps the statsd client the server reports to. Only this
// package knows about datadog.
package metrics

import (
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rotisserie/eris"

	"rtype/pkg/rlog"
)

const Namespace = "rtype."

// Metric names.
const (
	MalformedPackets  = "packets.malformed"
	StaleInputs       = "inputs.stale"
	SessionsJoined    = "sessions.joined"
	SessionsEvicted   = "sessions.evicted"
	SessionsActive    = "sessions.active"
	EntitiesLive      = "entities.live"
	SnapshotBytes     = "snapshot.bytes"
	StaleSnapshots    = "snapshots.stale"
	SnapshotTruncated = "snapshot.truncated"
	Tick              = "tick"
)

type Client struct {
	statsd ddstatsd.ClientInterface
	logger rlog.Logger
}

// Nop returns a Client that drops everything.
func Nop() *Client {
	return &Client{statsd: &ddstatsd.NoOpClient{}, logger: rlog.Nop()}
}

// New connects to the statsd agent at address. An empty address yields Nop.
func New(address string, tags []string, logger rlog.Logger) (*Client, error) {
	if logger == nil {
		logger = rlog.Nop()
	}
	if address == "" {
		return &Client{statsd: &ddstatsd.NoOpClient{}, logger: logger}, nil
	}

	opts := []ddstatsd.Option{ddstatsd.WithNamespace(Namespace)}
	if len(tags) > 0 {
		opts = append(opts, ddstatsd.WithTags(tags))
	}
	c, err := ddstatsd.New(address, opts...)
	if err != nil {
		return nil, eris.Wrapf(err, "statsd client for %s", address)
	}
	return &Client{statsd: c, logger: logger}, nil
}

// With wraps an existing statsd client.
func With(c ddstatsd.ClientInterface, logger rlog.Logger) *Client {
	if logger == nil {
		logger = rlog.Nop()
	}
	return &Client{statsd: c, logger: logger}
}

func (c *Client) Incr(name string, tags ...string) {
	c.check(name, c.statsd.Incr(name, tags, 1))
}

func (c *Client) Count(name string, value int64, tags ...string) {
	c.check(name, c.statsd.Count(name, value, tags, 1))
}

func (c *Client) Gauge(name string, value float64, tags ...string) {
	c.check(name, c.statsd.Gauge(name, value, tags, 1))
}

// TickStage reports the time spent in one stage of a tick since start.
func (c *Client) TickStage(start time.Time, stage string) {
	c.check(Tick, c.statsd.Timing(Tick, time.Since(start), []string{"stage:" + stage}, 1))
}

func (c *Client) Close() error {
	return c.statsd.Close()
}

func (c *Client) check(name string, err error) {
	if err != nil {
		c.logger.Warn("failed to emit metric", "metric", name, "error", err)
	}
}
