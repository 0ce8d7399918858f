// Package config loads the startup configuration of both binaries. Values
// come from defaults, then an optional KEY=VALUE file, then the environment.
// A Config is immutable once Load returns it.
package config

import (
	"os"
	"time"

	jlconfig "github.com/JeremyLoy/config"
	"github.com/rotisserie/eris"

	"rtype/pkg/protocol"
)

var ErrInvalid = eris.New("invalid configuration")

type Config struct {
	ServerAddr   string `config:"RTYPE_SERVER_ADDR"`
	ServerTarget string `config:"RTYPE_SERVER_TARGET"`
	Transport    string `config:"RTYPE_TRANSPORT"`

	TickRate       int    `config:"RTYPE_TICK_RATE"`
	SessionTimeout string `config:"RTYPE_SESSION_TIMEOUT"`
	ReadTimeout    string `config:"RTYPE_READ_TIMEOUT"`
	MaxEntities    int    `config:"RTYPE_MAX_ENTITIES"`
	MaxSessions    int    `config:"RTYPE_MAX_SESSIONS"`

	PlayerName string `config:"RTYPE_PLAYER_NAME"`

	RedisAddr     string `config:"RTYPE_REDIS_ADDR"`
	RedisPassword string `config:"RTYPE_REDIS_PASSWORD"`
	StatsdAddr    string `config:"RTYPE_STATSD_ADDR"`

	LogLevel  string `config:"LOG_LEVEL"`
	LogFormat string `config:"LOG_FORMAT"`

	sessionTimeout time.Duration
	readTimeout    time.Duration
}

func Default() Config {
	return Config{
		ServerAddr:     ":4242",
		ServerTarget:   "127.0.0.1:4242",
		Transport:      "udp",
		TickRate:       60,
		SessionTimeout: "5s",
		ReadTimeout:    "100ms",
		MaxEntities:    1000,
		MaxSessions:    4,
		PlayerName:     "player",
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// Load reads file, if not empty, then the environment over Default and
// validates the result.
func Load(file string) (Config, error) {
	cfg := Default()

	var b *jlconfig.Builder
	if file != "" {
		if _, err := os.Stat(file); err != nil {
			return cfg, eris.Wrapf(err, "config file %s", file)
		}
		b = jlconfig.From(file).FromEnv()
	} else {
		b = jlconfig.FromEnv()
	}
	if err := b.To(&cfg); err != nil {
		return cfg, eris.Wrap(err, "load config")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks every field and caches parsed durations.
func (c *Config) Validate() error {
	var err error
	if c.sessionTimeout, err = time.ParseDuration(c.SessionTimeout); err != nil {
		return eris.Wrapf(ErrInvalid, "RTYPE_SESSION_TIMEOUT %q: %v", c.SessionTimeout, err)
	}
	if c.readTimeout, err = time.ParseDuration(c.ReadTimeout); err != nil {
		return eris.Wrapf(ErrInvalid, "RTYPE_READ_TIMEOUT %q: %v", c.ReadTimeout, err)
	}

	switch {
	case c.ServerAddr == "":
		return eris.Wrap(ErrInvalid, "RTYPE_SERVER_ADDR is empty")
	case c.ServerTarget == "":
		return eris.Wrap(ErrInvalid, "RTYPE_SERVER_TARGET is empty")
	case c.Transport != "udp" && c.Transport != "quic":
		return eris.Wrapf(ErrInvalid, "RTYPE_TRANSPORT %q is neither udp nor quic", c.Transport)
	case c.TickRate <= 0 || c.TickRate > 1000:
		return eris.Wrapf(ErrInvalid, "RTYPE_TICK_RATE %d out of (0, 1000]", c.TickRate)
	case c.sessionTimeout <= 0:
		return eris.Wrapf(ErrInvalid, "RTYPE_SESSION_TIMEOUT %s must be positive", c.sessionTimeout)
	case c.readTimeout <= 0:
		return eris.Wrapf(ErrInvalid, "RTYPE_READ_TIMEOUT %s must be positive", c.readTimeout)
	case c.readTimeout >= c.sessionTimeout:
		return eris.Wrapf(ErrInvalid, "RTYPE_READ_TIMEOUT %s must be below RTYPE_SESSION_TIMEOUT %s", c.readTimeout, c.sessionTimeout)
	case c.MaxEntities <= 0 || c.MaxEntities > protocol.MaxSnapshotEntities:
		return eris.Wrapf(ErrInvalid, "RTYPE_MAX_ENTITIES %d out of (0, %d]", c.MaxEntities, protocol.MaxSnapshotEntities)
	case c.MaxSessions <= 0 || c.MaxSessions > c.MaxEntities:
		return eris.Wrapf(ErrInvalid, "RTYPE_MAX_SESSIONS %d out of (0, %d]", c.MaxSessions, c.MaxEntities)
	}
	return nil
}

// SessionTimeoutDuration is valid after Validate.
func (c Config) SessionTimeoutDuration() time.Duration {
	return c.sessionTimeout
}

// ReadTimeoutDuration is valid after Validate.
func (c Config) ReadTimeoutDuration() time.Duration {
	return c.readTimeout
}
