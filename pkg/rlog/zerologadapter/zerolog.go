// Package zerologadapter implements rlog.Logger on top of zerolog.
package zerologadapter

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"rtype/pkg/rlog"
)

type Adapter struct {
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Adapter {
	return &Adapter{logger: logger}
}

// NewFromEnv builds a logger writing to w. format "console" selects the human
// readable writer, anything else emits JSON lines. Unknown levels fall back to info.
func NewFromEnv(w io.Writer, level, format string) *Adapter {
	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return New(zerolog.New(w).Level(lvl).With().Timestamp().Logger())
}

// With binds keyValues to a child logger.
func (a *Adapter) With(keyValues ...any) rlog.Logger {
	return New(a.logger.With().Fields(keyValues).Logger())
}

// Zerolog exposes the underlying logger.
func (a *Adapter) Zerolog() *zerolog.Logger {
	return &a.logger
}

func (a *Adapter) Info(msg string, keysAndValues ...any) {
	a.logger.Info().Fields(keysAndValues).Msg(msg)
}

func (a *Adapter) Error(msg string, keysAndValues ...any) {
	a.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (a *Adapter) Debug(msg string, keysAndValues ...any) {
	a.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (a *Adapter) Warn(msg string, keysAndValues ...any) {
	a.logger.Warn().Fields(keysAndValues).Msg(msg)
}
