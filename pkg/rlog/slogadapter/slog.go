// Package slogadapter implements rlog.Logger on top of log/slog, for
// programs that already route their logs through slog.
package slogadapter

import (
	"io"
	"log/slog"
	"strings"

	"rtype/pkg/rlog"
)

type Adapter struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Adapter {
	return &Adapter{logger: logger}
}

// NewJSON writes JSON lines to w at level. Unknown levels fall back to info.
func NewJSON(w io.Writer, level string) *Adapter {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return New(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})))
}

// With binds keyValues to a child logger.
func (a *Adapter) With(keyValues ...any) rlog.Logger {
	return New(a.logger.With(keyValues...))
}

func (a *Adapter) Info(msg string, keysAndValues ...any) {
	a.logger.Info(msg, keysAndValues...)
}

func (a *Adapter) Error(msg string, keysAndValues ...any) {
	a.logger.Error(msg, normalize(keysAndValues)...)
}

func (a *Adapter) Debug(msg string, keysAndValues ...any) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a *Adapter) Warn(msg string, keysAndValues ...any) {
	a.logger.Warn(msg, normalize(keysAndValues)...)
}

// normalize renders error values as their message; the JSON handler would
// otherwise marshal eris errors field by field.
func normalize(kv []any) []any {
	for i := 1; i < len(kv); i += 2 {
		if err, ok := kv[i].(error); ok {
			kv[i] = err.Error()
		}
	}
	return kv
}
