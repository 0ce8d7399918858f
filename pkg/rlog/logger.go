// Package rlog defines the logger the networking core writes to. Adapters for
// concrete logging libraries live in sub-packages.
package rlog

type Logger interface {
	Info(s string, keyValues ...any)
	Error(s string, keyValues ...any)
	Debug(s string, keyValues ...any)
	Warn(s string, keyValues ...any)
}

type nop struct{}

func (nop) Info(string, ...any)  {}
func (nop) Error(string, ...any) {}
func (nop) Debug(string, ...any) {}
func (nop) Warn(string, ...any)  {}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nop{}
}

// Contextual is implemented by adapters whose library binds fields natively.
type Contextual interface {
	With(keyValues ...any) Logger
}

// With returns a Logger that prepends keyValues to every call.
func With(l Logger, keyValues ...any) Logger {
	if len(keyValues) == 0 {
		return l
	}
	if c, ok := l.(Contextual); ok {
		return c.With(keyValues...)
	}
	return &withLogger{parent: l, fields: keyValues}
}

type withLogger struct {
	parent Logger
	fields []any
}

func (w *withLogger) merge(kv []any) []any {
	out := make([]any, 0, len(w.fields)+len(kv))
	out = append(out, w.fields...)
	return append(out, kv...)
}

func (w *withLogger) Info(s string, kv ...any)  { w.parent.Info(s, w.merge(kv)...) }
func (w *withLogger) Error(s string, kv ...any) { w.parent.Error(s, w.merge(kv)...) }
func (w *withLogger) Debug(s string, kv ...any) { w.parent.Debug(s, w.merge(kv)...) }
func (w *withLogger) Warn(s string, kv ...any)  { w.parent.Warn(s, w.merge(kv)...) }
