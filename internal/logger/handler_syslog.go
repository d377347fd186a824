package logger

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// syslogWriter is the subset of *syslog.Writer used by syslogHandler.
type syslogWriter interface {
	io.Closer
	Debug(m string) error
	Info(m string) error
	Warning(m string) error
	Err(m string) error
}

// syslogHandler formats records as "msg key=val ..." and writes them with the
// syslog severity matching the record level. Timestamps are left to the
// syslog daemon.
type syslogHandler struct {
	opts  *slog.HandlerOptions
	w     syslogWriter
	mu    *sync.Mutex
	attrs []slog.Attr
}

func newSyslogHandler(w syslogWriter, opts *slog.HandlerOptions) *syslogHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &syslogHandler{opts: opts, w: w, mu: &sync.Mutex{}}
}

func (h *syslogHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *syslogHandler) Handle(_ context.Context, r slog.Record) error {
	buf := []byte(r.Message)
	for _, attr := range h.attrs {
		buf = appendPlainAttr(buf, attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		buf = appendPlainAttr(buf, a)
		return true
	})
	msg := string(buf)

	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case r.Level < slog.LevelInfo:
		return h.w.Debug(msg)
	case r.Level < slog.LevelWarn:
		return h.w.Info(msg)
	case r.Level < slog.LevelError:
		return h.w.Warning(msg)
	default:
		return h.w.Err(msg)
	}
}

func (h *syslogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &syslogHandler{
		opts:  h.opts,
		w:     h.w,
		mu:    h.mu,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

// WithGroup is a no-op: groups are not used by this codebase and syslog
// lines stay flat.
func (h *syslogHandler) WithGroup(string) slog.Handler {
	return h
}

func appendPlainAttr(buf []byte, a slog.Attr) []byte {
	if a.Equal(slog.Attr{}) {
		return buf
	}
	a.Value = a.Value.Resolve()
	buf = append(buf, ' ')
	buf = append(buf, a.Key...)
	buf = append(buf, '=')
	return append(buf, formatValue(a.Value)...)
}
