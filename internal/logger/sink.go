package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// ErrLoggingInit is matched by every error returned from Setup.
var ErrLoggingInit = errors.New("logging initialization failed")

// InitError reports which sink could not be installed.
type InitError struct {
	Sink string
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("failed to initialize %s log sink: %v", e.Sink, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrLoggingInit) hold for any InitError.
func (e *InitError) Is(target error) bool { return target == ErrLoggingInit }

// sink is a non-console destination installed by Setup.
type sink struct {
	name    string
	level   Level
	handler slog.Handler
	closer  io.Closer
}

// openSinks opens the file and syslog sinks requested by cfg. On failure
// every sink opened so far is closed again.
func openSinks(cfg Config, base Level, format string) ([]sink, error) {
	var sinks []sink

	fail := func(name string, err error) ([]sink, error) {
		closeSinks(sinks)
		return nil, &InitError{Sink: name, Err: err}
	}

	if cfg.File.Path != "" {
		level, err := sinkLevel(cfg.File.Level, base, cfg.Debug)
		if err != nil {
			return fail("file", err)
		}

		f, err := os.OpenFile(cfg.File.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fail("file", fmt.Errorf("open %q: %w", cfg.File.Path, err))
		}

		opts := &slog.HandlerOptions{Level: toSlogLevel(level)}
		var h slog.Handler
		if format == "json" {
			h = slog.NewJSONHandler(f, opts)
		} else {
			h = NewColorTextHandler(f, opts, false)
		}
		sinks = append(sinks, sink{name: "file", level: level, handler: h, closer: f})
	}

	if cfg.Syslog.Enabled {
		level, err := sinkLevel(cfg.Syslog.Level, base, cfg.Debug)
		if err != nil {
			return fail("syslog", err)
		}

		tag := cfg.Syslog.Tag
		if tag == "" {
			tag = "volumed"
		}

		w, err := dialSyslog(cfg.Syslog.Network, cfg.Syslog.Address, cfg.Syslog.Facility, tag)
		if err != nil {
			return fail("syslog", err)
		}

		h := newSyslogHandler(w, &slog.HandlerOptions{Level: toSlogLevel(level)})
		sinks = append(sinks, sink{name: "syslog", level: level, handler: h, closer: w})
	}

	return sinks, nil
}

// sinkLevel resolves a sink-specific level. Debug mode overrides only sinks
// that do not name their own level.
func sinkLevel(s string, base Level, debug bool) (Level, error) {
	if s == "" {
		if debug {
			return LevelDebug, nil
		}
		return base, nil
	}
	return ParseLevel(s)
}

func closeSinks(sinks []sink) {
	for _, s := range sinks {
		if s.closer != nil {
			_ = s.closer.Close()
		}
	}
}

// fanoutHandler dispatches each record to every handler that accepts its
// level. Handlers filter independently.
type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) *fanoutHandler {
	return &fanoutHandler{handlers: handlers}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, child := range h.handlers {
		if child.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, child := range h.handlers {
		if !child.Enabled(ctx, r.Level) {
			continue
		}
		if err := child.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	children := make([]slog.Handler, len(h.handlers))
	for i, child := range h.handlers {
		children[i] = child.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: children}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	children := make([]slog.Handler, len(h.handlers))
	for i, child := range h.handlers {
		children[i] = child.WithGroup(name)
	}
	return &fanoutHandler{handlers: children}
}
