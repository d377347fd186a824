package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents log levels
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logger configuration.
//
// Console output is always enabled. File and syslog sinks are added on top
// of it and may carry their own minimum level.
type Config struct {
	Level   string // DEBUG, INFO, WARN, ERROR
	Format  string // text, json
	Output  string // stdout, stderr
	Debug   bool   // forces DEBUG on every sink without its own level
	Verbose bool   // lowers the base level to at most INFO
	File    FileConfig
	Syslog  SyslogConfig
}

// FileConfig enables an append-only log file sink.
type FileConfig struct {
	Path  string
	Level string // empty means the base level
}

// SyslogConfig enables a syslog sink.
type SyslogConfig struct {
	Enabled  bool
	Network  string // "", "udp", "tcp" or "unix"; empty dials the local daemon
	Address  string
	Tag      string
	Facility string // daemon, user, local0..local7
	Level    string
}

var (
	// minLevel is the lowest level accepted by any installed sink. The
	// package-level helpers use it to skip record construction early.
	minLevel      atomic.Int32
	currentLevel  atomic.Int32
	currentFormat atomic.Value // stores "text" or "json"

	mu       sync.RWMutex
	handler  slog.Handler
	slogger  *slog.Logger
	output   io.Writer = os.Stdout
	useColor bool      = true
	service  string
	extras   []sink
)

func init() {
	currentLevel.Store(int32(LevelInfo))
	minLevel.Store(int32(LevelInfo))
	currentFormat.Store("text")

	if f, ok := output.(*os.File); ok {
		useColor = isTerminal(f.Fd())
	}

	reconfigure()
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name to a Level. Matching is case-insensitive.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// toSlogLevel converts internal level to slog.Level
func toSlogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// reconfigure rebuilds the slog handler from the console settings plus any
// extra sinks installed by Setup.
func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	level := Level(currentLevel.Load())
	format, _ := currentFormat.Load().(string)

	opts := &slog.HandlerOptions{Level: toSlogLevel(level)}

	var console slog.Handler
	if format == "json" {
		console = slog.NewJSONHandler(output, opts)
	} else {
		console = NewColorTextHandler(output, opts, useColor)
	}

	lowest := level
	if len(extras) == 0 {
		handler = console
	} else {
		handlers := make([]slog.Handler, 0, len(extras)+1)
		handlers = append(handlers, console)
		for _, s := range extras {
			handlers = append(handlers, s.handler)
			if s.level < lowest {
				lowest = s.level
			}
		}
		handler = newFanoutHandler(handlers...)
	}
	minLevel.Store(int32(lowest))

	if service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String(KeyService, service)})
	}

	slogger = slog.New(handler)
}

// Setup installs the process-wide sinks described by cfg and tags every
// record with the service name. Any sink that cannot be opened fails the
// whole call with an error matching ErrLoggingInit, leaving the previous
// configuration in place.
//
// Setup is meant to be called once per process.
func Setup(serviceName string, cfg Config) error {
	base, err := effectiveLevel(cfg)
	if err != nil {
		return &InitError{Sink: "console", Err: err}
	}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "text"
	}
	if format != "text" && format != "json" {
		return &InitError{Sink: "console", Err: fmt.Errorf("unknown log format %q", cfg.Format)}
	}

	var console io.Writer
	var color bool
	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		console = os.Stdout
		color = isTerminal(os.Stdout.Fd())
	case "stderr":
		console = os.Stderr
		color = isTerminal(os.Stderr.Fd())
	default:
		return &InitError{Sink: "console", Err: fmt.Errorf("unknown console output %q", cfg.Output)}
	}

	sinks, err := openSinks(cfg, base, format)
	if err != nil {
		return err
	}

	mu.Lock()
	previous := extras
	output = console
	useColor = color
	service = serviceName
	extras = sinks
	mu.Unlock()

	closeSinks(previous)

	currentLevel.Store(int32(base))
	currentFormat.Store(format)
	reconfigure()

	return nil
}

// effectiveLevel derives the base level: debug wins, then verbose, then the
// configured level.
func effectiveLevel(cfg Config) (Level, error) {
	level := LevelInfo
	if cfg.Level != "" {
		l, err := ParseLevel(cfg.Level)
		if err != nil {
			return LevelInfo, err
		}
		level = l
	}

	switch {
	case cfg.Debug:
		return LevelDebug, nil
	case cfg.Verbose && level > LevelInfo:
		return LevelInfo, nil
	default:
		return level, nil
	}
}

// Close releases file and syslog sinks. Console output keeps working.
func Close() {
	mu.Lock()
	previous := extras
	extras = nil
	mu.Unlock()

	closeSinks(previous)
	reconfigure()
}

// InitWithWriter initializes the logger with a custom io.Writer.
// This is primarily useful for testing.
func InitWithWriter(w io.Writer, level, format string, enableColor bool) {
	mu.Lock()
	output = w
	useColor = enableColor
	mu.Unlock()

	if level != "" {
		SetLevel(level)
	}
	if format != "" {
		SetFormat(format)
	}
}

// SetLevel sets the minimum console log level
func SetLevel(level string) {
	l, err := ParseLevel(level)
	if err != nil {
		return // ignore invalid levels
	}
	currentLevel.Store(int32(l))
	reconfigure()
}

// SetFormat sets the console output format (text or json)
func SetFormat(format string) {
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return // ignore invalid formats
	}
	currentFormat.Store(format)
	reconfigure()
}

// CurrentLevel returns the console level.
func CurrentLevel() Level {
	return Level(currentLevel.Load())
}

func enabled(l Level) bool {
	return l >= Level(minLevel.Load())
}

// getLogger returns the current slog logger
func getLogger() *slog.Logger {
	mu.RLock()
	l := slogger
	mu.RUnlock()
	return l
}

// ============================================================================
// Structured Logging API
// ============================================================================

// Debug logs at debug level with structured fields
// Usage: Debug("message", "key1", value1, "key2", value2)
func Debug(msg string, args ...any) {
	if !enabled(LevelDebug) {
		return
	}
	getLogger().Debug(msg, args...)
}

// Info logs at info level with structured fields
func Info(msg string, args ...any) {
	if !enabled(LevelInfo) {
		return
	}
	getLogger().Info(msg, args...)
}

// Warn logs at warn level with structured fields
func Warn(msg string, args ...any) {
	if !enabled(LevelWarn) {
		return
	}
	getLogger().Warn(msg, args...)
}

// Error logs at error level with structured fields
func Error(msg string, args ...any) {
	getLogger().Error(msg, args...)
}

// ============================================================================
// Context-aware Logging API
// ============================================================================

// DebugCtx logs at debug level with context (injects connection and trace fields)
func DebugCtx(ctx context.Context, msg string, args ...any) {
	if !enabled(LevelDebug) {
		return
	}
	getLogger().Debug(msg, appendContextFields(ctx, args)...)
}

// InfoCtx logs at info level with context
func InfoCtx(ctx context.Context, msg string, args ...any) {
	if !enabled(LevelInfo) {
		return
	}
	getLogger().Info(msg, appendContextFields(ctx, args)...)
}

// WarnCtx logs at warn level with context
func WarnCtx(ctx context.Context, msg string, args ...any) {
	if !enabled(LevelWarn) {
		return
	}
	getLogger().Warn(msg, appendContextFields(ctx, args)...)
}

// ErrorCtx logs at error level with context
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	getLogger().Error(msg, appendContextFields(ctx, args)...)
}

// appendContextFields prepends LogContext fields to args
func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	ctxArgs := make([]any, 0, 12+len(args))

	if lc.TraceID != "" {
		ctxArgs = append(ctxArgs, KeyTraceID, lc.TraceID)
	}
	if lc.SpanID != "" {
		ctxArgs = append(ctxArgs, KeySpanID, lc.SpanID)
	}
	if lc.Profile != "" {
		ctxArgs = append(ctxArgs, KeyProfile, lc.Profile)
	}
	if lc.InstanceID != "" {
		ctxArgs = append(ctxArgs, KeyInstanceID, lc.InstanceID)
	}
	if lc.ConnectionID != "" {
		ctxArgs = append(ctxArgs, KeyConnectionID, lc.ConnectionID)
	}
	if lc.RemoteAddr != "" {
		ctxArgs = append(ctxArgs, KeyRemoteAddr, lc.RemoteAddr)
	}

	return append(ctxArgs, args...)
}

// With returns a new slog.Logger with additional attributes
func With(args ...any) *slog.Logger {
	return getLogger().With(args...)
}

// Duration returns duration since start time in milliseconds
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// Infof logs at info level with printf-style formatting
func Infof(format string, v ...any) {
	if !enabled(LevelInfo) {
		return
	}
	getLogger().Info(fmt.Sprintf(format, v...))
}

// Warnf logs at warn level with printf-style formatting
func Warnf(format string, v ...any) {
	if !enabled(LevelWarn) {
		return
	}
	getLogger().Warn(fmt.Sprintf(format, v...))
}
