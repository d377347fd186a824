package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

// captureOutput redirects console output to a buffer for testing.
// Returns the buffer and a cleanup function to restore original output.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()

	reconfigure()

	cleanup := func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		reconfigure()
	}

	return buf, cleanup
}

// resetAfter restores every piece of global logger state touched by Setup.
func resetAfter(t *testing.T) {
	t.Helper()

	mu.RLock()
	originalOutput := output
	originalColor := useColor
	mu.RUnlock()
	level := currentLevel.Load()
	format := currentFormat.Load()

	t.Cleanup(func() {
		Close()
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		service = ""
		mu.Unlock()
		currentLevel.Store(level)
		currentFormat.Store(format)
		reconfigure()
	})
}

type fakeSyslog struct {
	mu     sync.Mutex
	lines  map[string][]string
	closed bool
}

func newFakeSyslog() *fakeSyslog {
	return &fakeSyslog{lines: make(map[string][]string)}
}

func (f *fakeSyslog) record(sev, m string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines[sev] = append(f.lines[sev], m)
	return nil
}

func (f *fakeSyslog) Debug(m string) error   { return f.record("debug", m) }
func (f *fakeSyslog) Info(m string) error    { return f.record("info", m) }
func (f *fakeSyslog) Warning(m string) error { return f.record("warning", m) }
func (f *fakeSyslog) Err(m string) error     { return f.record("err", m) }
func (f *fakeSyslog) Close() error           { f.closed = true; return nil }

// ============================================================================
// Level Filtering Tests
// ============================================================================

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugLevelShowsAllMessages", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("DEBUG")
		defer SetLevel("INFO")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		assert.Contains(t, out, "[DEBUG] debug message")
		assert.Contains(t, out, "[INFO] info message")
		assert.Contains(t, out, "[WARN] warn message")
		assert.Contains(t, out, "[ERROR] error message")
	})

	t.Run("WarnLevelFiltersDebugAndInfo", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("WARN")
		defer SetLevel("INFO")

		Debug("debug message")
		Info("info message")
		Warn("warn message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.NotContains(t, out, "info message")
		assert.Contains(t, out, "warn message")
	})

	t.Run("SetLevelIgnoresInvalidValues", func(t *testing.T) {
		SetLevel("ERROR")
		defer SetLevel("INFO")

		SetLevel("chatty")
		assert.Equal(t, LevelError, CurrentLevel())
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"Warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"trace", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEffectiveLevel(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want Level
	}{
		{"DefaultsToInfo", Config{}, LevelInfo},
		{"ConfiguredLevel", Config{Level: "ERROR"}, LevelError},
		{"DebugWins", Config{Level: "ERROR", Debug: true, Verbose: true}, LevelDebug},
		{"VerboseLowersToInfo", Config{Level: "ERROR", Verbose: true}, LevelInfo},
		{"VerboseKeepsDebug", Config{Level: "DEBUG", Verbose: true}, LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := effectiveLevel(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// ============================================================================
// Setup Tests
// ============================================================================

func TestSetup(t *testing.T) {
	t.Run("FileSinkUsesItsOwnLevel", func(t *testing.T) {
		resetAfter(t)
		path := filepath.Join(t.TempDir(), "volumed.log")

		err := Setup("volumed", Config{
			Level:  "WARN",
			Output: "stderr",
			File:   FileConfig{Path: path, Level: "DEBUG"},
		})
		require.NoError(t, err)

		buf, cleanup := captureOutput()
		defer cleanup()

		Debug("only in file", KeyProfile, "volume-api")
		Warn("everywhere")
		Close()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "only in file")
		assert.Contains(t, string(data), "profile=volume-api")
		assert.Contains(t, string(data), "service=volumed")
		assert.Contains(t, string(data), "everywhere")

		assert.NotContains(t, buf.String(), "only in file")
		assert.Contains(t, buf.String(), "everywhere")
	})

	t.Run("DebugForcesSinksWithoutLevel", func(t *testing.T) {
		resetAfter(t)
		path := filepath.Join(t.TempDir(), "debug.log")

		err := Setup("volumed", Config{Level: "ERROR", Debug: true, File: FileConfig{Path: path}})
		require.NoError(t, err)
		assert.Equal(t, LevelDebug, CurrentLevel())

		_, cleanup := captureOutput()
		defer cleanup()

		Debug("verbose detail")
		Close()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "verbose detail")
	})

	t.Run("UnwritableFileFails", func(t *testing.T) {
		resetAfter(t)
		path := filepath.Join(t.TempDir(), "missing", "dir", "volumed.log")

		err := Setup("volumed", Config{File: FileConfig{Path: path}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrLoggingInit))

		var initErr *InitError
		require.ErrorAs(t, err, &initErr)
		assert.Equal(t, "file", initErr.Sink)
	})

	t.Run("InvalidLevelFails", func(t *testing.T) {
		resetAfter(t)

		err := Setup("volumed", Config{Level: "LOUD"})
		assert.ErrorIs(t, err, ErrLoggingInit)
	})

	t.Run("InvalidOutputFails", func(t *testing.T) {
		resetAfter(t)

		err := Setup("volumed", Config{Output: "/dev/tty99"})
		assert.ErrorIs(t, err, ErrLoggingInit)
	})

	t.Run("JSONFormatCarriesService", func(t *testing.T) {
		resetAfter(t)

		require.NoError(t, Setup("volumed", Config{Format: "json"}))

		buf, cleanup := captureOutput()
		defer cleanup()

		Info("ready", KeyAddress, "127.0.0.1:8776")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "volumed", entry[KeyService])
		assert.Equal(t, "ready", entry["msg"])
		assert.Equal(t, "127.0.0.1:8776", entry[KeyAddress])
	})
}

// ============================================================================
// Handler Tests
// ============================================================================

func TestSyslogHandler(t *testing.T) {
	t.Run("MapsLevelsToSeverity", func(t *testing.T) {
		w := newFakeSyslog()
		l := slog.New(newSyslogHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))

		l.Debug("d")
		l.Info("i", "k", "v")
		l.Warn("w")
		l.Error("e")

		assert.Equal(t, []string{"d"}, w.lines["debug"])
		assert.Equal(t, []string{"i k=v"}, w.lines["info"])
		assert.Equal(t, []string{"w"}, w.lines["warning"])
		assert.Equal(t, []string{"e"}, w.lines["err"])
	})

	t.Run("FiltersBelowLevel", func(t *testing.T) {
		w := newFakeSyslog()
		l := slog.New(newSyslogHandler(w, &slog.HandlerOptions{Level: slog.LevelWarn}))

		l.Info("dropped")
		l.Warn("kept")

		assert.Empty(t, w.lines["info"])
		assert.Equal(t, []string{"kept"}, w.lines["warning"])
	})

	t.Run("IncludesBoundAttrs", func(t *testing.T) {
		w := newFakeSyslog()
		l := slog.New(newSyslogHandler(w, nil)).With(KeyService, "volumed")

		l.Info("hello")
		assert.Equal(t, []string{"hello service=volumed"}, w.lines["info"])
	})
}

func TestFanoutHandler(t *testing.T) {
	var info, debug bytes.Buffer
	h := newFanoutHandler(
		NewColorTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}, false),
		NewColorTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}, false),
	)
	l := slog.New(h).With("conn", "c1")

	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))

	l.Debug("low")
	l.Info("high")

	assert.NotContains(t, info.String(), "low")
	assert.Contains(t, info.String(), "high conn=c1")
	assert.Contains(t, debug.String(), "low conn=c1")
	assert.Contains(t, debug.String(), "high conn=c1")
}

func TestColorTextHandler(t *testing.T) {
	t.Run("GroupsBecomeDottedKeys", func(t *testing.T) {
		var buf bytes.Buffer
		l := slog.New(NewColorTextHandler(&buf, nil, false))

		l.WithGroup("listener").Info("bound", "port", 8776, slog.Group("peer", "host", "::1"))

		assert.Contains(t, buf.String(), "listener.port=8776")
		assert.Contains(t, buf.String(), "listener.peer.host=::1")
	})

	t.Run("QuotesValuesWithSpaces", func(t *testing.T) {
		var buf bytes.Buffer
		l := slog.New(NewColorTextHandler(&buf, nil, false))

		l.Info("failed", KeyError, "address already in use")
		assert.Contains(t, buf.String(), `error="address already in use"`)
	})

	t.Run("ColorWrapsLevel", func(t *testing.T) {
		var buf bytes.Buffer
		l := slog.New(NewColorTextHandler(&buf, nil, true))

		l.Warn("careful")
		assert.Contains(t, buf.String(), colorYellow+"WARN"+colorReset)
	})
}

// ============================================================================
// Context Logging Tests
// ============================================================================

func TestContextLogging(t *testing.T) {
	t.Run("LogContextInjectsFields", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		lc := NewLogContext("volume-api", "inst-1", "conn-7", "10.0.0.1:5555").WithTrace("abc", "def")
		ctx := WithContext(context.Background(), lc)

		InfoCtx(ctx, "accepted")

		out := buf.String()
		assert.Contains(t, out, "trace_id=abc")
		assert.Contains(t, out, "span_id=def")
		assert.Contains(t, out, "profile=volume-api")
		assert.Contains(t, out, "connection_id=conn-7")
		assert.Contains(t, out, "remote_addr=10.0.0.1:5555")
	})

	t.Run("ContextWithoutLogContextHandled", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		WarnCtx(context.Background(), "plain")
		assert.Contains(t, buf.String(), "plain")
	})

	t.Run("CloneIsIndependent", func(t *testing.T) {
		lc := NewLogContext("metrics", "i", "c", "r")
		clone := lc.WithTrace("t", "s")

		assert.Empty(t, lc.TraceID)
		assert.Equal(t, "t", clone.TraceID)
		assert.Nil(t, (*LogContext)(nil).Clone())
		assert.GreaterOrEqual(t, lc.DurationMs(), 0.0)
	})
}

// ============================================================================
// Concurrency Tests
// ============================================================================

func TestConcurrentLogging(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Info("concurrent", "n", j)
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 500)
}

func TestErrField(t *testing.T) {
	assert.Equal(t, slog.Attr{}, Err(nil))
	assert.Equal(t, "boom", Err(errors.New("boom")).Value.String())
}
