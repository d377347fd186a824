package bootstrap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/volumed/internal/compat"
	"github.com/marmos91/volumed/internal/logger"
	"github.com/marmos91/volumed/internal/procenv"
	"github.com/marmos91/volumed/pkg/config"
	"github.com/marmos91/volumed/pkg/server"
)

func TestMain(m *testing.M) {
	logger.InitWithWriter(io.Discard, "ERROR", "text", false)
	if err := procenv.Prepare(procenv.Options{}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

const echoProfile = "echo"

func echoRegistry(t *testing.T) *server.Registry {
	t.Helper()
	reg, err := server.NewRegistry(server.Profile{
		Name: echoProfile,
		Build: func(*config.Resolved) (server.Application, error) {
			return server.ApplicationFunc(func(ctx context.Context, conn net.Conn) error {
				line, err := bufio.NewReader(conn).ReadString('\n')
				if err != nil {
					return err
				}
				_, err = conn.Write([]byte(line))
				return err
			}), nil
		},
	})
	require.NoError(t, err)
	return reg
}

func resolver(t *testing.T, args ...string) func() (*config.Resolved, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	args = append([]string{"--host", "127.0.0.1", "--port", "0", "--profile", echoProfile}, args...)
	return func() (*config.Resolved, error) {
		return config.Resolve(args, config.ProjectName, "test")
	}
}

// testSequence returns a sequence whose hooks record the order they ran in.
func testSequence(t *testing.T, calls *[]string) *Sequence {
	resolve := resolver(t)
	return &Sequence{
		Project:  config.ProjectName,
		Version:  "test",
		Registry: echoRegistry(t),
		Signals:  []os.Signal{testSignal},
		PrepareRuntime: func() error {
			*calls = append(*calls, string(StageRuntime))
			return nil
		},
		ResolveConfig: func() (*config.Resolved, error) {
			*calls = append(*calls, string(StageConfig))
			return resolve()
		},
		SetupLogging: func(*config.Resolved) error {
			*calls = append(*calls, string(StageLogging))
			return nil
		},
		Patches: func(config.CompatConfig) []compat.Patch {
			*calls = append(*calls, string(StageCompat))
			return nil
		},
	}
}

func runAsync(ctx context.Context, s *Sequence) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("sequence did not return")
		return nil
	}
}

func echo(t *testing.T, addr string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	_, err = fmt.Fprintln(conn, "ping")
	require.NoError(t, err)
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	return line
}

func TestSequence_RunsStagesInOrder(t *testing.T) {
	var calls []string
	s := testSequence(t, &calls)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Started = func(instances []*server.Instance) error {
		calls = append(calls, string(StageServer))
		require.Len(t, instances, 1)
		assert.Equal(t, server.StateRunning, instances[0].State())
		assert.Equal(t, "ping\n", echo(t, instances[0].Addr().String()))
		cancel()
		return nil
	}

	err := waitResult(t, runAsync(ctx, s))
	require.NoError(t, err)
	assert.Equal(t, []string{"runtime", "config", "logging", "compat", "server"}, calls)
}

func TestSequence_StageFailuresAbort(t *testing.T) {
	tests := []struct {
		name     string
		breakAt  Stage
		err      error
		wantCode int
		wantRan  []string
	}{
		{
			name:     "Runtime",
			breakAt:  StageRuntime,
			err:      fmt.Errorf("%w: PROCS", procenv.ErrInvalidOption),
			wantCode: ExitRuntime,
			wantRan:  []string{"runtime"},
		},
		{
			name:     "Config",
			breakAt:  StageConfig,
			err:      &config.Error{Key: "server.host", Err: config.ErrMissingRequired},
			wantCode: ExitConfiguration,
			wantRan:  []string{"runtime", "config"},
		},
		{
			name:     "Logging",
			breakAt:  StageLogging,
			err:      &logger.InitError{Sink: "file", Err: os.ErrPermission},
			wantCode: ExitLogging,
			wantRan:  []string{"runtime", "config", "logging"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			s := testSequence(t, &calls)

			switch tt.breakAt {
			case StageRuntime:
				s.PrepareRuntime = func() error {
					calls = append(calls, "runtime")
					return tt.err
				}
			case StageConfig:
				s.ResolveConfig = func() (*config.Resolved, error) {
					calls = append(calls, "config")
					return nil, tt.err
				}
			case StageLogging:
				s.SetupLogging = func(*config.Resolved) error {
					calls = append(calls, "logging")
					return tt.err
				}
			}
			s.Started = func([]*server.Instance) error {
				t.Fatal("no instance may start after a failed stage")
				return nil
			}

			err := s.Run(context.Background())
			require.Error(t, err)

			var stageErr *StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, tt.breakAt, stageErr.Stage)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.wantCode, ExitCode(err))
			assert.Equal(t, tt.wantRan, calls)
		})
	}
}

func TestSequence_MissingRequiredOption(t *testing.T) {
	var calls []string
	s := testSequence(t, &calls)
	s.ResolveConfig = func() (*config.Resolved, error) {
		calls = append(calls, "config")
		return config.Resolve([]string{"--host", "", "--port", "0"}, config.ProjectName, "test")
	}

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfiguration)
	assert.Equal(t, ExitConfiguration, ExitCode(err))
	assert.Equal(t, []string{"runtime", "config"}, calls)
}

func TestSequence_DefaultRuntimeStageRunsOnce(t *testing.T) {
	var calls []string
	s := testSequence(t, &calls)
	s.PrepareRuntime = nil

	// TestMain already prepared the runtime.
	err := s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, procenv.ErrAlreadyPrepared)
	assert.Equal(t, ExitRuntime, ExitCode(err))
	assert.Empty(t, calls)
}

func TestSequence_CompatFailureDoesNotAbort(t *testing.T) {
	var calls []string
	s := testSequence(t, &calls)

	var ranAfterPanic bool
	s.Patches = func(config.CompatConfig) []compat.Patch {
		return []compat.Patch{
			{Name: "broken", Apply: func(context.Context, *compat.Tuning) error {
				return errors.New("boom")
			}},
			{Name: "panics", Apply: func(context.Context, *compat.Tuning) error {
				panic("unexpected")
			}},
			{Name: "fine", Apply: func(context.Context, *compat.Tuning) error {
				ranAfterPanic = true
				return nil
			}},
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Started = func(instances []*server.Instance) error {
		assert.Equal(t, "ping\n", echo(t, instances[0].Addr().String()))
		cancel()
		return nil
	}

	require.NoError(t, waitResult(t, runAsync(ctx, s)))
	assert.True(t, ranAfterPanic)
}

func TestSequence_BindFailure(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()
	port := occupied.Addr().(*net.TCPAddr).Port

	var calls []string
	s := testSequence(t, &calls)
	resolve := resolver(t, "--port", fmt.Sprint(port))
	s.ResolveConfig = resolve
	s.Started = func([]*server.Instance) error {
		t.Fatal("Started must not run when bind fails")
		return nil
	}

	err = s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, server.ErrBind)
	assert.Equal(t, ExitBind, ExitCode(err))
}

func TestSequence_UnknownProfile(t *testing.T) {
	var calls []string
	s := testSequence(t, &calls)
	s.ResolveConfig = resolver(t, "--profile", "no-such-profile")

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, server.ErrProfileNotFound)
	assert.Equal(t, ExitBindConfig, ExitCode(err))
}

func TestSequence_StartedHookFailureStopsInstances(t *testing.T) {
	var calls []string
	s := testSequence(t, &calls)

	var (
		addr    string
		started []*server.Instance
	)
	hookErr := errors.New("pid file not writable")
	s.Started = func(instances []*server.Instance) error {
		started = instances
		addr = instances[0].Addr().String()
		return hookErr
	}

	err := waitResult(t, runAsync(context.Background(), s))
	assert.ErrorIs(t, err, hookErr)
	assert.Equal(t, ExitFailure, ExitCode(err))

	// Instances that started are drained before Run returns.
	require.NotEmpty(t, started)
	for _, inst := range started {
		assert.Equal(t, server.StateStopped, inst.State())
	}

	_, dialErr := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	assert.Error(t, dialErr)
}

func TestSequence_RequiresRegistry(t *testing.T) {
	err := (&Sequence{}).Run(context.Background())
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"Nil", nil, ExitOK},
		{"Other", errors.New("boom"), ExitFailure},
		{"Configuration", &config.Error{Key: "server.port", Err: errors.New("bad")}, ExitConfiguration},
		{"Logging", &logger.InitError{Sink: "syslog", Err: errors.New("refused")}, ExitLogging},
		{"ProfileNotFound", fmt.Errorf("%w: %q", server.ErrProfileNotFound, "x"), ExitBindConfig},
		{"BindConfiguration", &server.BindConfigError{Profile: "x", Field: "port", Reason: "reserved"}, ExitBindConfig},
		{"Bind", &server.BindError{Address: "127.0.0.1:1", Err: errors.New("in use")}, ExitBind},
		{"Lifecycle", fmt.Errorf("wrap: %w", server.ErrInvalidLifecycleState), ExitLifecycle},
		{"Runtime", procenv.ErrNotPrepared, ExitRuntime},
		{"Staged", &StageError{Stage: StageConfig, Err: &config.Error{Err: errors.New("x")}}, ExitConfiguration},
		{"Joined", errors.Join(&server.BindError{Address: "a", Err: errors.New("in use")}, server.ErrDrainTimeout), ExitBind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestLoggerConfig(t *testing.T) {
	cfg := config.DefaultConfig().Logging
	cfg.Debug = true
	cfg.File.Path = "/var/log/volumed.log"
	cfg.Syslog.Enabled = true
	cfg.Syslog.Facility = "local3"

	got := LoggerConfig(cfg)
	assert.Equal(t, cfg.Level, got.Level)
	assert.Equal(t, cfg.Format, got.Format)
	assert.Equal(t, cfg.Output, got.Output)
	assert.True(t, got.Debug)
	assert.Equal(t, "/var/log/volumed.log", got.File.Path)
	assert.True(t, got.Syslog.Enabled)
	assert.Equal(t, "local3", got.Syslog.Facility)
}

func TestProfileNames(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Profile = "volume-api"
	assert.Equal(t, []string{"volume-api"}, profileNames(*cfg))

	cfg.Metrics.Enabled = true
	assert.Equal(t, []string{"volume-api", "metrics"}, profileNames(*cfg))

	cfg.Server.Profile = "metrics"
	assert.Equal(t, []string{"metrics"}, profileNames(*cfg))
}
