// Package bootstrap runs the startup sequence of the service: prepare the
// runtime, resolve configuration, initialize logging, apply compatibility
// patches, then construct, start and wait on the server instances.
//
// The stages run strictly in that order on the calling goroutine. A failure
// in any stage except the compatibility patches aborts the sequence before
// a later stage runs.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/marmos91/volumed/internal/compat"
	"github.com/marmos91/volumed/internal/logger"
	"github.com/marmos91/volumed/internal/procenv"
	"github.com/marmos91/volumed/internal/telemetry"
	"github.com/marmos91/volumed/pkg/config"
	"github.com/marmos91/volumed/pkg/metrics"
	"github.com/marmos91/volumed/pkg/server"
)

// Stage names a step of the sequence.
type Stage string

const (
	StageRuntime Stage = "runtime"
	StageConfig  Stage = "config"
	StageLogging Stage = "logging"
	StageCompat  Stage = "compat"
	StageServer  Stage = "server"
)

// telemetryShutdownTimeout bounds the trace exporter flush on exit.
const telemetryShutdownTimeout = 5 * time.Second

// Sequence describes one run of the startup sequence. The zero value of each
// stage hook selects the production implementation; tests replace them.
type Sequence struct {
	Project string
	Version string
	Commit  string

	// Registry holds the profiles the server stage may construct.
	Registry *server.Registry

	// Signals overrides the stop signals. Empty means SIGINT and SIGTERM.
	Signals []os.Signal

	// PrepareRuntime defaults to procenv.Prepare with options read from
	// the VOLUMED_RUNTIME_* environment.
	PrepareRuntime func() error

	// ResolveConfig defaults to config.Resolve over os.Args[1:].
	ResolveConfig func() (*config.Resolved, error)

	// SetupLogging defaults to logger.Setup with the logging options.
	SetupLogging func(cfg *config.Resolved) error

	// Patches defaults to compat.Defaults.
	Patches func(cfg config.CompatConfig) []compat.Patch

	// Started runs once every instance is listening and before the
	// sequence parks in Wait. An error stops the instances and is returned.
	Started func(instances []*server.Instance) error

	timings []stageTiming
	metrics metrics.BootstrapMetrics
}

type stageTiming struct {
	stage    Stage
	duration time.Duration
	err      error
}

// Run executes the sequence and blocks until the instances have stopped.
// It returns nil after a clean, signal-driven shutdown. Cancelling ctx stops
// the instances the same way a stop signal does.
func (s *Sequence) Run(ctx context.Context) error {
	if s.Registry == nil {
		return errors.New("bootstrap requires a profile registry")
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanBootstrap)
	defer span.End()

	if err := s.stage(ctx, StageRuntime, func(context.Context) error {
		return s.prepareRuntime()
	}); err != nil {
		return err
	}

	var resolved *config.Resolved
	if err := s.stage(ctx, StageConfig, func(context.Context) error {
		var err error
		resolved, err = s.resolveConfig()
		return err
	}); err != nil {
		return err
	}
	cfg := resolved.Config()

	if err := s.stage(ctx, StageLogging, func(context.Context) error {
		return s.setupLogging(resolved)
	}); err != nil {
		return err
	}
	defer logger.Close()

	logger.Info("Configuration loaded",
		logger.KeyConfig, configSource(resolved),
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}
	s.metrics = metrics.NewBootstrapMetrics()
	if s.metrics != nil {
		s.metrics.SetBuildInfo(s.Version, s.Commit)
		for _, t := range s.timings {
			s.metrics.ObserveStage(string(t.stage), t.duration, t.err)
		}
	}

	var report compat.Report
	_ = s.stage(ctx, StageCompat, func(ctx context.Context) error {
		report = compat.Apply(ctx, s.patches(cfg.Compat), cfg.Compat.Disabled)
		for _, res := range report.Results {
			metrics.RecordPatch(s.metrics, res.Name, res.Outcome.String())
		}
		return nil
	})
	if failed := report.Failed(); len(failed) > 0 {
		logger.Warn("Some compatibility patches failed", "patches", failed)
	}

	stopObservability := s.startObservability(ctx, cfg)
	defer stopObservability()

	return s.serve(ctx, resolved, report.Tuning)
}

// stage runs fn inside a span, times it and attributes its error.
func (s *Sequence) stage(ctx context.Context, st Stage, fn func(ctx context.Context) error) error {
	ctx, span := telemetry.StartStageSpan(ctx, string(st))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	s.observe(st, time.Since(start), err)

	if err != nil {
		telemetry.RecordError(ctx, err)
		return &StageError{Stage: st, Err: err}
	}

	logger.Debug("Bootstrap stage completed", logger.KeyStage, string(st), logger.KeyDurationMs, logger.Duration(start))
	return nil
}

// observe records a stage timing. Timings taken before the metrics registry
// exists are replayed once it does.
func (s *Sequence) observe(st Stage, d time.Duration, err error) {
	if s.metrics == nil {
		s.timings = append(s.timings, stageTiming{stage: st, duration: d, err: err})
		return
	}
	s.metrics.ObserveStage(string(st), d, err)
}

func (s *Sequence) prepareRuntime() error {
	if s.PrepareRuntime != nil {
		return s.PrepareRuntime()
	}
	opts, err := procenv.OptionsFromEnv(procenv.DefaultEnvPrefix)
	if err != nil {
		return err
	}
	return procenv.Prepare(opts)
}

func (s *Sequence) resolveConfig() (*config.Resolved, error) {
	if s.ResolveConfig != nil {
		return s.ResolveConfig()
	}
	return config.Resolve(os.Args[1:], s.Project, s.Version)
}

func (s *Sequence) setupLogging(cfg *config.Resolved) error {
	if s.SetupLogging != nil {
		return s.SetupLogging(cfg)
	}
	return logger.Setup(cfg.ProjectName(), LoggerConfig(cfg.Config().Logging))
}

func (s *Sequence) patches(cfg config.CompatConfig) []compat.Patch {
	if s.Patches != nil {
		return s.Patches(cfg)
	}
	return compat.Defaults(cfg)
}

// startObservability starts tracing and profiling. Both are best effort: a
// collector that cannot be configured is logged and the service starts
// without it.
func (s *Sequence) startObservability(ctx context.Context, cfg config.Config) func() {
	tracingCfg, profilingCfg := telemetry.FromConfig(cfg, s.Project, s.Version)

	var stops []func()

	traceShutdown, err := telemetry.Init(ctx, tracingCfg)
	switch {
	case err != nil:
		logger.Warn("Telemetry disabled", logger.Err(err))
	case telemetry.IsEnabled():
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
		stops = append(stops, func() {
			ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
			defer cancel()
			if err := traceShutdown(ctx); err != nil {
				logger.Error("Telemetry shutdown error", logger.Err(err))
			}
		})
	}

	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	switch {
	case err != nil:
		logger.Warn("Profiling disabled", logger.Err(err))
	case telemetry.IsProfilingEnabled():
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
		stops = append(stops, func() {
			if err := profilingShutdown(); err != nil {
				logger.Error("Profiling shutdown error", logger.Err(err))
			}
		})
	}

	return func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}
}

// serve is the server stage followed by Wait. Every instance is constructed
// before any is started so a descriptor error never leaves a listener open.
func (s *Sequence) serve(ctx context.Context, resolved *config.Resolved, tuning compat.Tuning) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mgr       *server.Manager
		instances []*server.Instance
		started   int
	)

	err := s.stage(ctx, StageServer, func(context.Context) error {
		var err error
		mgr, err = server.NewManager(ctx, server.ManagerOptions{
			Registry:     s.Registry,
			Signals:      s.Signals,
			Metrics:      metrics.NewServerMetrics(),
			TCPKeepAlive: tuning.TCPKeepAlive,
		})
		if err != nil {
			return err
		}

		for _, name := range profileNames(resolved.Config()) {
			inst, err := mgr.Construct(name, resolved)
			if err != nil {
				return err
			}
			instances = append(instances, inst)
		}

		for _, inst := range instances {
			if err := mgr.Start(inst); err != nil {
				return err
			}
			started++
		}
		return nil
	})
	if mgr != nil {
		defer mgr.Close()
	}
	if err != nil {
		return abort(mgr, started, err)
	}

	s.banner(instances)

	if s.Started != nil {
		if err := s.Started(instances); err != nil {
			return abort(mgr, started, err)
		}
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")

	if err := mgr.Wait(); err != nil {
		logger.Error("Server stopped with errors", logger.Err(err))
		return err
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// abort stops instances that were already started and returns cause along
// with any drain failure. Wait is never reached on this path.
func abort(mgr *server.Manager, started int, cause error) error {
	if started == 0 {
		return cause
	}
	if err := mgr.Abort(cause); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// profileNames lists the profiles to run: the configured one, plus the
// metrics endpoint when metrics are enabled.
func profileNames(cfg config.Config) []string {
	names := []string{cfg.Server.Profile}
	if cfg.Metrics.Enabled && cfg.Server.Profile != metrics.ProfileName {
		names = append(names, metrics.ProfileName)
	}
	return names
}

func (s *Sequence) banner(instances []*server.Instance) {
	logger.Info(fmt.Sprintf("%s %s started", s.Project, s.Version),
		logger.KeyVersion, s.Version,
		"commit", s.Commit,
		"pid", os.Getpid(),
	)
	for _, inst := range instances {
		desc := inst.Descriptor()
		logger.Info("Listening",
			logger.KeyProfile, desc.Profile,
			logger.KeyAddress, inst.Addr().String(),
			logger.KeyInstanceID, inst.ID(),
			logger.KeyGracePeriod, desc.GracePeriod.String(),
		)
	}
}

func configSource(cfg *config.Resolved) string {
	if f := cfg.ConfigFile(); f != "" {
		return f
	}
	return "defaults"
}
