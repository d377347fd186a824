package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/marmos91/volumed/internal/logger"
	"github.com/marmos91/volumed/internal/procenv"
	"github.com/marmos91/volumed/pkg/config"
)

// ErrStopSignal is the cancellation cause recorded when a stop signal arrives.
var ErrStopSignal = errors.New("stop signal received")

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Registry holds the constructible profiles. Required.
	Registry *Registry

	// Signals trigger an orderly stop. Defaults to SIGINT and SIGTERM.
	Signals []os.Signal

	// Metrics returns the recorder for each instance. Optional.
	Metrics MetricsFactory

	// TCPKeepAlive enables keep-alive probes on accepted connections.
	TCPKeepAlive bool
}

// Manager owns every server instance in the process and drives their
// lifecycle: Construct, Start, then Wait. Shutdown is signal driven; there
// is no explicit Stop, only Abort for a startup that failed part way.
// Cancelling the parent context passed to NewManager has the same effect as
// a stop signal.
type Manager struct {
	opts ManagerOptions

	ctx    context.Context
	cancel context.CancelCauseFunc

	sigCh    chan os.Signal
	stopOnce sync.Once

	mu        sync.Mutex
	instances []*Instance
	started   []*Instance
	waited    bool
}

// NewManager creates a manager and starts listening for stop signals.
// Call Close to release the signal subscription if Wait is never reached.
func NewManager(parent context.Context, opts ManagerOptions) (*Manager, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("manager requires a profile registry")
	}
	if len(opts.Signals) == 0 {
		opts.Signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	ctx, cancel := context.WithCancelCause(parent)
	m := &Manager{
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		sigCh:  make(chan os.Signal, 1),
	}

	signal.Notify(m.sigCh, opts.Signals...)
	go m.watchSignals()

	return m, nil
}

func (m *Manager) watchSignals() {
	select {
	case sig := <-m.sigCh:
		logger.Info("Received stop signal, shutting down", logger.KeySignal, sig.String())
		m.cancel(fmt.Errorf("%w: %s", ErrStopSignal, sig))
	case <-m.ctx.Done():
	}
}

// Close stops signal delivery to the manager. It does not stop instances.
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		signal.Stop(m.sigCh)
	})
}

// Context is cancelled when shutdown begins.
func (m *Manager) Context() context.Context { return m.ctx }

// Construct resolves profileName to a bind descriptor and an application.
// It acquires no network resources.
func (m *Manager) Construct(profileName string, cfg *config.Resolved) (*Instance, error) {
	if cfg == nil {
		return nil, fmt.Errorf("construct %q: resolved configuration is required", profileName)
	}

	profile, err := m.opts.Registry.Lookup(profileName)
	if err != nil {
		return nil, err
	}

	c := cfg.Config()
	desc := profile.Bind(c)
	desc.Profile = profile.Name
	if err := desc.Validate(c.Server.ReservedPorts); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, other := range m.instances {
		if other.State() != StateStopped && desc.conflicts(other.desc) {
			return nil, &BindConfigError{
				Profile: desc.Profile,
				Field:   "port",
				Reason:  fmt.Sprintf("%s is already claimed by profile %q", desc.Address(), other.desc.Profile),
			}
		}
	}

	app, err := profile.Build(cfg)
	if err != nil {
		return nil, fmt.Errorf("build profile %q: %w", profile.Name, err)
	}

	inst := newInstance(m, desc, app)
	m.instances = append(m.instances, inst)

	logger.Debug("Server instance constructed",
		logger.KeyProfile, desc.Profile,
		logger.KeyInstanceID, inst.id,
		logger.KeyAddress, desc.Address())

	return inst, nil
}

// Start binds the instance's listener and begins accepting connections.
// A bind failure leaves the instance Constructed, so repeating Start with
// the same address fails the same way.
func (m *Manager) Start(inst *Instance) error {
	if err := procenv.Require("server"); err != nil {
		return err
	}
	if inst == nil || inst.manager != m {
		return &LifecycleError{Op: "start", Msg: "instance was not constructed by this manager"}
	}

	// The lock is held across the bind so Wait either sees this instance
	// or rejects the Start.
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.waited {
		return &LifecycleError{Op: "start", Msg: "manager is already waiting"}
	}

	if err := inst.start(m.ctx); err != nil {
		return err
	}
	m.started = append(m.started, inst)

	go m.supervise(inst)
	return nil
}

// supervise turns an instance that stops on its own into a process-wide
// shutdown, so Wait never blocks on a dead listener.
func (m *Manager) supervise(inst *Instance) {
	select {
	case <-inst.Done():
		if m.ctx.Err() == nil {
			m.cancel(fmt.Errorf("%w: profile %s instance %s", ErrInstanceFailed, inst.desc.Profile, inst.id))
		}
	case <-m.ctx.Done():
	}
}

// Wait blocks until a stop signal arrives, then drains every started
// instance and returns once all of them are Stopped. The returned error
// joins per-instance drain failures; it is nil after a clean stop.
func (m *Manager) Wait() error {
	m.mu.Lock()
	if m.waited {
		m.mu.Unlock()
		return &LifecycleError{Op: "wait", Msg: "wait already called"}
	}
	if len(m.started) == 0 {
		m.mu.Unlock()
		return &LifecycleError{Op: "wait", State: StateConstructed, Msg: "no instance has been started"}
	}
	m.waited = true
	started := append([]*Instance(nil), m.started...)
	m.mu.Unlock()

	defer m.Close()

	<-m.ctx.Done()
	cause := context.Cause(m.ctx)

	errs := stopInstances(started)

	// An instance failure or a parent deadline is not a clean stop.
	if cause != nil && !errors.Is(cause, ErrStopSignal) && !errors.Is(cause, context.Canceled) {
		errs = append([]error{cause}, errs...)
	}

	return errors.Join(errs...)
}

// Abort stops the instances started so far after a failed startup. It is
// the only way to stop instances without Wait, and Wait is rejected once
// Abort ran. The returned error joins drain failures only; cause is recorded
// as the cancellation cause.
func (m *Manager) Abort(cause error) error {
	m.mu.Lock()
	if m.waited {
		m.mu.Unlock()
		return &LifecycleError{Op: "abort", Msg: "wait already called"}
	}
	m.waited = true
	started := append([]*Instance(nil), m.started...)
	m.mu.Unlock()

	defer m.Close()

	if cause == nil {
		cause = errors.New("startup aborted")
	}
	m.cancel(cause)

	logger.Warn("Startup aborted, stopping started instances",
		"instances", len(started), logger.Err(cause))

	return errors.Join(stopInstances(started)...)
}

// stopInstances shuts every instance down and waits for each to stop.
func stopInstances(started []*Instance) []error {
	begin := time.Now()
	for _, inst := range started {
		inst.initiateShutdown()
	}

	var errs []error
	for _, inst := range started {
		<-inst.Done()
		if err := inst.Err(); err != nil {
			errs = append(errs, fmt.Errorf("profile %s: %w", inst.desc.Profile, err))
		}
	}

	logger.Info("All server instances stopped",
		"instances", len(started),
		logger.KeyDurationMs, float64(time.Since(begin).Microseconds())/1000.0)
	return errs
}

// Instances returns every constructed instance in construction order.
func (m *Manager) Instances() []*Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Instance(nil), m.instances...)
}
