package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/volumed/internal/logger"
	"github.com/marmos91/volumed/internal/telemetry"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// interruptDelay is how long idle reads get after shutdown starts before
// their deadline fires.
const interruptDelay = 100 * time.Millisecond

// keepAliveConfig is applied to accepted connections when the platform
// supports it.
var keepAliveConfig = net.KeepAliveConfig{
	Enable:   true,
	Idle:     30 * time.Second,
	Interval: 15 * time.Second,
	Count:    4,
}

// Instance is one listening service built from a profile. It owns its
// listener and the goroutines serving its connections.
//
// Thread safety:
// All exported methods are safe for concurrent use. Shutdown is idempotent.
type Instance struct {
	id      string
	desc    Descriptor
	app     Application
	metrics MetricsRecorder
	manager *Manager

	keepAlive bool

	mu       sync.Mutex
	state    State
	listener net.Listener

	// activeConns counts connection goroutines for the drain.
	activeConns sync.WaitGroup
	connCount   atomic.Int32

	// conns maps connection id to net.Conn for interruption and force-close.
	conns sync.Map

	// connSemaphore limits concurrent connections; nil when unlimited.
	connSemaphore chan struct{}

	shutdownOnce sync.Once
	shutdown     chan struct{}

	// connCtx is handed to every connection and cancelled on shutdown.
	connCtx     context.Context
	cancelConns context.CancelFunc

	ready chan struct{}
	done  chan struct{}
	err   error
}

func newInstance(m *Manager, desc Descriptor, app Application) *Instance {
	inst := &Instance{
		id:        uuid.NewString(),
		desc:      desc,
		app:       app,
		manager:   m,
		keepAlive: m.opts.TCPKeepAlive,
		state:     StateConstructed,
		shutdown:  make(chan struct{}),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	if m.opts.Metrics != nil {
		inst.metrics = m.opts.Metrics(desc.Profile)
	}
	if desc.MaxConnections > 0 {
		inst.connSemaphore = make(chan struct{}, desc.MaxConnections)
	}
	return inst
}

// ID returns the instance identifier used in logs.
func (i *Instance) ID() string { return i.id }

// Descriptor returns the bind descriptor.
func (i *Instance) Descriptor() Descriptor { return i.desc }

// State returns the current lifecycle state.
func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Addr returns the bound address, or nil before Start succeeds.
func (i *Instance) Addr() net.Addr {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.listener == nil {
		return nil
	}
	return i.listener.Addr()
}

// Ready is closed once the listener is bound.
func (i *Instance) Ready() <-chan struct{} { return i.ready }

// Done is closed once the instance is Stopped.
func (i *Instance) Done() <-chan struct{} { return i.done }

// Err returns the reason the instance stopped, nil after a clean drain.
// It is valid once Done is closed.
func (i *Instance) Err() error {
	select {
	case <-i.done:
		return i.err
	default:
		return nil
	}
}

// ActiveConnections returns the number of connections being served.
func (i *Instance) ActiveConnections() int32 { return i.connCount.Load() }

// start binds the listener and launches the accept loop. parent is the
// manager's context; it becomes the parent of every connection context.
func (i *Instance) start(parent context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state != StateConstructed {
		return &LifecycleError{Op: "start instance " + i.id, State: i.state}
	}

	ln, err := listen(parent, i.desc)
	if err != nil {
		return err
	}

	i.listener = ln
	i.connCtx, i.cancelConns = context.WithCancel(parent)
	i.state = StateRunning
	close(i.ready)

	logger.Info("Server instance listening",
		logger.KeyProfile, i.desc.Profile,
		logger.KeyInstanceID, i.id,
		logger.KeyAddress, ln.Addr().String(),
		"max_connections", i.desc.MaxConnections,
		logger.KeyGracePeriod, gracePeriodString(i.desc.GracePeriod))

	go i.serve(ln)
	return nil
}

// serve runs the accept loop until shutdown or a fatal listener error, then
// drains and marks the instance Stopped.
func (i *Instance) serve(ln net.Listener) {
	err := i.acceptLoop(ln)
	if err != nil {
		logger.Error("Server instance failed",
			logger.KeyProfile, i.desc.Profile, logger.KeyInstanceID, i.id, logger.Err(err))
		i.initiateShutdown()
	}

	if drainErr := i.drain(); drainErr != nil {
		err = errors.Join(err, drainErr)
	}

	if c, ok := i.app.(interface{ Close() error }); ok {
		if closeErr := c.Close(); closeErr != nil {
			logger.Debug("Application close failed", logger.KeyProfile, i.desc.Profile, logger.Err(closeErr))
		}
	}

	i.mu.Lock()
	i.state = StateStopped
	i.err = err
	i.mu.Unlock()
	close(i.done)

	logger.Info("Server instance stopped", logger.KeyProfile, i.desc.Profile, logger.KeyInstanceID, i.id)
}

func (i *Instance) acceptLoop(ln net.Listener) error {
	var backoff time.Duration

	for {
		if i.connSemaphore != nil {
			select {
			case i.connSemaphore <- struct{}{}:
			case <-i.shutdown:
				return nil
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			i.release()

			if i.shuttingDown() {
				return nil
			}

			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener %s closed unexpectedly: %w", i.desc.Address(), err)
			}

			// Transient failures such as EMFILE: back off like net/http does.
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			logger.Warn("Accept failed, retrying",
				logger.KeyProfile, i.desc.Profile, logger.Err(err), "retry_in", backoff)

			select {
			case <-time.After(backoff):
			case <-i.shutdown:
				return nil
			}
			continue
		}
		backoff = 0

		i.tuneConn(conn)
		i.track(conn)
	}
}

func (i *Instance) tuneConn(conn net.Conn) {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	if err := tcp.SetNoDelay(true); err != nil {
		logger.Debug("Failed to set TCP_NODELAY", logger.Err(err))
	}
	if i.keepAlive {
		if err := tcp.SetKeepAliveConfig(keepAliveConfig); err != nil {
			logger.Debug("Failed to configure keepalive", logger.Err(err))
		}
	}
}

// track registers conn and serves it on its own goroutine.
func (i *Instance) track(conn net.Conn) {
	connID := uuid.NewString()

	i.activeConns.Add(1)
	active := i.connCount.Add(1)
	i.conns.Store(connID, conn)

	if i.metrics != nil {
		i.metrics.RecordConnectionAccepted()
		i.metrics.SetActiveConnections(active)
	}

	// Accepted just before shutdown: the interrupt pass may already be over.
	if i.shuttingDown() && i.interruptsReads() {
		i.interruptConn(connID, conn, time.Now().Add(interruptDelay))
	}

	lc := logger.NewLogContext(i.desc.Profile, i.id, connID, conn.RemoteAddr().String())
	logger.DebugCtx(logger.WithContext(context.Background(), lc), "Connection accepted", logger.KeyConnections, active)

	go i.serveConn(lc, conn)
}

// serveConn runs the application for one connection. A failure or panic
// affects only this connection.
func (i *Instance) serveConn(lc *logger.LogContext, conn net.Conn) {
	ctx, span := telemetry.StartSpan(i.connCtx, telemetry.SpanConnection,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			telemetry.Profile(i.desc.Profile),
			telemetry.InstanceID(i.id),
			telemetry.ConnectionID(lc.ConnectionID),
			telemetry.RemoteAddr(lc.RemoteAddr),
		))
	lc = lc.WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	ctx = logger.WithContext(ctx, lc)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic serving connection: %v", r)
			logger.ErrorCtx(ctx, "Connection handler panicked", logger.Err(err), "stack", string(debug.Stack()))
			i.recordConnError(ctx, err)
		}

		_ = conn.Close()
		i.conns.Delete(lc.ConnectionID)
		remaining := i.connCount.Add(-1)
		i.activeConns.Done()
		i.release()

		if i.metrics != nil {
			i.metrics.RecordConnectionClosed(time.Since(lc.StartTime))
			i.metrics.SetActiveConnections(remaining)
		}
		span.End()

		logger.DebugCtx(ctx, "Connection closed", logger.KeyConnections, remaining, logger.KeyDurationMs, lc.DurationMs())
	}()

	if err := i.app.ServeConn(ctx, conn); err != nil && !isClosedConnError(err) {
		if i.shuttingDown() {
			logger.DebugCtx(ctx, "Connection ended during shutdown", logger.Err(err))
			return
		}
		logger.WarnCtx(ctx, "Connection failed", logger.Err(err))
		i.recordConnError(ctx, err)
	}
}

func (i *Instance) recordConnError(ctx context.Context, err error) {
	telemetry.RecordError(ctx, err)
	telemetry.SetStatus(ctx, codes.Error, err.Error())
	if i.metrics != nil {
		i.metrics.RecordConnectionError()
	}
}

func (i *Instance) shuttingDown() bool {
	select {
	case <-i.shutdown:
		return true
	default:
		return false
	}
}

func (i *Instance) release() {
	if i.connSemaphore != nil {
		<-i.connSemaphore
	}
}

// initiateShutdown stops accepting and asks connections to wind down:
//  1. close the shutdown channel (stops the accept loop)
//  2. close the listener
//  3. tell a Drainer it is draining, or interrupt idle reads otherwise
//  4. cancel connection contexts
func (i *Instance) initiateShutdown() {
	i.shutdownOnce.Do(func() {
		close(i.shutdown)

		i.mu.Lock()
		ln := i.listener
		i.mu.Unlock()
		if ln != nil {
			if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				logger.Debug("Error closing listener", logger.KeyProfile, i.desc.Profile, logger.Err(err))
			}
		}

		if d, ok := i.app.(Drainer); ok {
			d.Drain()
		} else {
			i.interruptBlockingReads()
		}

		if i.cancelConns != nil {
			i.cancelConns()
		}
	})
}

// interruptBlockingReads sets a short read deadline on every connection so
// handlers parked on an idle read return.
func (i *Instance) interruptBlockingReads() {
	deadline := time.Now().Add(interruptDelay)
	i.conns.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			i.interruptConn(key, conn, deadline)
		}
		return true
	})
}

func (i *Instance) interruptConn(key any, conn net.Conn, deadline time.Time) {
	if err := conn.SetReadDeadline(deadline); err != nil {
		logger.Debug("Error setting shutdown deadline", logger.KeyConnectionID, key, logger.Err(err))
	}
}

// interruptsReads reports whether shutdown puts read deadlines on this
// instance's connections. A Drainer ends its idle connections itself.
func (i *Instance) interruptsReads() bool {
	_, ok := i.app.(Drainer)
	return !ok
}

// drain waits for connections to finish. A zero grace period waits
// indefinitely; otherwise remaining connections are force-closed when it
// expires and ErrDrainTimeout is returned.
func (i *Instance) drain() error {
	active := i.connCount.Load()
	logger.Info("Draining connections",
		logger.KeyProfile, i.desc.Profile,
		logger.KeyConnections, active,
		logger.KeyGracePeriod, gracePeriodString(i.desc.GracePeriod))

	done := make(chan struct{})
	go func() {
		i.activeConns.Wait()
		close(done)
	}()

	if i.desc.GracePeriod <= 0 {
		<-done
		return nil
	}

	timer := time.NewTimer(i.desc.GracePeriod)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		remaining := i.forceCloseConnections()
		logger.Warn("Grace period exceeded, connections force-closed",
			logger.KeyProfile, i.desc.Profile, logger.KeyConnections, remaining)
		return fmt.Errorf("%w: profile %s: %d connections force-closed after %s",
			ErrDrainTimeout, i.desc.Profile, remaining, i.desc.GracePeriod)
	}
}

func (i *Instance) forceCloseConnections() int {
	closed := 0
	i.conns.Range(func(key, value any) bool {
		conn := value.(net.Conn)
		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection", logger.KeyConnectionID, key, logger.Err(err))
			return true
		}
		closed++
		if i.metrics != nil {
			i.metrics.RecordConnectionForceClosed()
		}
		return true
	})
	return closed
}

func isClosedConnError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

func gracePeriodString(d time.Duration) string {
	if d <= 0 {
		return "unbounded"
	}
	return d.String()
}
