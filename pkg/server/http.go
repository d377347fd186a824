package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/volumed/internal/logger"
)

// HTTPConfig holds the timeouts for an HTTPApplication.
type HTTPConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// HTTPApplication serves HTTP on connections handed over by an Instance.
// One http.Server handles every connection; ServeConn blocks until the
// server is done with the connection so the instance can track it.
//
// Draining closes connections waiting for a request and lets requests in
// flight complete; keep-alive is off from then on, so the server closes each
// busy connection once its response is written.
type HTTPApplication struct {
	server   *http.Server
	listener *connListener

	startOnce sync.Once

	mu       sync.Mutex
	idle     map[net.Conn]struct{}
	draining bool
}

// NewHTTPApplication wraps handler.
func NewHTTPApplication(handler http.Handler, cfg HTTPConfig) *HTTPApplication {
	a := &HTTPApplication{
		listener: newConnListener(),
		idle:     make(map[net.Conn]struct{}),
	}
	a.server = &http.Server{
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ConnState:    a.trackState,
	}
	return a
}

// trackState keeps the set of connections not serving a request. Once
// draining, a connection becoming idle is closed right away.
func (a *HTTPApplication) trackState(conn net.Conn, state http.ConnState) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch state {
	case http.StateNew, http.StateIdle:
		if a.draining {
			_ = conn.Close()
			return
		}
		a.idle[conn] = struct{}{}
	default:
		delete(a.idle, conn)
	}
}

// ServeConn hands conn to the HTTP server and blocks until it is closed.
func (a *HTTPApplication) ServeConn(ctx context.Context, conn net.Conn) error {
	a.startOnce.Do(func() {
		go func() {
			err := a.server.Serve(a.listener)
			if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
				logger.Error("HTTP server stopped", logger.Err(err))
			}
		}()
	})

	tc := &trackedConn{Conn: conn, closed: make(chan struct{})}
	if err := a.listener.push(ctx, tc); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	// A draining instance still waits here: the in-flight request finishes
	// or the instance force-closes conn once the grace period runs out.
	<-tc.closed
	return nil
}

// Drain disables keep-alive and closes idle connections. Requests in flight
// keep their context and finish normally.
func (a *HTTPApplication) Drain() {
	a.server.SetKeepAlivesEnabled(false)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.draining = true
	for conn := range a.idle {
		_ = conn.Close()
		delete(a.idle, conn)
	}
}

// Close stops the HTTP server. It is called after every connection drained.
func (a *HTTPApplication) Close() error {
	_ = a.listener.Close()
	return a.server.Close()
}

// trackedConn signals when the HTTP server closes the connection.
type trackedConn struct {
	net.Conn
	closeOnce sync.Once
	closed    chan struct{}
}

func (c *trackedConn) Close() error {
	err := c.Conn.Close()
	c.closeOnce.Do(func() { close(c.closed) })
	return err
}

// connListener is a net.Listener fed by ServeConn instead of a socket.
type connListener struct {
	conns     chan net.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func newConnListener() *connListener {
	return &connListener{
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
}

func (l *connListener) push(ctx context.Context, conn net.Conn) error {
	select {
	case l.conns <- conn:
		return nil
	case <-l.done:
		return net.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *connListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *connListener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

func (l *connListener) Addr() net.Addr {
	return connListenerAddr{}
}

type connListenerAddr struct{}

func (connListenerAddr) Network() string { return "tcp" }
func (connListenerAddr) String() string  { return "instance" }
