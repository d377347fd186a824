package compat

import (
	"context"
	"fmt"
	"net"
	"time"
)

// probeKeepAlive configures keepalive on a loopback connection. If the
// platform rejects it, keepalive tuning is turned off for accepted
// connections.
func probeKeepAlive(ctx context.Context, t *Tuning) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("open loopback listener: %w", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	dialer := net.Dialer{Timeout: 2 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", ln.Addr().String())
	if err != nil {
		return fmt.Errorf("dial loopback listener: %w", err)
	}
	defer conn.Close()

	if peer, ok := <-accepted; ok {
		defer peer.Close()
	}

	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		t.TCPKeepAlive = false
		return fmt.Errorf("loopback connection is %T, not TCP", conn)
	}

	err = tcp.SetKeepAliveConfig(net.KeepAliveConfig{
		Enable:   true,
		Idle:     30 * time.Second,
		Interval: 15 * time.Second,
		Count:    4,
	})
	if err != nil {
		t.TCPKeepAlive = false
		return fmt.Errorf("set keepalive: %w", err)
	}
	return nil
}
