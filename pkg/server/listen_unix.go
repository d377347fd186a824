//go:build linux || darwin || freebsd || netbsd || openbsd

package server

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// setBacklog re-issues listen(2) on the bound socket. The kernel updates the
// accept queue length of a socket that is already listening.
func setBacklog(ln net.Listener, backlog int) error {
	tcp, ok := ln.(*net.TCPListener)
	if !ok {
		return fmt.Errorf("listener is %T, not TCP", ln)
	}

	rc, err := tcp.SyscallConn()
	if err != nil {
		return err
	}

	var listenErr error
	if err := rc.Control(func(fd uintptr) {
		listenErr = unix.Listen(int(fd), backlog)
	}); err != nil {
		return err
	}
	return listenErr
}
