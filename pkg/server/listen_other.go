//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package server

import (
	"errors"
	"net"
)

func setBacklog(net.Listener, int) error {
	return errors.New("changing the listen backlog is not supported on this platform")
}
