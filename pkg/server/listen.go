package server

import (
	"context"
	"net"

	"github.com/marmos91/volumed/internal/logger"
)

// listen acquires the TCP listener for d and applies the backlog where the
// platform allows changing it.
func listen(ctx context.Context, d Descriptor) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", d.Address())
	if err != nil {
		return nil, &BindError{Address: d.Address(), Err: err}
	}

	if d.Backlog > 0 {
		if err := setBacklog(ln, d.Backlog); err != nil {
			logger.Warn("Listen backlog not applied",
				logger.KeyProfile, d.Profile, logger.KeyAddress, ln.Addr().String(), "backlog", d.Backlog, logger.Err(err))
		}
	}

	return ln, nil
}
