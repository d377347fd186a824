package bootstrap

import (
	"errors"

	"github.com/marmos91/volumed/internal/logger"
	"github.com/marmos91/volumed/internal/procenv"
	"github.com/marmos91/volumed/pkg/config"
	"github.com/marmos91/volumed/pkg/server"
)

// Process exit codes.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitConfiguration = 2
	ExitLogging       = 3
	ExitBindConfig    = 4
	ExitBind          = 5
	ExitLifecycle     = 6
	ExitRuntime       = 7
)

// StageError attributes a failure to the stage that produced it. The
// message is the underlying error's.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// ExitCode maps an error returned by Run to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, procenv.ErrAlreadyPrepared),
		errors.Is(err, procenv.ErrInvalidOption),
		errors.Is(err, procenv.ErrNotPrepared):
		return ExitRuntime
	case errors.Is(err, config.ErrConfiguration):
		return ExitConfiguration
	case errors.Is(err, logger.ErrLoggingInit):
		return ExitLogging
	case errors.Is(err, server.ErrProfileNotFound),
		errors.Is(err, server.ErrBindConfiguration):
		return ExitBindConfig
	case errors.Is(err, server.ErrBind):
		return ExitBind
	case errors.Is(err, server.ErrInvalidLifecycleState):
		return ExitLifecycle
	default:
		return ExitFailure
	}
}
