package server

import (
	"errors"
	"fmt"
)

var (
	// ErrProfileNotFound is returned when a profile name is not registered.
	ErrProfileNotFound = errors.New("service profile not found")

	// ErrBindConfiguration reports an invalid or conflicting bind descriptor.
	ErrBindConfiguration = errors.New("invalid bind configuration")

	// ErrBind reports that the listening socket could not be acquired.
	ErrBind = errors.New("failed to bind listener")

	// ErrInvalidLifecycleState reports an operation issued in the wrong state.
	ErrInvalidLifecycleState = errors.New("invalid lifecycle state")

	// ErrInstanceFailed reports an instance that stopped without a stop signal.
	ErrInstanceFailed = errors.New("server instance failed")

	// ErrDrainTimeout reports connections still open when the grace period ended.
	ErrDrainTimeout = errors.New("drain exceeded grace period")
)

// BindConfigError describes why a descriptor was rejected.
type BindConfigError struct {
	Profile string
	Field   string
	Reason  string
}

func (e *BindConfigError) Error() string {
	return fmt.Sprintf("%s: profile %q: %s: %s", ErrBindConfiguration, e.Profile, e.Field, e.Reason)
}

func (e *BindConfigError) Is(target error) bool { return target == ErrBindConfiguration }

// BindError wraps the listen failure for an address.
type BindError struct {
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("%s %s: %v", ErrBind, e.Address, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

func (e *BindError) Is(target error) bool { return target == ErrBind }

// LifecycleError reports an operation that is not valid in the current state.
type LifecycleError struct {
	Op    string
	State State
	Msg   string
}

func (e *LifecycleError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: cannot %s: %s", ErrInvalidLifecycleState, e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: cannot %s in state %s", ErrInvalidLifecycleState, e.Op, e.State)
}

func (e *LifecycleError) Is(target error) bool { return target == ErrInvalidLifecycleState }
