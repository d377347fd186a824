package config

import (
	"errors"
	"fmt"
)

// ErrConfiguration is matched by every error the resolver returns.
var ErrConfiguration = errors.New("configuration error")

// ErrMissingRequired reports a required option that resolved to an empty value.
var ErrMissingRequired = errors.New("required option is missing")

// Error describes why configuration could not be resolved. Key names the
// offending option when one can be identified.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConfiguration) hold for any *Error.
func (e *Error) Is(target error) bool { return target == ErrConfiguration }

// FlagError wraps a command-line parsing failure so callers can classify it
// as a configuration error. It is suitable as a cobra flag error func.
func FlagError(err error) error {
	if err == nil {
		return nil
	}
	var cfgErr *Error
	if errors.As(err, &cfgErr) {
		return err
	}
	return &Error{Err: err}
}
