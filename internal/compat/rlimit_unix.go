//go:build linux || darwin

package compat

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// raiseNofile sets the RLIMIT_NOFILE soft limit to want, or to the hard
// limit when want is 0. Requests above the hard limit are clamped.
func raiseNofile(want uint64) (uint64, error) {
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return 0, fmt.Errorf("read RLIMIT_NOFILE: %w", err)
	}

	target := uint64(lim.Max)
	if want > 0 && want < target {
		target = want
	}
	if target <= uint64(lim.Cur) {
		return uint64(lim.Cur), nil
	}

	lim.Cur = target
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return 0, fmt.Errorf("set RLIMIT_NOFILE to %d: %w", target, err)
	}
	return target, nil
}
