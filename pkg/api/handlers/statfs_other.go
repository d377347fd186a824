//go:build !linux && !darwin && !freebsd && !windows

package handlers

import "errors"

// Statfs is not implemented on this platform.
func Statfs(string) (Capacity, error) {
	return Capacity{}, errors.New("filesystem capacity is not available on this platform")
}
