//go:build !linux && !darwin

package compat

func raiseNofile(uint64) (uint64, error) {
	return 0, ErrUnsupported
}
