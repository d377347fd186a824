//go:build linux || darwin || freebsd

package handlers

import "golang.org/x/sys/unix"

// Statfs reports the capacity of the filesystem holding path. Free space is
// what an unprivileged writer can use.
func Statfs(path string) (Capacity, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Capacity{}, err
	}
	bsize := uint64(st.Bsize)
	return Capacity{
		TotalBytes: uint64(st.Blocks) * bsize,
		FreeBytes:  uint64(st.Bavail) * bsize,
	}, nil
}
