//go:build windows

package handlers

import "golang.org/x/sys/windows"

// Statfs reports the capacity of the volume holding path.
func Statfs(path string) (Capacity, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return Capacity{}, err
	}

	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree); err != nil {
		return Capacity{}, err
	}
	return Capacity{TotalBytes: total, FreeBytes: free}, nil
}
