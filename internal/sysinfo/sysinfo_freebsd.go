//go:build freebsd

package sysinfo

import (
	"time"

	"golang.org/x/sys/unix"
)

func collectPlatform(host *Host) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		host.OSName = unix.ByteSliceToString(uts.Sysname[:])
		host.Release = unix.ByteSliceToString(uts.Release[:])
	}
	if model, err := unix.Sysctl("hw.model"); err == nil && model != "" {
		host.CPUModel = model
	}
	if physmem, err := unix.SysctlUint64("hw.physmem"); err == nil {
		host.TotalMemory = physmem
	}
	pageSize, errPage := unix.SysctlUint32("hw.pagesize")
	freePages, errFree := unix.SysctlUint32("vm.stats.vm.v_free_count")
	if errPage == nil && errFree == nil {
		host.FreeMemory = uint64(freePages) * uint64(pageSize)
	}
	if boot, err := unix.SysctlTimeval("kern.boottime"); err == nil {
		host.Uptime = time.Since(time.Unix(boot.Unix()))
	}
}
