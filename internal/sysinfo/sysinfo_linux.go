//go:build linux

package sysinfo

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

func collectPlatform(host *Host) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		host.OSName = unix.ByteSliceToString(uts.Sysname[:])
		host.Release = unix.ByteSliceToString(uts.Release[:])
	}

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err == nil {
		unit := uint64(info.Unit)
		if unit == 0 {
			unit = 1
		}
		host.TotalMemory = uint64(info.Totalram) * unit
		host.FreeMemory = uint64(info.Freeram) * unit
		host.Uptime = time.Duration(info.Uptime) * time.Second
		host.LoadAverage = []float64{
			float64(info.Loads[0]) / (1 << unix.SI_LOAD_SHIFT),
			float64(info.Loads[1]) / (1 << unix.SI_LOAD_SHIFT),
			float64(info.Loads[2]) / (1 << unix.SI_LOAD_SHIFT),
		}
	}

	if data, err := os.ReadFile("/proc/cpuinfo"); err == nil {
		if model := cpuModelFromCPUInfo(string(data)); model != "" {
			host.CPUModel = model
		}
	}
}
