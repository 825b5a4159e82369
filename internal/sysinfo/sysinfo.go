// Package sysinfo reports facts about the host running the panel and the
// synthetic load figures shown on the dashboard.
package sysinfo

import (
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"strings"
	"time"
)

// Host describes the machine the server runs on.
type Host struct {
	Hostname    string
	OSName      string // Kernel name, e.g. "FreeBSD".
	Platform    string // GOOS value, e.g. "freebsd".
	Release     string
	Arch        string
	CPUs        int
	CPUModel    string
	TotalMemory uint64 // Bytes.
	FreeMemory  uint64 // Bytes.
	LoadAverage []float64
	Uptime      time.Duration
}

// Collect gathers host facts. Fields the platform cannot report stay zero.
func Collect() Host {
	host := Host{
		Platform: runtime.GOOS,
		Arch:     runtime.GOARCH,
		CPUs:     runtime.NumCPU(),
		CPUModel: "unknown",
	}
	if name, err := os.Hostname(); err == nil {
		host.Hostname = name
	}
	collectPlatform(&host)
	if host.OSName == "" {
		host.OSName = runtime.GOOS
	}
	if host.LoadAverage == nil {
		host.LoadAverage = []float64{0, 0, 0}
	}
	return host
}

// Network is synthetic throughput in MB/s, formatted with two decimals.
type Network struct {
	In  string `json:"in"`
	Out string `json:"out"`
}

// Stats is the dashboard load summary. CPU and network are synthetic.
type Stats struct {
	CPU     int     `json:"cpu"`
	Memory  int     `json:"memory"`
	Disk    int     `json:"disk"`
	Network Network `json:"network"`
	Uptime  string  `json:"uptime"`
}

// syntheticDiskPercent is reported until disk usage is measured.
const syntheticDiskPercent = 38

// SampleStats returns a load summary for host.
func SampleStats(host Host) Stats {
	memory := 0
	if host.TotalMemory > 0 && host.FreeMemory <= host.TotalMemory {
		memory = int((host.TotalMemory - host.FreeMemory) * 100 / host.TotalMemory)
	}
	return Stats{
		CPU:    rand.Intn(25) + 5,
		Memory: memory,
		Disk:   syntheticDiskPercent,
		Network: Network{
			In:  fmt.Sprintf("%.2f", rand.Float64()*5),
			Out: fmt.Sprintf("%.2f", rand.Float64()*2),
		},
		Uptime: FormatUptime(host.Uptime),
	}
}

// FormatUptime renders d as "<days>d <hours>h <minutes>m".
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
}

// FormatGB renders bytes as gigabytes with two decimals ("15.62 GB").
func FormatGB(bytes uint64) string {
	return fmt.Sprintf("%.2f GB", float64(bytes)/(1024*1024*1024))
}

// cpuModelFromCPUInfo extracts the first "model name" of /proc/cpuinfo text.
func cpuModelFromCPUInfo(text string) string {
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(key) == "model name" {
			if model := strings.TrimSpace(value); model != "" {
				return model
			}
		}
	}
	return ""
}
