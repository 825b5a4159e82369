package cluster

import (
	"math"

	"github.com/cloudbsd/admin-panel/internal/capacity"
	"github.com/cloudbsd/admin-panel/internal/models"
)

// CPUStats aggregates core counts.
type CPUStats struct {
	Total      int `json:"total"`
	Used       int `json:"used"`
	Percentage int `json:"percentage"`
}

// SizeStats aggregates a capacity in display form.
type SizeStats struct {
	Total      string `json:"total"`
	Used       string `json:"used"`
	Percentage int    `json:"percentage"`
}

// NodeCounts counts nodes.
type NodeCounts struct {
	Total  int `json:"total"`
	Online int `json:"online"`
}

// Stats is the cluster-wide capacity summary.
type Stats struct {
	CPU    CPUStats   `json:"cpu"`
	Memory SizeStats  `json:"memory"`
	Disk   SizeStats  `json:"disk"`
	Nodes  NodeCounts `json:"nodes"`
}

// ComputeStats sums the capacity of nodes. It does not depend on their order.
func ComputeStats(nodes []models.Node) Stats {
	var (
		cpuTotal, cpuUsed   int64
		memTotal, memUsed   int64
		diskTotal, diskUsed int64
		online              int
	)
	for _, node := range nodes {
		cpuTotal += int64(derefInt(node.CPUTotal))
		cpuUsed += int64(derefInt(node.CPUUsed))
		memTotal += derefInt64(node.MemTotalMB)
		memUsed += derefInt64(node.MemUsedMB)
		diskTotal += derefInt64(node.DiskTotalMB)
		diskUsed += derefInt64(node.DiskUsedMB)
		if node.Status == models.NodeStatusOnline {
			online++
		}
	}
	return Stats{
		CPU: CPUStats{
			Total:      int(cpuTotal),
			Used:       int(cpuUsed),
			Percentage: percent(cpuUsed, cpuTotal),
		},
		Memory: SizeStats{
			Total:      capacity.Display(memTotal),
			Used:       capacity.Display(memUsed),
			Percentage: percent(memUsed, memTotal),
		},
		Disk: SizeStats{
			Total:      capacity.Display(diskTotal),
			Used:       capacity.Display(diskUsed),
			Percentage: percent(diskUsed, diskTotal),
		},
		Nodes: NodeCounts{Total: len(nodes), Online: online},
	}
}

func percent(used, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(used) / float64(total) * 100))
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
