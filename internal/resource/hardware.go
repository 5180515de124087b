package resource

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostInfo is the CPU and memory side of a hardware capability snapshot.
// GPU capability comes from the registered GPU processor and is combined
// by the coordinator.
type HostInfo struct {
	// Threads is the logical CPU thread count.
	Threads int

	// AvailableBytes is the host memory currently available.
	AvailableBytes int64
}

// DetectHost queries CPU thread count and available memory via gopsutil.
// Failures degrade to GOMAXPROCS and the default budget rather than
// erroring; hardware probing must never block a load.
func DetectHost() HostInfo {
	info := HostInfo{
		Threads:        runtime.GOMAXPROCS(0),
		AvailableBytes: DefaultHostBudgetBytes,
	}

	if n, err := cpu.Counts(true); err == nil && n > 0 {
		info.Threads = n
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm.Available > 0 {
		info.AvailableBytes = int64(vm.Available)
	}
	return info
}

// SuggestHostBudget derives a host budget from available memory: a
// quarter of what is free, clamped to at least the default. Peak usage
// stays bounded relative to file size because only budget-many chunk
// bytes are ever in flight.
func SuggestHostBudget(info HostInfo) int64 {
	budget := info.AvailableBytes / 4
	if budget < DefaultHostBudgetBytes {
		budget = DefaultHostBudgetBytes
	}
	return budget
}
