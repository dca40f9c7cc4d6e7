package scheduler

import (
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// ResourceSampler reports current system load for the selection policy's
// CPU/memory gates (§4.1) and the adaptive-concurrency tick (§4.1, §5).
type ResourceSampler interface {
	Sample() (cpuPercent, memPercent float64, err error)
}

// SystemSampler reads real host CPU/memory usage via gopsutil.
type SystemSampler struct{}

// Sample returns CPU percent (since the previous call) and memory percent
// used.
func (SystemSampler) Sample() (float64, float64, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, 0, err
	}
	var cpuPct float64
	if len(percents) > 0 {
		cpuPct = percents[0]
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return cpuPct, 0, err
	}
	return cpuPct, vm.UsedPercent, nil
}
