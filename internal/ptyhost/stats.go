package ptyhost

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
)

type procStats struct {
	RSS        uint64
	CPUPercent float64
}

// processStats samples resident memory and lifetime CPU usage of pid.
func processStats(pid int) (procStats, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return procStats{}, fmt.Errorf("process %d: %w", pid, err)
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return procStats{}, fmt.Errorf("memory of %d: %w", pid, err)
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		return procStats{}, fmt.Errorf("cpu of %d: %w", pid, err)
	}
	return procStats{RSS: mem.RSS, CPUPercent: cpu}, nil
}
