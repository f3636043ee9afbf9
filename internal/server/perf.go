package server

import (
	"github.com/shirou/gopsutil/v4/process"

	"github.com/swicore/switcher/internal/errs"
)

// PerfStats is an on-demand sample of the child's resource usage.
type PerfStats struct {
	PID        int     `json:"pid"`
	CPUPercent float64 `json:"cpuPercent"`
	MemoryRSS  uint64  `json:"memoryRss"`
	MemoryVMS  uint64  `json:"memoryVms"`
}

// Perf samples CPU and memory of the running child.
func (s *Server) Perf() (*PerfStats, error) {
	s.mu.Lock()
	c := s.child
	s.mu.Unlock()
	if c == nil || !c.Alive() {
		return nil, errs.ErrNotRunning.WithDetail("%s", s.ID)
	}

	proc, err := process.NewProcess(int32(c.PID()))
	if err != nil {
		return nil, err
	}
	stats := &PerfStats{PID: c.PID()}
	if cpu, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if mi, err := proc.MemoryInfo(); err == nil && mi != nil {
		stats.MemoryRSS = mi.RSS
		stats.MemoryVMS = mi.VMS
	}
	return stats, nil
}
