package core

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// LoadSnapshot is one sampling of host resource usage
type LoadSnapshot struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	SampledAt     time.Time `json:"sampled_at"`
}

// LoadMonitor periodically samples host CPU and memory so playback can shed
// quality under pressure. Samples are taken on a background ticker; reads
// never block on the OS.
type LoadMonitor struct {
	logger hclog.Logger

	mu      sync.RWMutex
	current LoadSnapshot

	cpuHighWater float64
	memHighWater float64

	interval  time.Duration
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewLoadMonitor creates a monitor sampling at the given interval and
// starts it. A zero interval defaults to five seconds.
func NewLoadMonitor(logger hclog.Logger, interval time.Duration) *LoadMonitor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	m := &LoadMonitor{
		logger:       logger.Named("load-monitor"),
		cpuHighWater: 85.0,
		memHighWater: 90.0,
		interval:     interval,
		done:         make(chan struct{}),
	}

	m.wg.Add(1)
	go m.run()

	return m
}

func (m *LoadMonitor) run() {
	defer m.wg.Done()

	m.sample()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sample()
		case <-m.done:
			return
		}
	}
}

func (m *LoadMonitor) sample() {
	snapshot := LoadSnapshot{SampledAt: time.Now()}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snapshot.CPUPercent = percents[0]
	} else if err != nil {
		m.logger.Debug("cpu sampling failed", "error", err)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		snapshot.MemoryPercent = vm.UsedPercent
	} else {
		m.logger.Debug("memory sampling failed", "error", err)
	}

	m.mu.Lock()
	m.current = snapshot
	m.mu.Unlock()
}

// Snapshot returns the latest sample
func (m *LoadMonitor) Snapshot() LoadSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// UnderPressure reports whether the host is past either high-water mark
func (m *LoadMonitor) UnderPressure() bool {
	s := m.Snapshot()
	return s.CPUPercent >= m.cpuHighWater || s.MemoryPercent >= m.memHighWater
}

// Close stops the sampling goroutine
func (m *LoadMonitor) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	m.wg.Wait()
	return nil
}
